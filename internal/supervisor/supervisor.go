// Package supervisor spawns, streams, and cancels agent CLI invocations.
package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vinayprograms/ocbridge/internal/logging"
	"github.com/vinayprograms/ocbridge/internal/stream"
)

const (
	// DefaultTimeout is the hard wall-clock limit per invocation.
	DefaultTimeout = 5 * time.Minute

	// killGrace is how long a terminated process gets before SIGKILL.
	killGrace = 2 * time.Second

	// Scanner buffer sizes for agent output lines.
	scannerInitialBufSize = 256 * 1024
	scannerMaxBufSize     = 1024 * 1024
)

// Sentinel errors reported to the turn-handling boundary.
var (
	ErrTimeout  = errors.New("invocation timed out")
	ErrCanceled = errors.New("invocation stopped")
)

// Invocation describes one agent call.
type Invocation struct {
	ActorID int64
	Argv    []string
	Dir     string
	Env     []string // nil = inherit the bridge's environment

	// OnProgress receives the joined tool-activity window each time it
	// changes. Identical consecutive updates are collapsed before the call.
	OnProgress func(update string)
}

// Result is the outcome of a completed invocation.
type Result struct {
	Text      string // final response text (stderr substituted when empty)
	SessionID string // discovered session id, "" if none
	ExitCode  int
}

// handle tracks the single in-flight invocation for an actor.
type handle struct {
	cancel  context.CancelFunc
	stopped bool
}

// Supervisor runs agent invocations, at most one tracked per actor.
type Supervisor struct {
	timeout time.Duration
	log     *logging.Logger

	mu     sync.Mutex
	active map[int64]*handle
}

// New creates a Supervisor.
func New(log *logging.Logger) *Supervisor {
	return &Supervisor{
		timeout: DefaultTimeout,
		log:     log.WithComponent("supervisor"),
		active:  make(map[int64]*handle),
	}
}

// SetTimeout overrides the invocation wall-clock limit. Used in tests.
func (s *Supervisor) SetTimeout(d time.Duration) {
	s.timeout = d
}

// Invoke spawns the agent, streams its stdout through the event parser, and
// returns the accumulated result. It registers the actor's active handle
// before the first read and always deregisters before returning.
func (s *Supervisor) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	if len(inv.Argv) == 0 {
		return Result{}, errors.New("empty argument vector")
	}

	ctx, span := startInvokeSpan(ctx, inv)
	started := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	if inv.Env != nil {
		cmd.Env = inv.Env
	} else {
		cmd.Env = os.Environ()
	}
	// Graceful stop first, forced kill after the grace period.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		endInvokeSpan(span, "", err)
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		endInvokeSpan(span, "", err)
		return Result{}, fmt.Errorf("spawn agent: %w", err)
	}

	h := &handle{cancel: cancel}
	s.register(inv.ActorID, h)
	defer s.deregister(inv.ActorID, h)

	acc := stream.NewAccumulator()
	lastUpdate := ""

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, scannerInitialBufSize), scannerMaxBufSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if acc.Apply(stream.Decode(line)) && inv.OnProgress != nil {
			update := strings.Join(acc.ToolSummaries(), "\n")
			if update != lastUpdate {
				inv.OnProgress(update)
				lastUpdate = update
			}
		}
	}

	waitErr := cmd.Wait()

	result := Result{
		Text:      acc.Response(),
		SessionID: acc.SessionID(),
		ExitCode:  cmd.ProcessState.ExitCode(),
	}

	// A hard failure must never be silently empty.
	if result.Text == "" {
		result.Text = strings.TrimSpace(stderr.String())
	}

	err = s.classifyExit(runCtx, h, waitErr)
	s.log.InvocationDone(result.SessionID, time.Since(started), err)
	endInvokeSpan(span, result.SessionID, err)
	return result, err
}

// classifyExit maps a wait error to the supervisor's sentinel errors.
func (s *Supervisor) classifyExit(runCtx context.Context, h *handle, waitErr error) error {
	s.mu.Lock()
	stopped := h.stopped
	s.mu.Unlock()

	switch {
	case stopped:
		return ErrCanceled
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case waitErr != nil:
		// Non-zero exits still carry usable output (stderr substitution);
		// the caller decides how to present them.
		return nil
	default:
		return nil
	}
}

// Cancel stops the actor's in-flight invocation, if any. It reports whether
// there was anything to stop.
func (s *Supervisor) Cancel(actorID int64) bool {
	s.mu.Lock()
	h, ok := s.active[actorID]
	if ok {
		h.stopped = true
		delete(s.active, actorID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	h.cancel()
	s.log.Info("invocation stopped", map[string]interface{}{"actor": actorID})
	return true
}

// Busy reports whether the actor has an in-flight invocation.
func (s *Supervisor) Busy(actorID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[actorID]
	return ok
}

func (s *Supervisor) register(actorID int64, h *handle) {
	s.mu.Lock()
	s.active[actorID] = h
	s.mu.Unlock()
}

func (s *Supervisor) deregister(actorID int64, h *handle) {
	s.mu.Lock()
	// Cancel may already have removed (or replaced) the handle.
	if cur, ok := s.active[actorID]; ok && cur == h {
		delete(s.active, actorID)
	}
	s.mu.Unlock()
}
