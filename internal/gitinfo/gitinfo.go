// Package gitinfo summarizes repository state for session headers and runs
// the bounded /git helper commands.
package gitinfo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// statusTimeout bounds the quick status probes used in headers.
const statusTimeout = 5 * time.Second

// State classifies a directory's git status.
type State int

const (
	StateUnknown State = iota // not a repo, or git failed
	StateClean
	StateDirty
)

// Status returns a one-line git summary for a directory: branch plus
// uncommitted-change count. Failures are reported in the summary text,
// never as errors.
func Status(ctx context.Context, dir string) (State, string) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	if err := run(ctx, dir, "rev-parse", "--git-dir"); err != nil {
		return StateUnknown, "Not a git repo"
	}

	branch, err := output(ctx, dir, "branch", "--show-current")
	if err != nil {
		return StateUnknown, fmt.Sprintf("git error: %v", err)
	}
	if branch == "" {
		branch = "detached HEAD"
	}

	porcelain, err := output(ctx, dir, "status", "--porcelain")
	if err != nil {
		return StateUnknown, fmt.Sprintf("git error: %v", err)
	}
	if porcelain == "" {
		return StateClean, fmt.Sprintf("on %s (clean)", branch)
	}
	changes := len(strings.Split(porcelain, "\n"))
	return StateDirty, fmt.Sprintf("on %s (%d uncommitted)", branch, changes)
}

// Run executes an arbitrary git command in dir with the given timeout and
// returns its combined output, truncated for chat display. stderr is
// substituted when stdout is empty so failures are never silent.
func Run(ctx context.Context, dir, args string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fields := strings.Fields(args)
	cmd := exec.CommandContext(ctx, "git", fields...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		out = strings.TrimSpace(stderr.String())
	}
	if out == "" {
		out = "(no output)"
	}
	if len(out) > 3500 {
		out = out[:3500] + "\n\n[truncated]"
	}

	if ctx.Err() == context.DeadlineExceeded {
		return "", context.DeadlineExceeded
	}
	// Non-zero exits still return their output; the caller shows it as-is.
	_ = err
	return out, nil
}

func run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.Run()
}

func output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
