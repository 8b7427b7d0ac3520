// Package gateway coordinates inbound turns: session resolution, agent
// invocation, live progress, and the permission escalation handshake.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/ocbridge/internal/autonomy"
	"github.com/vinayprograms/ocbridge/internal/config"
	"github.com/vinayprograms/ocbridge/internal/invoke"
	"github.com/vinayprograms/ocbridge/internal/logging"
	"github.com/vinayprograms/ocbridge/internal/probe"
	"github.com/vinayprograms/ocbridge/internal/registry"
	"github.com/vinayprograms/ocbridge/internal/render"
	"github.com/vinayprograms/ocbridge/internal/supervisor"
)

// maxResponseLen bounds a single chat reply.
const maxResponseLen = 4000

// Choice is one option presented for an escalation handshake.
type Choice struct {
	Label string
	Data  string
}

// Transport is the chat layer, an external collaborator. Message and chat
// references are opaque int64 handles.
type Transport interface {
	Send(ctx context.Context, chat int64, text string) (int64, error)
	SendHTML(ctx context.Context, chat int64, htmlText string) (int64, error)
	Edit(ctx context.Context, chat, msg int64, text string) error
	Delete(ctx context.Context, chat, msg int64) error
	PresentChoices(ctx context.Context, chat int64, text string, choices []Choice) (int64, error)
}

// Runner abstracts the process supervisor for tests.
type Runner interface {
	Invoke(ctx context.Context, inv supervisor.Invocation) (supervisor.Result, error)
	Cancel(actorID int64) bool
}

// Turn is one inbound chat message.
type Turn struct {
	ActorID int64
	ChatRef int64
	MsgRef  int64
	ReplyTo int64 // 0 = not a reply
	Text    string
}

// Gateway wires the resolver, prober, builder, supervisor, parser output,
// and escalation coordinator into the turn-handling flow.
type Gateway struct {
	cfg       *config.Config
	log       *logging.Logger
	prober    *probe.Prober
	builder   *invoke.Builder
	runner    Runner
	reg       *registry.Registry
	coord     *autonomy.Coordinator
	transport Transport

	mu        sync.Mutex
	streaming bool
}

// New creates a Gateway.
func New(cfg *config.Config, log *logging.Logger, prober *probe.Prober, builder *invoke.Builder,
	runner Runner, reg *registry.Registry, coord *autonomy.Coordinator, transport Transport) *Gateway {
	return &Gateway{
		cfg:       cfg,
		log:       log.WithComponent("gateway"),
		prober:    prober,
		builder:   builder,
		runner:    runner,
		reg:       reg,
		coord:     coord,
		transport: transport,
		streaming: true,
	}
}

// HandleTurn processes one inbound message. All invocation-path failures
// are converted to user-visible status text; nothing here may take down
// the service.
func (g *Gateway) HandleTurn(ctx context.Context, t Turn) {
	if !g.cfg.Authorized(t.ActorID) {
		g.log.Warn("unauthorized turn", map[string]interface{}{"actor": t.ActorID})
		return
	}

	if strings.HasPrefix(t.Text, "/") {
		g.handleCommand(ctx, t)
		return
	}
	g.handleMessage(ctx, t)
}

func (g *Gateway) handleMessage(ctx context.Context, t Turn) {
	ctx, span := otel.Tracer("ocbridge/gateway").Start(ctx, "turn.handle")
	span.SetAttributes(attribute.Int64("turn.actor_id", t.ActorID))
	defer span.End()

	g.log.Turn(t.ActorID, registry.Excerpt(t.Text))

	sctx := g.reg.Resolve(t.ActorID, t.ReplyTo)
	level := g.coord.Level(sctx.SessionID)
	elevated := level == autonomy.LevelUnsafe

	statusRef, err := g.transport.Send(ctx, t.ChatRef, g.workingStatus(sctx, level))
	if err != nil {
		g.log.Error("failed to send status", map[string]interface{}{"error": err.Error()})
		return
	}

	result, err := g.invokeAgent(ctx, t.ActorID, t.Text, sctx, elevated, t.ChatRef, statusRef)
	if err != nil {
		g.reportInvokeError(ctx, t.ChatRef, statusRef, err)
		return
	}

	response := result.Text
	if response == "" {
		response = "No response from agent"
	}

	// A denial starts the handshake instead of replying; the partial
	// response is discarded. This holds even for unsafe-level sessions:
	// the CLI-side bypass can fail, and the user still gets to decide.
	if g.coord.Denied(response) {
		g.transport.Delete(ctx, t.ChatRef, statusRef)
		g.beginEscalation(ctx, t, sctx, result.SessionID)
		return
	}

	g.transport.Delete(ctx, t.ChatRef, statusRef)
	replyRef := g.sendResponse(ctx, t.ChatRef, response)

	final := sctx
	if result.SessionID != "" {
		final.SessionID = result.SessionID
	}
	g.reg.Commit(t.ActorID, []int64{replyRef}, final, t.Text)

	// Escalation must survive an identity rotation: a non-default level
	// follows the session id the agent actually returned.
	if level != autonomy.LevelOff && result.SessionID != "" && result.SessionID != sctx.SessionID {
		g.coord.SetLevel(result.SessionID, level)
	}
}

// invokeAgent builds and runs one agent invocation, streaming progress into
// the status message.
func (g *Gateway) invokeAgent(ctx context.Context, actorID int64, message string,
	sctx registry.Context, elevated bool, chatRef, statusRef int64) (supervisor.Result, error) {

	attach := g.cfg.Daemon.Attach && g.prober.Available(ctx)
	argv := g.builder.Build(sctx.SessionID, attach)
	argv = invoke.WithPrompt(argv, message, sctx.Continuation)

	g.log.Invocation(sctx.Cwd, sctx.SessionID, attach)

	prefix := "Working..."
	if elevated {
		prefix = "Working... (elevated)"
	} else if sctx.Continuation {
		prefix = "Working... (continuing)"
	}

	inv := supervisor.Invocation{
		ActorID: actorID,
		Argv:    argv,
		Dir:     sctx.Cwd,
	}
	if g.Streaming() {
		inv.OnProgress = func(update string) {
			g.transport.Edit(ctx, chatRef, statusRef, prefix+"\n\n"+update)
		}
	}
	return g.runner.Invoke(ctx, inv)
}

// reportInvokeError converts invocation failures into status-message edits.
func (g *Gateway) reportInvokeError(ctx context.Context, chatRef, statusRef int64, err error) {
	switch {
	case errors.Is(err, supervisor.ErrTimeout):
		g.transport.Edit(ctx, chatRef, statusRef, "Request timed out (5 min limit).")
	case errors.Is(err, supervisor.ErrCanceled):
		g.transport.Edit(ctx, chatRef, statusRef, "🛑 Stopped by user")
	default:
		g.transport.Edit(ctx, chatRef, statusRef, fmt.Sprintf("Error: %v", err))
		g.log.Error("invocation failed", map[string]interface{}{"error": err.Error()})
	}
}

// sendResponse renders and delivers the final response, falling back to
// plain text when HTML delivery fails.
func (g *Gateway) sendResponse(ctx context.Context, chatRef int64, response string) int64 {
	if r := []rune(response); len(r) > maxResponseLen {
		response = string(r[:maxResponseLen]) + "\n\n[Response truncated]"
	}
	ref, err := g.transport.SendHTML(ctx, chatRef, render.MarkdownToHTML(response))
	if err != nil {
		g.log.Warn("html render rejected, sending plain", map[string]interface{}{"error": err.Error()})
		ref, _ = g.transport.Send(ctx, chatRef, response)
	}
	return ref
}

// workingStatus builds the initial status line for a turn.
func (g *Gateway) workingStatus(sctx registry.Context, level autonomy.Level) string {
	status := fmt.Sprintf("Working in %s", shortPath(sctx.Cwd))
	if !g.Streaming() {
		status = fmt.Sprintf("Thinking in %s", shortPath(sctx.Cwd))
	}
	if level != autonomy.LevelOff {
		status += fmt.Sprintf(" %s(%s)", level.Glyph(), level)
	}
	if sctx.Continuation {
		status += fmt.Sprintf(" (session %s)", shortSession(sctx.SessionID))
	}
	return status
}

// Streaming reports whether live tool updates are enabled.
func (g *Gateway) Streaming() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.streaming
}

// ToggleStreaming flips live updates and returns the new state.
func (g *Gateway) ToggleStreaming() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.streaming = !g.streaming
	return g.streaming
}
