package gateway

import (
	"context"
	"strings"

	"github.com/vinayprograms/ocbridge/internal/autonomy"
	"github.com/vinayprograms/ocbridge/internal/registry"
)

// callbackPrefix tags escalation choice payloads.
const callbackPrefix = "perm_"

// beginEscalation registers a pending request and presents the three
// choices for it.
func (g *Gateway) beginEscalation(ctx context.Context, t Turn, sctx registry.Context, sessionID string) {
	if sessionID == "" {
		sessionID = sctx.SessionID
	}
	id := g.coord.Begin(autonomy.Request{
		Message:   t.Text,
		SessionID: sessionID,
		Cwd:       sctx.Cwd,
		ActorID:   t.ActorID,
		ChatRef:   t.ChatRef,
		OriginRef: t.MsgRef,
	})

	prompt := "🔐 The agent needs permission to proceed.\n\n" +
		"Allow once: re-run this request with permissions bypassed.\n" +
		"Always allow: set this session to unsafe mode."
	choices := []Choice{
		{Label: "✅ Allow once", Data: callbackPrefix + "once_" + id},
		{Label: "♾ Always allow", Data: callbackPrefix + "always_" + id},
		{Label: "❌ Deny", Data: callbackPrefix + "deny_" + id},
	}
	if _, err := g.transport.PresentChoices(ctx, t.ChatRef, prompt, choices); err != nil {
		g.log.Error("failed to present escalation", map[string]interface{}{"error": err.Error()})
	}
}

// HandleCallback resolves an escalation choice. The payload is
// "perm_<action>_<id>"; anything else is ignored.
func (g *Gateway) HandleCallback(ctx context.Context, actorID, chatRef, msgRef int64, data string) {
	if !g.cfg.Authorized(actorID) || !strings.HasPrefix(data, callbackPrefix) {
		return
	}
	rest := strings.TrimPrefix(data, callbackPrefix)
	action, id, ok := strings.Cut(rest, "_")
	if !ok {
		return
	}

	req, ok := g.coord.Take(id)
	if !ok {
		g.transport.Edit(ctx, chatRef, msgRef, "Permission request expired.")
		return
	}

	switch action {
	case "deny":
		g.transport.Edit(ctx, chatRef, msgRef, "❌ Action denied.")
		return
	case "always":
		if req.SessionID != "" {
			g.coord.SetLevel(req.SessionID, autonomy.LevelUnsafe)
		}
		g.transport.Edit(ctx, chatRef, msgRef, "⚠️ Session set to unsafe mode. Re-running...")
	case "once":
		g.transport.Edit(ctx, chatRef, msgRef, "✅ Allowed once. Re-running...")
	default:
		return
	}

	g.rerunElevated(ctx, chatRef, req, action == "always")
}

// rerunElevated replays the original request with permissions bypassed.
// The denial check is skipped: the elevated path must never loop back
// into another handshake.
func (g *Gateway) rerunElevated(ctx context.Context, chatRef int64, req autonomy.Request, persist bool) {
	sctx := registry.Context{
		SessionID:    req.SessionID,
		Cwd:          req.Cwd,
		Continuation: req.SessionID != "",
	}

	statusRef, err := g.transport.Send(ctx, chatRef, g.workingStatus(sctx, autonomy.LevelUnsafe))
	if err != nil {
		return
	}

	result, err := g.invokeAgent(ctx, req.ActorID, req.Message, sctx, true, chatRef, statusRef)
	if err != nil {
		g.reportInvokeError(ctx, chatRef, statusRef, err)
		return
	}

	response := result.Text
	if response == "" {
		response = "No response from agent"
	}

	g.transport.Delete(ctx, chatRef, statusRef)
	replyRef := g.sendResponse(ctx, chatRef, response)

	final := sctx
	if result.SessionID != "" {
		final.SessionID = result.SessionID
	}
	g.reg.Commit(req.ActorID, []int64{replyRef}, final, req.Message)

	// "Always" follows the session even when the agent rotated its id.
	if persist && result.SessionID != "" && result.SessionID != req.SessionID {
		g.coord.SetLevel(result.SessionID, autonomy.LevelUnsafe)
	}
}

func shortSession(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func shortPath(p string) string {
	if p == "" {
		return "?"
	}
	return collapseHome(p)
}
