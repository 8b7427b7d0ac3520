package gateway

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/vinayprograms/ocbridge/internal/autonomy"
	"github.com/vinayprograms/ocbridge/internal/gitinfo"
	"github.com/vinayprograms/ocbridge/internal/registry"
)

const helpText = `Commands:
/new [path] - start a fresh session, optionally in a different directory
/cwd - show the working directory and git state
/session [prefix] - list recent sessions, or switch to one by id prefix
/auto [level] - show or set session autonomy (off, low, medium, high, unsafe)
/stop - stop the running request
/status - bridge and agent status
/server - check the agent server
/git [args] - run a read-only git command in the working directory
/stream - toggle live tool updates
/help - this message

Reply to any earlier response to continue that conversation thread.`

// handleCommand dispatches a slash command.
func (g *Gateway) handleCommand(ctx context.Context, t Turn) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(t.Text), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/start":
		g.reply(ctx, t, "OpenCode bridge ready. Send a message to begin, or /help for commands.")
	case "/help":
		g.reply(ctx, t, helpText)
	case "/new":
		g.cmdNew(ctx, t, arg)
	case "/cwd":
		g.cmdCwd(ctx, t)
	case "/session":
		g.cmdSession(ctx, t, arg)
	case "/auto":
		g.cmdAuto(ctx, t, arg)
	case "/stop":
		g.cmdStop(ctx, t)
	case "/status":
		g.cmdStatus(ctx, t)
	case "/server":
		g.cmdServer(ctx, t)
	case "/git":
		g.cmdGit(ctx, t, arg)
	case "/stream":
		g.cmdStream(ctx, t)
	default:
		g.reply(ctx, t, fmt.Sprintf("Unknown command %s. Try /help.", cmd))
	}
}

func (g *Gateway) reply(ctx context.Context, t Turn, text string) {
	if _, err := g.transport.Send(ctx, t.ChatRef, text); err != nil {
		g.log.Error("failed to send reply", map[string]interface{}{"error": err.Error()})
	}
}

// cmdNew clears the active session, optionally moving to a new directory.
// An argument that is neither an existing directory nor path-like is taken
// as the first prompt of the fresh session instead.
func (g *Gateway) cmdNew(ctx context.Context, t Turn, arg string) {
	dir := g.reg.DefaultCwd()
	prompt := ""
	if arg != "" {
		resolved, err := g.reg.ResolveDir(arg)
		switch {
		case err == nil:
			dir = resolved
		case strings.ContainsAny(arg, "/~"):
			g.reply(ctx, t, fmt.Sprintf("Directory not found: %s", arg))
			return
		default:
			prompt = arg
		}
	}
	g.reg.Store().SetActive(t.ActorID, registry.ActorSession{Cwd: dir})

	state, summary := gitinfo.Status(ctx, dir)
	msg := fmt.Sprintf("🆕 New session in %s", shortPath(dir))
	if state != gitinfo.StateUnknown {
		msg += "\n" + summary
	}
	g.reply(ctx, t, msg)

	if prompt != "" {
		first := t
		first.Text = prompt
		first.ReplyTo = 0
		g.handleMessage(ctx, first)
	}
}

// cmdCwd reports the effective working directory and its git state.
func (g *Gateway) cmdCwd(ctx context.Context, t Turn) {
	sctx := g.reg.Resolve(t.ActorID, 0)
	_, summary := gitinfo.Status(ctx, sctx.Cwd)
	g.reply(ctx, t, fmt.Sprintf("📂 %s\n%s", sctx.Cwd, summary))
}

// cmdSession lists history or switches the active session by id prefix.
func (g *Gateway) cmdSession(ctx context.Context, t Turn, arg string) {
	if arg == "" {
		entries := g.reg.Store().History()
		if len(entries) == 0 {
			g.reply(ctx, t, "No sessions yet.")
			return
		}
		var b strings.Builder
		b.WriteString("Recent sessions (newest last):\n")
		start := 0
		if len(entries) > 10 {
			start = len(entries) - 10
		}
		for _, e := range entries[start:] {
			fmt.Fprintf(&b, "\n%s  %s\n  %s", shortSession(e.SessionID), shortPath(e.Cwd), e.FirstMessage)
		}
		b.WriteString("\n\nSwitch with /session <id prefix>.")
		g.reply(ctx, t, b.String())
		return
	}

	entry, ok := g.reg.SwitchTo(t.ActorID, arg)
	if !ok {
		g.reply(ctx, t, fmt.Sprintf("No session matching %q.", arg))
		return
	}
	g.reply(ctx, t, fmt.Sprintf("↩️ Resumed %s in %s", shortSession(entry.SessionID), shortPath(entry.Cwd)))
}

// cmdAuto shows or sets the autonomy level for the active session.
func (g *Gateway) cmdAuto(ctx context.Context, t Turn, arg string) {
	active, ok := g.reg.Store().Active(t.ActorID)
	if !ok || active.SessionID == "" {
		g.reply(ctx, t, "No active session. Send a message first, then set autonomy.")
		return
	}

	if arg == "" {
		current := g.coord.Level(active.SessionID)
		var b strings.Builder
		fmt.Fprintf(&b, "Session %s autonomy: %s %s\n\nLevels:", shortSession(active.SessionID), current.Glyph(), current)
		for _, l := range autonomy.Levels {
			fmt.Fprintf(&b, "\n  %s %s", l.Glyph(), l)
		}
		b.WriteString("\n\nSet with /auto <level>.")
		g.reply(ctx, t, b.String())
		return
	}

	level, ok := autonomy.ParseLevel(arg)
	if !ok {
		g.reply(ctx, t, fmt.Sprintf("Unknown level %q. Levels: off, low, medium, high, unsafe.", arg))
		return
	}
	g.coord.SetLevel(active.SessionID, level)
	g.reply(ctx, t, fmt.Sprintf("%s Session %s set to %s.", level.Glyph(), shortSession(active.SessionID), level))
}

// cmdStop cancels this actor's in-flight invocation, if any.
func (g *Gateway) cmdStop(ctx context.Context, t Turn) {
	if g.runner.Cancel(t.ActorID) {
		g.reply(ctx, t, "🛑 Stopping...")
		return
	}
	g.reply(ctx, t, "Nothing to stop.")
}

// cmdStatus reports the bridge, agent binary, and session store state.
func (g *Gateway) cmdStatus(ctx context.Context, t Turn) {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent: %s (%s)\n", g.cfg.Agent.Path, agentVersion(ctx, g.cfg.Agent.Path))

	sctx := g.reg.Resolve(t.ActorID, 0)
	fmt.Fprintf(&b, "Directory: %s\n", shortPath(sctx.Cwd))
	if sctx.SessionID != "" {
		level := g.coord.Level(sctx.SessionID)
		fmt.Fprintf(&b, "Session: %s %s(%s)\n", shortSession(sctx.SessionID), level.Glyph(), level)
	} else {
		b.WriteString("Session: none\n")
	}

	fmt.Fprintf(&b, "Stored sessions: %d\n", g.reg.Store().SessionCount())
	fmt.Fprintf(&b, "Live updates: %s\n", onOff(g.Streaming()))
	if p := g.reg.Store().Path(); p != "" {
		fmt.Fprintf(&b, "State file: %s", shortPath(p))
	}
	g.reply(ctx, t, strings.TrimSpace(b.String()))
}

// cmdServer force-checks the agent server.
func (g *Gateway) cmdServer(ctx context.Context, t Turn) {
	st := g.prober.Status(ctx)
	if st.Running {
		g.reply(ctx, t, fmt.Sprintf("🟢 Server running at %s\n%s", st.URL, st.Detail))
		return
	}
	g.reply(ctx, t, fmt.Sprintf("🔴 Server not reachable at %s\n%s\nInvocations will run standalone.", st.URL, st.Detail))
}

// cmdGit runs a bounded git command in the session's working directory.
func (g *Gateway) cmdGit(ctx context.Context, t Turn, arg string) {
	sctx := g.reg.Resolve(t.ActorID, 0)
	if arg == "" {
		_, summary := gitinfo.Status(ctx, sctx.Cwd)
		g.reply(ctx, t, summary)
		return
	}
	out, err := gitinfo.Run(ctx, sctx.Cwd, arg, time.Duration(g.cfg.Timeouts.Git)*time.Second)
	if err != nil {
		g.reply(ctx, t, fmt.Sprintf("git %s timed out after %ds.", arg, g.cfg.Timeouts.Git))
		return
	}
	g.reply(ctx, t, out)
}

// cmdStream toggles live tool updates during invocations.
func (g *Gateway) cmdStream(ctx context.Context, t Turn) {
	if g.ToggleStreaming() {
		g.reply(ctx, t, "📺 Live updates on.")
		return
	}
	g.reply(ctx, t, "🔇 Live updates off.")
}

// agentVersion asks the agent binary for its version with a short bound.
func agentVersion(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "unavailable"
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "unknown"
	}
	return v
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// collapseHome replaces a home-directory prefix with "~".
func collapseHome(p string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if p == home {
		return "~"
	}
	if strings.HasPrefix(p, home+string(os.PathSeparator)) {
		return "~" + p[len(home):]
	}
	return p
}
