package gateway

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vinayprograms/ocbridge/internal/autonomy"
	"github.com/vinayprograms/ocbridge/internal/config"
	"github.com/vinayprograms/ocbridge/internal/invoke"
	"github.com/vinayprograms/ocbridge/internal/logging"
	"github.com/vinayprograms/ocbridge/internal/probe"
	"github.com/vinayprograms/ocbridge/internal/registry"
	"github.com/vinayprograms/ocbridge/internal/supervisor"
)

// fakeTransport records every delivery the gateway makes.
type fakeTransport struct {
	nextRef int64
	sends   []string
	htmls   []string
	edits   []string
	deletes []int64
	prompts []string
	choices [][]Choice
}

func (f *fakeTransport) ref() int64 {
	f.nextRef++
	return f.nextRef
}

func (f *fakeTransport) Send(ctx context.Context, chat int64, text string) (int64, error) {
	f.sends = append(f.sends, text)
	return f.ref(), nil
}

func (f *fakeTransport) SendHTML(ctx context.Context, chat int64, htmlText string) (int64, error) {
	f.htmls = append(f.htmls, htmlText)
	return f.ref(), nil
}

func (f *fakeTransport) Edit(ctx context.Context, chat, msg int64, text string) error {
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeTransport) Delete(ctx context.Context, chat, msg int64) error {
	f.deletes = append(f.deletes, msg)
	return nil
}

func (f *fakeTransport) PresentChoices(ctx context.Context, chat int64, text string, choices []Choice) (int64, error) {
	f.prompts = append(f.prompts, text)
	f.choices = append(f.choices, choices)
	return f.ref(), nil
}

// fakeRunner plays back scripted invocation results.
type fakeRunner struct {
	results  []supervisor.Result
	errs     []error
	invoked  []supervisor.Invocation
	canceled []int64
}

func (f *fakeRunner) Invoke(ctx context.Context, inv supervisor.Invocation) (supervisor.Result, error) {
	f.invoked = append(f.invoked, inv)
	i := len(f.invoked) - 1
	var res supervisor.Result
	var err error
	if i < len(f.results) {
		res = f.results[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return res, err
}

func (f *fakeRunner) Cancel(actorID int64) bool {
	f.canceled = append(f.canceled, actorID)
	return true
}

type fixture struct {
	gw        *Gateway
	transport *fakeTransport
	runner    *fakeRunner
	store     *registry.Store
	coord     *autonomy.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.New()
	cfg.Access.AllowedActors = []int64{42}
	cfg.Agent.DefaultCwd = t.TempDir()
	cfg.Daemon.Attach = false

	log := logging.New()
	store := registry.NewStore("", log)
	reg := registry.New(store, cfg.Agent.DefaultCwd)
	coord := autonomy.NewCoordinator(store, nil)
	transport := &fakeTransport{}
	runner := &fakeRunner{}

	gw := New(cfg, log, probe.New(cfg.Daemon.URL), invoke.NewBuilder(cfg.Agent.Path, cfg.Daemon.URL),
		runner, reg, coord, transport)
	return &fixture{gw: gw, transport: transport, runner: runner, store: store, coord: coord}
}

func TestUnauthorizedActorIgnored(t *testing.T) {
	f := newFixture(t)
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 99, ChatRef: 1, Text: "hello"})
	if len(f.transport.sends) != 0 || len(f.runner.invoked) != 0 {
		t.Errorf("unauthorized turn must produce nothing")
	}
}

func TestTurnDeliversResponseAndCommits(t *testing.T) {
	f := newFixture(t)
	f.runner.results = []supervisor.Result{{Text: "done", SessionID: "ses_abc12345"}}

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, MsgRef: 5, Text: "list files"})

	if len(f.transport.sends) != 1 || !strings.HasPrefix(f.transport.sends[0], "Working in ") {
		t.Errorf("status = %v", f.transport.sends)
	}
	if len(f.transport.deletes) != 1 {
		t.Errorf("status not deleted: %v", f.transport.deletes)
	}
	if len(f.transport.htmls) != 1 || f.transport.htmls[0] != "done" {
		t.Errorf("response = %v", f.transport.htmls)
	}

	active, ok := f.store.Active(42)
	if !ok || active.SessionID != "ses_abc12345" {
		t.Errorf("active after commit = %+v", active)
	}
	if h := f.store.History(); len(h) != 1 || h[0].FirstMessage != "list files" {
		t.Errorf("history = %+v", h)
	}

	// Next turn continues the session and skips the preamble.
	f.runner.results = append(f.runner.results, supervisor.Result{Text: "ok", SessionID: "ses_abc12345"})
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, MsgRef: 6, Text: "again"})

	argv := f.runner.invoked[1].Argv
	joined := strings.Join(argv, " ")
	if !strings.Contains(joined, "--session ses_abc12345") {
		t.Errorf("continuation argv = %v", argv)
	}
	if strings.Contains(argv[len(argv)-1], "[Bridge Context") {
		t.Errorf("preamble repeated on continuation")
	}
}

func TestEmptyResponseFallback(t *testing.T) {
	f := newFixture(t)
	f.runner.results = []supervisor.Result{{}}
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "hi"})
	if len(f.transport.htmls) != 1 || f.transport.htmls[0] != "No response from agent" {
		t.Errorf("fallback = %v", f.transport.htmls)
	}
}

func TestLongResponseTruncated(t *testing.T) {
	f := newFixture(t)
	f.runner.results = []supervisor.Result{{Text: strings.Repeat("x", 5000)}}
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "hi"})
	got := f.transport.htmls[0]
	if !strings.Contains(got, "[Response truncated]") {
		t.Errorf("no truncation marker")
	}
	if len(got) > maxResponseLen+100 {
		t.Errorf("response too long: %d", len(got))
	}
}

func TestTruncationKeepsValidUTF8(t *testing.T) {
	f := newFixture(t)
	// Multi-byte runes straddling the cut must not be split.
	f.runner.results = []supervisor.Result{{Text: strings.Repeat("é", 4100)}}
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "hi"})
	got := f.transport.htmls[0]
	if !utf8.ValidString(got) {
		t.Errorf("truncated response is not valid UTF-8")
	}
	if !strings.Contains(got, "[Response truncated]") {
		t.Errorf("no truncation marker")
	}
	if n := utf8.RuneCountInString(got); n > maxResponseLen+30 {
		t.Errorf("rune count = %d", n)
	}
}

func TestTimeoutEditsStatus(t *testing.T) {
	f := newFixture(t)
	f.runner.errs = []error{supervisor.ErrTimeout}
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "hi"})
	if len(f.transport.edits) != 1 || !strings.Contains(f.transport.edits[0], "timed out") {
		t.Errorf("edits = %v", f.transport.edits)
	}
	if len(f.transport.htmls) != 0 {
		t.Errorf("no response expected on timeout")
	}
}

func TestDenialStartsEscalation(t *testing.T) {
	f := newFixture(t)
	f.runner.results = []supervisor.Result{{Text: "Error: insufficient permission for bash", SessionID: "ses_abc12345"}}

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, MsgRef: 5, Text: "delete the temp dir"})

	if len(f.transport.choices) != 1 || len(f.transport.choices[0]) != 3 {
		t.Fatalf("choices = %v", f.transport.choices)
	}
	if len(f.transport.htmls) != 0 {
		t.Errorf("denial text must not be delivered: %v", f.transport.htmls)
	}
	if f.coord.Pending() != 1 {
		t.Errorf("pending = %d", f.coord.Pending())
	}
	// The denial itself never changes autonomy.
	if lvl := f.coord.Level("ses_abc12345"); lvl != autonomy.LevelOff {
		t.Errorf("level = %q", lvl)
	}
	if _, ok := f.store.Active(42); ok {
		t.Errorf("denied turn must not commit")
	}
}

func TestEscalationDeny(t *testing.T) {
	f := newFixture(t)
	f.runner.results = []supervisor.Result{{Text: "insufficient permission"}}
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "risky"})

	data := f.transport.choices[0][2].Data // deny
	f.gw.HandleCallback(context.Background(), 42, 1, 9, data)

	if len(f.runner.invoked) != 1 {
		t.Errorf("deny must not re-run")
	}
	if !strings.Contains(f.transport.edits[len(f.transport.edits)-1], "denied") {
		t.Errorf("edits = %v", f.transport.edits)
	}
	if f.coord.Pending() != 0 {
		t.Errorf("request not consumed")
	}
}

func TestEscalationOnceRerunsWithoutLevelChange(t *testing.T) {
	f := newFixture(t)
	f.runner.results = []supervisor.Result{
		{Text: "insufficient permission", SessionID: "ses_abc12345"},
		{Text: "deleted", SessionID: "ses_abc12345"},
	}
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "risky"})

	data := f.transport.choices[0][0].Data // once
	f.gw.HandleCallback(context.Background(), 42, 1, 9, data)

	if len(f.runner.invoked) != 2 {
		t.Fatalf("expected re-run, invoked = %d", len(f.runner.invoked))
	}
	if f.transport.htmls[len(f.transport.htmls)-1] != "deleted" {
		t.Errorf("htmls = %v", f.transport.htmls)
	}
	if lvl := f.coord.Level("ses_abc12345"); lvl != autonomy.LevelOff {
		t.Errorf("once must not persist a level: %q", lvl)
	}
	// Even an elevated response matching a denial phrase is delivered.
	if len(f.transport.choices) != 1 {
		t.Errorf("elevated path must not loop into another handshake")
	}
}

func TestEscalationAlwaysPropagatesToRotatedSession(t *testing.T) {
	f := newFixture(t)
	f.store.SetActive(42, registry.ActorSession{SessionID: "ses_abc12345", Cwd: t.TempDir()})
	f.runner.results = []supervisor.Result{
		{Text: "insufficient permission", SessionID: "ses_abc12345"},
		{Text: "done", SessionID: "ses_xyz99999"}, // agent rotated the id
	}

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "risky"})
	data := f.transport.choices[0][1].Data // always
	f.gw.HandleCallback(context.Background(), 42, 1, 9, data)

	if lvl := f.coord.Level("ses_abc12345"); lvl != autonomy.LevelUnsafe {
		t.Errorf("original session level = %q", lvl)
	}
	if lvl := f.coord.Level("ses_xyz99999"); lvl != autonomy.LevelUnsafe {
		t.Errorf("rotated session level = %q", lvl)
	}
	active, _ := f.store.Active(42)
	if active.SessionID != "ses_xyz99999" {
		t.Errorf("active should follow the rotated id: %+v", active)
	}
}

func TestEscalationExpired(t *testing.T) {
	f := newFixture(t)
	f.gw.HandleCallback(context.Background(), 42, 1, 9, "perm_once_deadbeef")
	if len(f.transport.edits) != 1 || !strings.Contains(f.transport.edits[0], "expired") {
		t.Errorf("edits = %v", f.transport.edits)
	}
}

func TestUnsafeLevelDeliversNormalResponse(t *testing.T) {
	f := newFixture(t)
	f.store.SetActive(42, registry.ActorSession{SessionID: "ses_abc12345", Cwd: t.TempDir()})
	f.coord.SetLevel("ses_abc12345", autonomy.LevelUnsafe)
	f.runner.results = []supervisor.Result{{Text: "deleted", SessionID: "ses_abc12345"}}

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "risky"})

	if len(f.transport.choices) != 0 {
		t.Errorf("no handshake expected: %v", f.transport.choices)
	}
	if len(f.transport.htmls) != 1 || f.transport.htmls[0] != "deleted" {
		t.Errorf("htmls = %v", f.transport.htmls)
	}
}

func TestUnsafeLevelDenialStillEscalates(t *testing.T) {
	// The CLI elevation can fail; a denial at any level re-enters the
	// handshake instead of surfacing the error text.
	f := newFixture(t)
	f.store.SetActive(42, registry.ActorSession{SessionID: "ses_abc12345", Cwd: t.TempDir()})
	f.coord.SetLevel("ses_abc12345", autonomy.LevelUnsafe)
	f.runner.results = []supervisor.Result{{Text: "Error: insufficient permission", SessionID: "ses_abc12345"}}

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "risky"})

	if len(f.transport.choices) != 1 || len(f.transport.choices[0]) != 3 {
		t.Fatalf("choices = %v", f.transport.choices)
	}
	if len(f.transport.htmls) != 0 {
		t.Errorf("denial text must not be delivered: %v", f.transport.htmls)
	}
}

func TestStopCommand(t *testing.T) {
	f := newFixture(t)
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/stop"})
	if len(f.runner.canceled) != 1 || f.runner.canceled[0] != 42 {
		t.Errorf("canceled = %v", f.runner.canceled)
	}
	if len(f.transport.sends) != 1 || !strings.Contains(f.transport.sends[0], "Stopping") {
		t.Errorf("sends = %v", f.transport.sends)
	}
}

func TestAutoCommandRequiresSession(t *testing.T) {
	f := newFixture(t)
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/auto unsafe"})
	if !strings.Contains(f.transport.sends[0], "No active session") {
		t.Errorf("sends = %v", f.transport.sends)
	}

	f.store.SetActive(42, registry.ActorSession{SessionID: "ses_abc12345"})
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/auto high"})
	if lvl := f.coord.Level("ses_abc12345"); lvl != autonomy.LevelHigh {
		t.Errorf("level = %q", lvl)
	}

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/auto turbo"})
	if !strings.Contains(f.transport.sends[len(f.transport.sends)-1], "Unknown level") {
		t.Errorf("sends = %v", f.transport.sends)
	}
}

func TestSessionCommandSwitches(t *testing.T) {
	f := newFixture(t)
	f.store.AppendHistory(registry.HistoryEntry{SessionID: "ses_abc12345", Cwd: "/a", FirstMessage: "fix the tests"})

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/session"})
	if !strings.Contains(f.transport.sends[0], "ses_abc12345") {
		t.Errorf("listing = %v", f.transport.sends)
	}

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/session ses_abc"})
	active, _ := f.store.Active(42)
	if active.SessionID != "ses_abc12345" {
		t.Errorf("active = %+v", active)
	}

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/session ses_zzz"})
	if !strings.Contains(f.transport.sends[len(f.transport.sends)-1], "No session matching") {
		t.Errorf("sends = %v", f.transport.sends)
	}
}

func TestNewCommandResetsSession(t *testing.T) {
	f := newFixture(t)
	f.store.SetActive(42, registry.ActorSession{SessionID: "ses_abc12345", Cwd: "/old"})

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/new"})
	active, _ := f.store.Active(42)
	if active.SessionID != "" {
		t.Errorf("session should be cleared: %+v", active)
	}

	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/new /does/not/exist"})
	if !strings.Contains(f.transport.sends[len(f.transport.sends)-1], "Directory not found") {
		t.Errorf("sends = %v", f.transport.sends)
	}
}

func TestNewCommandWithPromptStartsSessionAndInvokes(t *testing.T) {
	f := newFixture(t)
	f.store.SetActive(42, registry.ActorSession{SessionID: "ses_abc12345", Cwd: "/old"})
	f.runner.results = []supervisor.Result{{Text: "on it", SessionID: "ses_xyz99999"}}

	// Not a directory and not path-like: treated as the first prompt.
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/new fix the tests"})

	if !strings.Contains(f.transport.sends[0], "New session in") {
		t.Errorf("header = %v", f.transport.sends)
	}
	if len(f.runner.invoked) != 1 {
		t.Fatalf("invoked = %d", len(f.runner.invoked))
	}
	argv := f.runner.invoked[0].Argv
	if !strings.Contains(argv[len(argv)-1], "fix the tests") {
		t.Errorf("prompt argv = %v", argv)
	}
	if joined := strings.Join(argv, " "); strings.Contains(joined, "--session") {
		t.Errorf("fresh session must not resume: %v", argv)
	}
	if f.transport.htmls[len(f.transport.htmls)-1] != "on it" {
		t.Errorf("htmls = %v", f.transport.htmls)
	}
	active, _ := f.store.Active(42)
	if active.SessionID != "ses_xyz99999" {
		t.Errorf("active = %+v", active)
	}
}

func TestStreamToggle(t *testing.T) {
	f := newFixture(t)
	if !f.gw.Streaming() {
		t.Fatalf("streaming should default on")
	}
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/stream"})
	if f.gw.Streaming() {
		t.Errorf("streaming should be off")
	}

	// With streaming off, invocations carry no progress callback.
	f.runner.results = []supervisor.Result{{Text: "ok"}}
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "hello"})
	if f.runner.invoked[0].OnProgress != nil {
		t.Errorf("progress callback should be nil when streaming is off")
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	f.gw.HandleTurn(context.Background(), Turn{ActorID: 42, ChatRef: 1, Text: "/bogus"})
	if !strings.Contains(f.transport.sends[0], "Unknown command") {
		t.Errorf("sends = %v", f.transport.sends)
	}
}
