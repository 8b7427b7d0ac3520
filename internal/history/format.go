package history

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/ocbridge/internal/autonomy"
	"github.com/vinayprograms/ocbridge/internal/logging"
	"github.com/vinayprograms/ocbridge/internal/registry"
)

// Render loads the state file and formats the full session history view.
// Each call reloads from disk so the live pager always shows current state.
func Render(path string, log *logging.Logger) (string, error) {
	store := registry.NewStore(path, log)
	store.Load()

	var b strings.Builder

	b.WriteString(titleStyle.Render("Session history"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(path))
	b.WriteString("\n\n")

	entries := store.History()
	if len(entries) == 0 {
		b.WriteString(dimStyle.Render("No sessions recorded yet."))
		b.WriteString("\n")
		return b.String(), nil
	}

	active := activeIDs(store)
	levels := store.AutonomyMap()

	for i, e := range entries {
		seq := seqStyle.Render(fmt.Sprintf("%d", i+1))
		when := dimStyle.Render(e.Started.Format("2006-01-02 15:04"))
		id := sessionStyle.Render(e.SessionID)
		if active[e.SessionID] {
			id += " " + activeStyle.Render("●")
		}
		if lvl, ok := levels[e.SessionID]; ok {
			if lvl == string(autonomy.LevelUnsafe) {
				id += " " + unsafeStyle.Render("["+lvl+"]")
			} else {
				id += " " + levelStyle.Render("["+lvl+"]")
			}
		}

		fmt.Fprintf(&b, "%s │ %s │ %s\n", seq, when, id)
		fmt.Fprintf(&b, "%s │ %s │ %s\n", seqStyle.Render(""), dimStyle.Render("    cwd"), cwdStyle.Render(e.Cwd))
		if e.FirstMessage != "" {
			fmt.Fprintf(&b, "%s │ %s │ %s\n", seqStyle.Render(""), dimStyle.Render("  first"), valueStyle.Render(e.FirstMessage))
		}
		b.WriteString("\n")
	}

	b.WriteString(divider)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s\n", dimStyle.Render(fmt.Sprintf("%d sessions, %d reply handles", len(entries), store.SessionCount())))

	return b.String(), nil
}

// activeIDs collects the session ids currently pointed at by any actor.
func activeIDs(store *registry.Store) map[string]bool {
	ids := make(map[string]bool)
	for _, a := range store.ActiveSessions() {
		if a.SessionID != "" {
			ids[a.SessionID] = true
		}
	}
	return ids
}
