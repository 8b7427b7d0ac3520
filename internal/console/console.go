// Package console is a terminal chat transport: one actor, stdin turns,
// stdout replies. It exists so the bridge can be driven locally without
// any chat network attached.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/vinayprograms/ocbridge/internal/gateway"
)

// Console implements gateway.Transport over a terminal. Message refs are
// a simple counter; edits re-print and deletes are silent.
type Console struct {
	actorID int64
	in      io.Reader
	out     io.Writer

	gw *gateway.Gateway

	mu      sync.Mutex
	nextRef int64
	pending []gateway.Choice
}

// New creates a console bound to one actor id.
func New(actorID int64, in io.Reader, out io.Writer) *Console {
	return &Console{actorID: actorID, in: in, out: out}
}

// SetGateway wires the gateway after construction. The gateway needs the
// transport first, so this closes the loop.
func (c *Console) SetGateway(gw *gateway.Gateway) {
	c.gw = gw
}

// Run reads turns from the input until EOF. Numeric input resolves a
// pending permission choice; everything else is a chat turn.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, "ocbridge console. /help for commands, ctrl-d to exit.")
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if choice, ok := c.takeChoice(line); ok {
			c.gw.HandleCallback(ctx, c.actorID, 0, c.ref(), choice.Data)
			continue
		}

		c.gw.HandleTurn(ctx, gateway.Turn{
			ActorID: c.actorID,
			MsgRef:  c.ref(),
			Text:    line,
		})
	}
	return scanner.Err()
}

// takeChoice consumes a pending escalation choice when the line is its
// 1-based index.
func (c *Console) takeChoice(line string) (gateway.Choice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return gateway.Choice{}, false
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(c.pending) {
		return gateway.Choice{}, false
	}
	choice := c.pending[n-1]
	c.pending = nil
	return choice, true
}

func (c *Console) ref() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextRef++
	return c.nextRef
}

// Send prints a message and returns its ref.
func (c *Console) Send(ctx context.Context, chat int64, text string) (int64, error) {
	fmt.Fprintln(c.out, text)
	return c.ref(), nil
}

// SendHTML strips nothing; the console shows the markup as-is.
func (c *Console) SendHTML(ctx context.Context, chat int64, htmlText string) (int64, error) {
	return c.Send(ctx, chat, htmlText)
}

// Edit re-prints the updated text.
func (c *Console) Edit(ctx context.Context, chat, msg int64, text string) error {
	fmt.Fprintln(c.out, text)
	return nil
}

// Delete is a no-op; a terminal has no message recall.
func (c *Console) Delete(ctx context.Context, chat, msg int64) error {
	return nil
}

// PresentChoices prints numbered options and arms the next numeric input.
func (c *Console) PresentChoices(ctx context.Context, chat int64, text string, choices []gateway.Choice) (int64, error) {
	c.mu.Lock()
	c.pending = choices
	c.mu.Unlock()

	fmt.Fprintln(c.out, text)
	for i, ch := range choices {
		fmt.Fprintf(c.out, "  %d. %s\n", i+1, ch.Label)
	}
	fmt.Fprintln(c.out, "Type a number to choose.")
	return c.ref(), nil
}
