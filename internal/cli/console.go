package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/dialog"
)

// Handler runs one dialog turn.
type Handler interface {
	Handle(ctx context.Context, ev dialog.Event) (dialog.Reply, error)
}

// Console drives the dialog from a terminal. Chooser rows are printed with
// numbers and typing a number presses that row. Rows stay pressable until
// the next reply without a chooser or the next failed turn.
type Console struct {
	handler Handler
	in      *LineReader
	out     io.Writer
	logger  common.Logger
	rows    []dialog.Row
	userID  int64
}

// NewConsole creates a console session for userID.
func NewConsole(handler Handler, in io.Reader, out io.Writer, userID int64, logger common.Logger) *Console {
	return &Console{
		handler: handler,
		in:      NewLineReader(in),
		out:     out,
		userID:  userID,
		logger:  logger,
	}
}

// Run reads lines until EOF, /quit, or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	c.println(FormatTitle("pricebot"))
	c.println(SubtleStyle.Render("Type /h for commands, a row number to pick it, /quit to leave."))

	for {
		c.print("\n" + FormatPrompt(">"))

		line, err := c.in.ReadLine(ctx)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, ErrInputCancelled):
			c.println("")
			return nil
		case err != nil:
			return fmt.Errorf("failed to read input: %w", err)
		}

		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		c.turn(ctx, c.event(line))
	}
}

// event turns a line into a button press when it names a visible row.
func (c *Console) event(line string) dialog.Event {
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(c.rows) {
		return dialog.NewButtonEvent(c.userID, c.rows[n-1].Payload)
	}
	return dialog.ParseLine(c.userID, line)
}

func (c *Console) turn(ctx context.Context, ev dialog.Event) {
	reply, err := c.handler.Handle(ctx, ev)
	if err != nil {
		c.logger.Debug("Turn failed", common.Fields{"error": err, "kind": ev.Kind.String()})
		c.rows = nil
		text := reply.Text
		if text == "" {
			text = common.UserMessage(err, common.DefaultUserMessage)
		}
		c.println(FormatError(text))
		return
	}

	c.println(FormatReply(reply.Text))
	c.rows = reply.Rows
	for i, row := range reply.Rows {
		c.println(FormatRow(i+1, row.Label))
	}
}

func (c *Console) print(s string) {
	_, _ = io.WriteString(c.out, s)
}

func (c *Console) println(s string) {
	c.print(strings.TrimRight(s, "\n") + "\n")
}
