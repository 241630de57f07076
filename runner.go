package drover

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/droverlabs/drover/pkg/domain"
)

// Runner drives an interactive chat loop over provided IO. The indirection
// keeps the loop testable and lets different frontends (plain CLI, TUI)
// supply their own rendering.
type Runner struct {
	Input  io.Reader
	Output io.Writer
	// Headless suppresses the banner and prompt, for piped input.
	Headless bool
	// Renderer transforms assistant responses before printing, e.g.
	// markdown to ANSI. A rendering error falls back to the raw text.
	Renderer ContentRenderer
	// UserID tags every turn; optional.
	UserID string
	// ConversationID resumes an existing conversation. Left empty, the
	// first turn starts a new one and the loop sticks with it.
	ConversationID string
}

// ContentRenderer transforms response content before it is written.
type ContentRenderer func(string) (string, error)

// Run reads messages line by line and handles one turn per line until EOF
// or an exit command. Failed turns are reported and the loop continues; the
// conversation stays usable.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lineReader := bufio.NewReader(r.Input)

	if !r.Headless {
		fmt.Fprintln(r.Output, "--- drover chat (exit to quit) ---")
	}

	for {
		if !r.Headless {
			fmt.Fprint(r.Output, "> ")
		}
		text, err := lineReader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line := strings.TrimSpace(text); line != "" {
					if err := r.turn(ctx, engine, line); err != nil {
						return err
					}
				}
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		line := strings.TrimSpace(text)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			if !r.Headless {
				fmt.Fprintln(r.Output, "Bye!")
			}
			return nil
		}

		if err := r.turn(ctx, engine, line); err != nil {
			return err
		}
	}
}

func (r *Runner) turn(ctx context.Context, engine *Engine, message string) error {
	result, err := engine.Handle(ctx, TurnRequest{
		ConversationID: r.ConversationID,
		Message:        message,
		UserID:         r.UserID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmptyMessage) {
			return nil
		}
		return fmt.Errorf("turn failed: %w", err)
	}
	r.ConversationID = result.ConversationID

	if result.Err != nil {
		fmt.Fprintf(r.Output, "[turn failed: %v]\n", result.Err)
		return nil
	}

	output := result.Response
	if r.Renderer != nil {
		if rendered, err := r.Renderer(output); err == nil {
			output = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(output))
	return nil
}
