package cadence

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/cadence/pkg/domain"
)

// Runner drives a conversation loop over provided IO. It exists so the CLI,
// tests, and embedders can share one loop without coupling the engine to a
// terminal.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	ThreadID string

	// Renderer transforms response text before output, e.g. markdown to ANSI.
	Renderer ContentRenderer

	// OnSuspension executes a suspended action and returns its outputs. When
	// nil, suspensions are reported and the loop continues without resuming.
	OnSuspension func(ctx context.Context, s *Suspension) (map[string]any, error)

	// Headless suppresses the banner and prompt decorations.
	Headless bool
}

// ContentRenderer transforms response text before it is written.
type ContentRenderer func(string) (string, error)

// Suspension aliases the domain type for runner callbacks.
type Suspension = domain.Suspension

// NewRunner creates a Runner; the caller sets Input/Output (use os.Stdin and
// os.Stdout for a terminal).
func NewRunner(threadID string) *Runner {
	return &Runner{ThreadID: threadID}
}

// Run executes the conversation loop until EOF or an exit command.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	if r.ThreadID == "" {
		return fmt.Errorf("thread ID must be set")
	}

	lineReader := bufio.NewReader(r.Input)
	if !r.Headless {
		fmt.Fprintf(r.Output, "--- Cadence (thread %s) ---\n", r.ThreadID)
	}

	for {
		if !r.Headless {
			fmt.Fprint(r.Output, "> ")
		}
		text, err := lineReader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		input := strings.TrimSpace(text)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		}

		result, err := engine.Converse(ctx, r.ThreadID, input)
		if err != nil {
			return fmt.Errorf("conversation error: %w", err)
		}
		r.print(result.Response)

		for result.Suspension != nil {
			if r.OnSuspension == nil {
				fmt.Fprintf(r.Output, "[action %q is pending; resume with token %s]\n",
					result.Suspension.Action.Name, result.Suspension.ResumeToken)
				break
			}
			outputs, err := r.OnSuspension(ctx, result.Suspension)
			if err != nil {
				return fmt.Errorf("action error: %w", err)
			}
			result, err = engine.Resume(ctx, r.ThreadID, result.Suspension.ResumeToken, outputs)
			if err != nil {
				return fmt.Errorf("resume error: %w", err)
			}
			r.print(result.Response)
		}
	}
}

func (r *Runner) print(msg string) {
	if msg == "" {
		return
	}
	output := msg
	if r.Renderer != nil {
		if rendered, err := r.Renderer(msg); err == nil {
			output = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(output))
}
