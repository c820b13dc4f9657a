package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultPrompt is printed before every line.
const DefaultPrompt = "libos> "

// Executor runs one command line, already split into arguments.
type Executor func(ctx context.Context, args []string) error

// Config configures a REPL.
type Config struct {
	Input  io.Reader
	Output io.Writer
	Prompt string
	// Commands are the names the executor understands. Other first words
	// are rejected with suggestions.
	Commands []string
	// HistoryFile persists history across sessions. Empty keeps it in
	// memory.
	HistoryFile string
	Exec        Executor
}

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	prompt    string
	exec      Executor
	known     map[string]bool
	completer *Completer
	history   *History
}

// New creates a new REPL instance.
func New(cfg Config) *REPL {
	if cfg.Input == nil {
		cfg.Input = os.Stdin
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}

	known := make(map[string]bool, len(cfg.Commands))
	for _, c := range cfg.Commands {
		known[c] = true
	}
	return &REPL{
		input:     cfg.Input,
		output:    cfg.Output,
		prompt:    cfg.Prompt,
		exec:      cfg.Exec,
		known:     known,
		completer: NewCompleter(cfg.Commands...),
		history:   NewHistory(cfg.HistoryFile, 0),
	}
}

// History returns the session history.
func (r *REPL) History() *History {
	return r.history
}

// Run reads and executes lines until exit, end of input or the end of ctx.
// A failing command is reported and the loop goes on.
func (r *REPL) Run(ctx context.Context) error {
	if err := r.history.Load(); err != nil {
		fmt.Fprintf(r.output, "warning: cannot load history: %v\n", err)
	}
	defer func() {
		if err := r.history.Save(); err != nil {
			fmt.Fprintf(r.output, "warning: cannot save history: %v\n", err)
		}
	}()

	reader := bufio.NewReader(r.input)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(r.output, r.prompt)

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimSpace(line)
		if line == "" {
			if eof {
				fmt.Fprintln(r.output)
				return nil
			}
			continue
		}
		r.history.Add(line)

		if line == "exit" || line == "quit" {
			return nil
		}
		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
		}
		if eof {
			return nil
		}
	}
}

func (r *REPL) execute(ctx context.Context, line string) error {
	args := strings.Fields(line)
	switch args[0] {
	case "help":
		r.help()
		return nil
	case "history":
		r.printHistory()
		return nil
	}

	if !r.known[args[0]] {
		if s := r.completer.Complete(args[0]); len(s) > 0 {
			return fmt.Errorf("unknown command %q, did you mean: %s", args[0], strings.Join(s, ", "))
		}
		return fmt.Errorf("unknown command %q, type help for a list", args[0])
	}
	if r.exec == nil {
		return errors.New("no executor configured")
	}
	return r.exec(ctx, args)
}

func (r *REPL) help() {
	fmt.Fprintln(r.output, "Commands:")
	for _, c := range r.completer.Complete("") {
		fmt.Fprintf(r.output, "  %s\n", c)
	}
	fmt.Fprintln(r.output, "Run <command> --help for its flags.")
}

func (r *REPL) printHistory() {
	n := r.history.Len()
	for i := n - 1; i >= 0; i-- {
		fmt.Fprintf(r.output, "%4d  %s\n", n-i, r.history.Get(i))
	}
}
