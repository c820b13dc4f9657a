package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/libos-go/internal/cli/repl"
)

// ShellCommand returns the shell command, which reads commands from
// standard input until exit.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:      "shell",
		Usage:     "Run commands interactively",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "history",
				Usage: "History file (default ~/.libos/history)",
				Value: repl.DefaultFile(),
			},
		},
		Action: runShell,
	}
}

func runShell(c *cli.Context) error {
	global := globalArgs(c)

	var names []string
	for _, cmd := range c.App.Commands {
		if cmd.Name != "shell" && cmd.Name != "help" {
			names = append(names, cmd.Name)
		}
	}

	r := repl.New(repl.Config{
		Input:       c.App.Reader,
		Output:      writer(c),
		Commands:    names,
		HistoryFile: c.String("history"),
		Exec: func(ctx context.Context, args []string) error {
			app := App()
			app.Reader = c.App.Reader
			app.Writer = c.App.Writer
			app.ErrWriter = c.App.ErrWriter
			// A failing line must not end the shell.
			app.ExitErrHandler = func(*cli.Context, error) {}
			line := append([]string{c.App.Name}, global...)
			return app.RunContext(ctx, append(line, args...))
		},
	})
	return r.Run(c.Context)
}

// globalArgs rebuilds the global flags the shell was started with, so that
// every line runs with them.
func globalArgs(c *cli.Context) []string {
	flags := ParseGlobalFlags(c)
	var args []string
	if flags.Config != "" {
		args = append(args, "--config", flags.Config)
	}
	args = append(args, "--output", flags.Output)
	if flags.NoHeaders {
		args = append(args, "--no-headers")
	}
	if flags.LogLevel != "" {
		args = append(args, "--log-level", flags.LogLevel)
	}
	if flags.Verbose {
		args = append(args, "--verbose")
	}
	return args
}
