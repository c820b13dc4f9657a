package command

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/libos-go/internal/cli/output"
	"github.com/yndnr/libos-go/internal/config"
	"github.com/yndnr/libos-go/internal/infra/buildinfo"
	"github.com/yndnr/libos-go/internal/infra/confloader"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "libos-exitctl",
		Usage:   "Drive and inspect the LibOS thread and process exit path",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SimulateCommand(),
			ServeCommand(),
			NotifyCommand(),
			RecordsCommand(),
			StatsCommand(),
			VersionCommand(),
			ShellCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML configuration file",
			EnvVars: []string{"LIBOS_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:  "no-headers",
			Usage: "Omit table headers",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Shorthand for --log-level debug",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Config    string
	Output    string
	NoHeaders bool
	LogLevel  string
	Verbose   bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Config:    c.String("config"),
		Output:    c.String("output"),
		NoHeaders: c.Bool("no-headers"),
		LogLevel:  c.String("log-level"),
		Verbose:   c.Bool("verbose"),
	}
}

// loadConfig loads the configuration with the command line applied on top.
func loadConfig(c *cli.Context) (*config.Config, *confloader.Loader, error) {
	cfg, loader, err := config.Load(ParseGlobalFlags(c).Config, overrides(c))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, loader, nil
}

// overrides collects the configuration keys set by flags.
func overrides(c *cli.Context) map[string]any {
	m := make(map[string]any)
	flags := ParseGlobalFlags(c)
	switch {
	case flags.Verbose:
		m["log.level"] = "debug"
	case flags.LogLevel != "":
		m["log.level"] = flags.LogLevel
	}

	for _, name := range []string{"transport", "bind-addr", "secret-key", "data-dir", "metrics-addr", "tls-cert-file", "tls-key-file"} {
		if c.IsSet(name) {
			m[flagKeys[name]] = c.String(name)
		}
	}
	for _, name := range []string{"pid", "bind-port"} {
		if c.IsSet(name) {
			m[flagKeys[name]] = c.Int(name)
		}
	}
	if c.IsSet("seed") {
		m[flagKeys["seed"]] = c.StringSlice("seed")
	}
	return m
}

// flagKeys maps command flags to configuration keys.
var flagKeys = map[string]string{
	"pid":          "ipc.pid",
	"transport":    "ipc.transport",
	"bind-addr":    "ipc.bind_addr",
	"bind-port":    "ipc.bind_port",
	"seed":         "ipc.seeds",
	"secret-key":   "ipc.secret_key",
	"data-dir":     "storage.data_dir",
	"metrics-addr": "metrics.addr",

	"tls-cert-file": "metrics.tls_cert_file",
	"tls-key-file":  "metrics.tls_key_file",
}

// nodeFlags are the flags of commands that join the IPC cluster.
func nodeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "pid",
			Usage: "LibOS process id this node speaks for",
		},
		&cli.StringFlag{
			Name:  "bind-addr",
			Usage: "Gossip bind address",
		},
		&cli.IntFlag{
			Name:  "bind-port",
			Usage: "Gossip bind port (0 picks a free port)",
		},
		&cli.StringSliceFlag{
			Name:  "seed",
			Usage: "Gossip member to join, as host:port (repeatable)",
		},
		&cli.StringFlag{
			Name:  "secret-key",
			Usage: "Base64 gossip encryption key",
		},
	}
}

func dataDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "data-dir",
		Usage: "Profile store directory",
	}
}

// initLogger builds the logger from the configuration and makes it the
// default.
func initLogger(c *cli.Context, cfg *config.Config) (logger.Logger, error) {
	w := c.App.ErrWriter
	if w == nil {
		w = os.Stderr
	}
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: w,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	return log, nil
}

// render writes data in the selected output format. Tables are laid out
// by view.
func render(c *cli.Context, data any, view output.Tabular) error {
	flags := ParseGlobalFlags(c)
	format, err := output.ParseFormat(flags.Output)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		f := &output.TableFormatter{NoHeaders: flags.NoHeaders}
		return f.Format(writer(c), view)
	}
	return output.NewFormatter(format).Format(writer(c), data)
}

func writer(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
