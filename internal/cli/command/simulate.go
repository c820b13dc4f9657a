package command

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/libos-go/internal/cli/output"
	"github.com/yndnr/libos-go/internal/sim"
	"github.com/yndnr/libos-go/internal/storage"
)

// SimulateCommand returns the simulate command.
func SimulateCommand() *cli.Command {
	names := make([]string, 0, len(sim.Scenarios()))
	for _, s := range sim.Scenarios() {
		names = append(names, string(s))
	}

	return &cli.Command{
		Name:      "simulate",
		Aliases:   []string{"sim"},
		Usage:     "Run an exit scenario on in-process LibOS processes",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scenario",
				Aliases: []string{"s"},
				Usage:   "Scenario: " + strings.Join(names, ", "),
				Value:   string(sim.SelfExit),
			},
			&cli.IntFlag{
				Name:    "threads",
				Aliases: []string{"n"},
				Usage:   "Thread count of the multi-thread scenarios",
				Value:   sim.DefaultThreads,
			},
			&cli.IntFlag{
				Name:  "code",
				Usage: "Exit code passed to exit or exit_group",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up if the processes have not exited by then",
				Value: sim.DefaultTimeout,
			},
			dataDirFlag(),
		},
		Action: runSimulate,
	}
}

func runSimulate(c *cli.Context) error {
	scenario, err := sim.ParseScenario(c.String("scenario"))
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := initLogger(c, cfg)
	if err != nil {
		return err
	}

	opts := sim.Options{
		Scenario: scenario,
		Threads:  c.Int("threads"),
		ExitCode: c.Int("code"),
		Config:   cfg,
		Logger:   log,
		Timeout:  c.Duration("timeout"),
	}
	if cfg.Storage.DataDir != "" {
		storeCfg, err := storage.ConfigFromSection(cfg.Storage)
		if err != nil {
			return err
		}
		store, err := storage.Open(storeCfg, log)
		if err != nil {
			return fmt.Errorf("open profile store: %w", err)
		}
		defer store.Close()
		opts.Store = store
	}

	rep, err := sim.Run(c.Context, opts)
	if err != nil {
		return err
	}
	return render(c, rep, reportView{rep})
}

type reportView struct {
	rep *sim.Report
}

func (v reportView) Tables() []*output.Table {
	title := fmt.Sprintf("SCENARIO %s (%s, %d records)", v.rep.Scenario, output.Duration(v.rep.Duration), v.rep.Records)
	procs := output.NewTable(title, "PID", "THREADS", "EXITED", "CODE", "STATE", "LIVE", "SIGCHLD", "DUPLICATES")
	counters := output.NewTable("COUNTERS", "PID", "TERMINATED", "NOTIFIED", "OUTCOME", "RELEASED")
	for _, p := range v.rep.Processes {
		procs.AddRow(
			fmt.Sprint(p.PID),
			fmt.Sprint(p.Threads),
			output.Bool(p.Exited),
			fmt.Sprint(p.ExitCode),
			p.State,
			fmt.Sprint(p.LiveThreads),
			output.Number(p.Sigchld),
			output.Number(p.Duplicates),
		)
		counters.AddRow(
			fmt.Sprint(p.PID),
			output.Counters(p.Terminated),
			output.Counters(p.Notifications),
			output.Counters(p.Outcomes),
			output.Counters(p.Released),
		)
	}
	tables := []*output.Table{procs, counters}

	if parent := v.rep.Parent; parent != nil {
		t := output.NewTable("PARENT", "TID", "REAPABLE", "PENDING", "PULSES")
		exited := make([]string, 0, len(parent.Exited))
		for _, tid := range parent.Exited {
			exited = append(exited, fmt.Sprint(tid))
		}
		pending := make([]string, 0, len(parent.Pending))
		for _, si := range parent.Pending {
			pending = append(pending, fmt.Sprintf("signo=%d pid=%d status=%#x", si.Signo, si.PID, si.Status))
		}
		t.AddRow(fmt.Sprint(parent.TID), joinOrDash(exited), joinOrDash(pending), fmt.Sprint(parent.Pulses))
		tables = append(tables, t)
	}
	return tables
}

func joinOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, "; ")
}
