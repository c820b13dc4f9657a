package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/libos-go/internal/cli/output"
	"github.com/yndnr/libos-go/internal/ipc"
)

// notifyPID is the default process id of the short-lived notify node. It
// only has to differ from the destination's.
const notifyPID = 1 << 30

// NotifyCommand returns the notify command.
func NotifyCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:     "dest",
			Usage:    "Process id of the parent to notify",
			Required: true,
		},
		&cli.IntFlag{
			Name:     "child",
			Usage:    "Thread id of the exited child",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "code",
			Usage: "Exit code of the child",
		},
		&cli.IntFlag{
			Name:  "signal",
			Usage: "Signal that terminated the child, 0 for a normal exit",
		},
	}

	return &cli.Command{
		Name:      "notify",
		Usage:     "Send a child-exit message to a running node",
		ArgsUsage: " ",
		Flags:     append(nodeFlags(), flags...),
		Action:    runNotify,
	}
}

// notice is the outcome of a notify run.
type notice struct {
	From       int32  `json:"from" yaml:"from"`
	Dest       int32  `json:"dest" yaml:"dest"`
	ChildTID   int32  `json:"child_tid" yaml:"child_tid"`
	ExitCode   int    `json:"exit_code" yaml:"exit_code"`
	TermSignal int    `json:"term_signal" yaml:"term_signal"`
	Via        string `json:"via" yaml:"via"`
}

func (n notice) Tables() []*output.Table {
	t := output.NewTable("", "FROM", "DEST", "CHILD", "CODE", "SIGNAL", "VIA")
	t.AddRow(fmt.Sprint(n.From), fmt.Sprint(n.Dest), fmt.Sprint(n.ChildTID),
		fmt.Sprint(n.ExitCode), fmt.Sprint(n.TermSignal), n.Via)
	return []*output.Table{t}
}

func runNotify(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	if len(cfg.IPC.Seeds) == 0 {
		return errors.New("at least one --seed is required to reach the destination")
	}
	if !c.IsSet("pid") {
		cfg.IPC.PID = notifyPID
	}
	dest := int32(c.Int("dest"))
	if dest == cfg.IPC.PID {
		return fmt.Errorf("destination %d is this node's own pid", dest)
	}
	if !c.IsSet("bind-port") {
		cfg.IPC.BindPort = 0
	}
	log, err := initLogger(c, cfg)
	if err != nil {
		return err
	}
	key, err := cfg.IPC.DecodeSecretKey()
	if err != nil {
		return err
	}

	g, err := ipc.NewGossip(ipc.GossipConfig{
		PID:          cfg.IPC.PID,
		BindAddr:     cfg.IPC.BindAddr,
		BindPort:     cfg.IPC.BindPort,
		Seeds:        cfg.IPC.Seeds,
		SecretKey:    key,
		LeaveTimeout: cfg.IPC.LeaveTimeout,
	}, nil, nil, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := g.Shutdown(context.WithoutCancel(c.Context)); err != nil {
			log.Warn("gossip shutdown failed", "error", err)
		}
	}()

	n := notice{
		From:       cfg.IPC.PID,
		Dest:       dest,
		ChildTID:   int32(c.Int("child")),
		ExitCode:   c.Int("code"),
		TermSignal: c.Int("signal"),
		Via:        g.Addr(),
	}
	if err := g.SendChildExit(c.Context, n.Dest, n.ChildTID, n.ExitCode, n.TermSignal); err != nil {
		return fmt.Errorf("send child exit: %w", err)
	}
	return render(c, n, n)
}
