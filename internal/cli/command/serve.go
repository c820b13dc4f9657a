package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/libos-go/internal/config"
	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/host"
	"github.com/yndnr/libos-go/internal/infra/confloader"
	"github.com/yndnr/libos-go/internal/infra/shutdown"
	"github.com/yndnr/libos-go/internal/infra/tlsroots"
	"github.com/yndnr/libos-go/internal/libos"
	"github.com/yndnr/libos-go/internal/server/httpserver"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

const serveShutdownTimeout = 15 * time.Second

// ServeCommand returns the serve command.
func ServeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "transport",
			Usage: "Child-exit transport: loopback, gossip (default gossip)",
		},
		&cli.StringSliceFlag{
			Name:  "adopt",
			Usage: "Remote child to watch, as pid or pid:tid (repeatable)",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Listen address of /metrics (empty disables it)",
		},
		&cli.StringFlag{
			Name:  "tls-cert-file",
			Usage: "Certificate that switches /metrics to HTTPS",
		},
		&cli.StringFlag{
			Name:  "tls-key-file",
			Usage: "Key of --tls-cert-file",
		},
		dataDirFlag(),
	}

	return &cli.Command{
		Name:      "serve",
		Usage:     "Run one LibOS process as a node that applies child-exit messages",
		ArgsUsage: " ",
		Flags:     append(nodeFlags(), flags...),
		Action:    runServe,
	}
}

type adoption struct {
	pid, tid int32
}

func parseAdoption(s string) (adoption, error) {
	pidStr, tidStr, found := strings.Cut(s, ":")
	pid, err := strconv.ParseInt(pidStr, 10, 32)
	if err != nil || pid <= 0 {
		return adoption{}, fmt.Errorf("invalid child %q: pid must be a positive integer", s)
	}
	a := adoption{pid: int32(pid), tid: int32(pid)}
	if found {
		tid, err := strconv.ParseInt(tidStr, 10, 32)
		if err != nil || tid <= 0 {
			return adoption{}, fmt.Errorf("invalid child %q: tid must be a positive integer", s)
		}
		a.tid = int32(tid)
	}
	return a, nil
}

func runServe(c *cli.Context) error {
	var adoptions []adoption
	for _, s := range c.StringSlice("adopt") {
		a, err := parseAdoption(s)
		if err != nil {
			return err
		}
		adoptions = append(adoptions, a)
	}

	cfg, loader, err := loadConfig(c)
	if err != nil {
		return err
	}
	// serve talks gossip unless the file, the environment or the flag chose
	// a transport.
	if loader.Origin("ipc.transport") == "" {
		cfg.IPC.Transport = config.TransportGossip
		if err := config.Verify(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	log, err := initLogger(c, cfg)
	if err != nil {
		return err
	}

	h := host.NewGoroutine()
	k, err := libos.New(cfg, libos.Options{Host: h, Logger: log})
	if err != nil {
		return err
	}
	mainThread := k.Main()
	for _, a := range adoptions {
		if _, err := k.AdoptRemoteChild(mainThread, a.pid, a.tid); err != nil {
			_ = k.Close(context.Background())
			return err
		}
	}

	sh := shutdown.NewHandler(serveShutdownTimeout, shutdown.WithLogger(log))
	if cfg.Metrics.Addr != "" {
		addr, err := serveMetrics(sh, k, cfg.Metrics, log)
		if err != nil {
			_ = k.Close(context.Background())
			return err
		}
		log.Info("metrics listening", "addr", addr, "tls", cfg.Metrics.TLSCertFile != "")
	}
	if path := loader.FilePath(); path != "" {
		if err := watchConfig(sh, loader, path, log); err != nil {
			log.Warn("config file will not be reloaded", "path", path, "error", err)
		}
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	k.Go(mainThread, watchChildren(runCtx, k))

	fields := []any{"pid", k.PID(), "transport", cfg.IPC.Transport, "children", len(adoptions)}
	if g := k.Gossip(); g != nil {
		fields = append(fields, "gossip_addr", g.Addr())
	}
	log.Info("libos node started, press Ctrl+C to stop", fields...)

	if err := sh.Wait(c.Context); err != nil {
		log.Error("shutdown error", "error", err)
	}
	stop()

	select {
	case <-h.Done():
	case <-time.After(serveShutdownTimeout):
		return errors.New("libos process did not exit")
	}
	code, _ := h.ExitCode()
	fmt.Fprintf(writer(c), "process %d exited with code %d\n", k.PID(), code)
	if code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// watchChildren reaps exited children until ctx ends. Returning exits the
// main thread and, with it, the process.
func watchChildren(ctx context.Context, k *libos.Kernel) libos.Body {
	return func(tctx context.Context, ec *domain.ExecContext) {
		log := logger.FromContext(tctx)
		for {
			child, status, err := k.WaitChild(ctx, ec.Current())
			if err != nil {
				return
			}
			log.Info("child exited",
				"child_pid", child.TGID,
				"child_tid", child.TID,
				"status", status,
				"pending_signals", len(ec.Current().Pending()))
		}
	}
}

// serveMetrics serves /metrics and /healthz until shutdown, over HTTPS when
// a key pair is configured.
func serveMetrics(sh *shutdown.Handler, k *libos.Kernel, cfg config.MetricsSection, log logger.Logger) (string, error) {
	srvCfg := httpserver.Config{
		Addr:      cfg.Addr,
		RateLimit: cfg.RateLimit,
		AllowList: cfg.AllowList,
		Logger:    log,
	}

	var pair *tlsroots.KeyPair
	if cfg.TLSCertFile != "" {
		var err error
		pair, err = tlsroots.LoadKeyPair(cfg.TLSCertFile, cfg.TLSKeyFile, tlsroots.WithLogger(log))
		if err != nil {
			return "", err
		}
		srvCfg.TLS = pair.TLSConfig()
	}

	srv := httpserver.New(srvCfg, httpserver.NewRouter(k.Metrics().Handler(), k.PID()))
	addr, err := srv.Start()
	if err != nil {
		return "", err
	}

	if pair != nil {
		if err := pair.Watch(); err != nil {
			log.Warn("certificate will not be reloaded", "error", err)
		}
		sh.OnShutdown("metrics-tls", func(context.Context) error {
			return pair.Stop()
		})
	}
	sh.OnShutdown("metrics-http", func(ctx context.Context) error {
		log.Info("shutting down metrics server")
		return srv.Shutdown(ctx)
	})
	return addr, nil
}

// watchConfig reloads the log level when the configuration file changes.
// The loader applies the command line again, so a flag keeps winning.
func watchConfig(sh *shutdown.Handler, loader *confloader.Loader, path string, log logger.Logger) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return err
	}
	w.OnChange(func(string) {
		next := config.Default()
		if err := loader.Load(next); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if err := config.Verify(next); err != nil {
			log.Warn("reloaded config is invalid", "error", err)
			return
		}
		if next.Log.Level == logger.GetLevel() {
			return
		}
		logger.SetLevel(next.Log.Level)
		log.Info("log level changed", "level", next.Log.Level)
	})
	w.StartAsync()
	sh.OnShutdown("config-watcher", func(context.Context) error {
		return w.Stop()
	})
	return nil
}
