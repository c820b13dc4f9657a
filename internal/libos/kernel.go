package libos

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yndnr/libos-go/internal/config"
	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/core/exit"
	"github.com/yndnr/libos-go/internal/core/exitctx"
	"github.com/yndnr/libos-go/internal/core/helper"
	"github.com/yndnr/libos-go/internal/core/signal"
	"github.com/yndnr/libos-go/internal/core/threadtable"
	"github.com/yndnr/libos-go/internal/host"
	"github.com/yndnr/libos-go/internal/infra/shutdown"
	"github.com/yndnr/libos-go/internal/ipc"
	"github.com/yndnr/libos-go/internal/storage"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
	"github.com/yndnr/libos-go/internal/telemetry/metric"
)

// shutdownTimeout bounds the cleanup hooks run at process exit.
const shutdownTimeout = 10 * time.Second

// Options replace parts of the assembly. The zero value builds everything
// from the configuration.
type Options struct {
	// Host ends threads and the process. Defaults to host.NewGoroutine().
	Host host.Host
	// Platform runs the final stage of a thread's exit. Defaults to
	// exitctx.Goroutines.
	Platform exitctx.Platform
	// Loopback is a router shared with other kernels in this Go process.
	// It is used with the loopback transport; nil creates a private one.
	Loopback *ipc.Loopback
	// Store receives the profile on process exit. nil opens a store from
	// the storage section, which is closed during process cleanup.
	Store *storage.ProfileStore
	// ParentPID is the LibOS process that spawned this one. When set, the
	// main thread reports its exit there by message.
	ParentPID int32

	Metrics *metric.Registry
	Logger  logger.Logger
}

// Kernel is one assembled LibOS process.
type Kernel struct {
	cfg     *config.Config
	pid     int32
	proc    *domain.Process
	main    *domain.Thread
	table   *threadtable.Table
	host    host.Host
	metrics *metric.Registry
	store   *storage.ProfileStore
	hooks   *shutdown.Handler
	logger  logger.Logger

	signals  *signal.Delivery
	releaser *exit.ResourceReleaser
	coord    *exit.Coordinator
	remote   *exit.RemoteExits
	async    *helper.Async
	ipc      *helper.IPC
	syscalls *exit.Syscalls

	transport exit.RemoteNotifier
	gossip    *ipc.Gossip
	loopback  *ipc.Loopback

	lastTID atomic.Int32
	lastMap atomic.Uint64
}

// New builds a Kernel for cfg. The process starts with its main thread,
// whose TID equals the PID, registered but not running.
func New(cfg *config.Config, opts Options) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Host == nil {
		opts.Host = host.NewGoroutine()
	}
	if opts.Platform == nil {
		opts.Platform = exitctx.Goroutines{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metric.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	pid := cfg.IPC.PID
	k := &Kernel{
		cfg:      cfg,
		pid:      pid,
		proc:     domain.NewProcess(pid),
		table:    threadtable.New(),
		host:     opts.Host,
		metrics:  opts.Metrics,
		hooks:    shutdown.NewHandler(shutdownTimeout, shutdown.WithLogger(opts.Logger.With("pid", pid))),
		logger:   opts.Logger.With("pid", pid),
		releaser: exit.NewResourceReleaser(),
	}
	k.lastTID.Store(pid)

	if err := k.openStore(opts.Store); err != nil {
		return nil, err
	}

	k.signals = signal.NewDelivery(k.table, k.logger)
	k.coord = exit.NewCoordinator(exit.CoordinatorDeps{
		Remote:  k,
		Signals: k.signals,
		Handles: k.releaser,
		Futex:   k.releaser,
		Host:    k.host,
		Metrics: k.metrics,
		Logger:  k.logger,
	})
	k.remote = exit.NewRemoteExits(k.table, k.coord, k.metrics, k.logger)

	k.async = helper.NewAsync(k.helperIdentity(), k.table, k.logger)
	k.ipc = helper.NewIPC(k.helperIdentity(), k.table, k.remote, k.logger)

	seq := exit.NewSequencer(exit.SequencerConfig{
		WaitHelperHostExit:    cfg.Exit.WaitHelperHostExit,
		HelperHostExitTimeout: cfg.Exit.HelperHostExitTimeout,
	}, exit.SequencerDeps{
		Coordinator: k.coord,
		Helpers:     &helper.Set{Async: k.async, IPC: k.ipc},
		Reclaimer:   k.table,
		Cleaner:     exit.NewCleanup(k.store, k.hooks, k.logger),
		Host:        k.host,
		Metrics:     k.metrics,
		Logger:      k.logger,
	})
	k.syscalls = exit.NewSyscalls(exit.SyscallsDeps{
		Coordinator: k.coord,
		Sequencer:   seq,
		Relocator:   exitctx.NewSwitcher(opts.Platform, k.host, k.logger),
		Signals:     k.signals,
		Host:        k.host,
		Logger:      k.logger,
	})

	if err := k.openTransport(opts.Loopback); err != nil {
		_ = k.hooks.Run(context.Background())
		return nil, err
	}

	k.main = k.newThread(pid, ThreadSpec{
		PPID: opts.ParentPID,
		InVM: opts.ParentPID != 0,
		Exec: "/proc/self/exe",
	})

	k.logger.Info("libos process ready", "transport", cfg.IPC.Transport, "main_tid", pid)
	return k, nil
}

func (k *Kernel) openStore(shared *storage.ProfileStore) error {
	if shared != nil {
		k.store = shared
		return nil
	}

	storeCfg, err := storage.ConfigFromSection(k.cfg.Storage)
	if err != nil {
		return err
	}
	store, err := storage.Open(storeCfg, k.logger)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	if err := store.RegisterMetrics(k.metrics.Registerer()); err != nil {
		store.Close()
		return fmt.Errorf("register profile store metrics: %w", err)
	}
	k.store = store
	k.hooks.OnShutdown("profile-store", func(context.Context) error {
		return store.Close()
	})
	return nil
}

func (k *Kernel) openTransport(shared *ipc.Loopback) error {
	switch k.cfg.IPC.Transport {
	case config.TransportGossip:
		key, err := k.cfg.IPC.DecodeSecretKey()
		if err != nil {
			return err
		}
		g, err := ipc.NewGossip(ipc.GossipConfig{
			PID:          k.pid,
			BindAddr:     k.cfg.IPC.BindAddr,
			BindPort:     k.cfg.IPC.BindPort,
			Seeds:        k.cfg.IPC.Seeds,
			SecretKey:    key,
			LeaveTimeout: k.cfg.IPC.LeaveTimeout,
		}, k.ipc.Deliver, k.metrics, k.logger)
		if err != nil {
			return fmt.Errorf("start gossip transport: %w", err)
		}
		k.gossip = g
		k.transport = g
		k.hooks.OnShutdown("ipc-gossip", g.Shutdown)

	default:
		lb := shared
		if lb == nil {
			lb = ipc.NewLoopback(k.metrics, k.logger)
		}
		lb.Register(k.pid, k.ipc.Deliver)
		k.loopback = lb
		k.transport = lb
		k.hooks.OnShutdown("ipc-loopback", func(context.Context) error {
			lb.Unregister(k.pid)
			return nil
		})
	}
	return nil
}

func (k *Kernel) helperIdentity() helper.Identity {
	return helper.Identity{
		TID:     k.lastTID.Add(1),
		TGID:    k.pid,
		Process: k.proc,
	}
}

// SendChildExit forwards a child-exit message to the configured transport.
func (k *Kernel) SendChildExit(ctx context.Context, dest, childTID int32, exitCode, termSignal int) error {
	if k.transport == nil {
		return domain.ErrUnknownPeer.WithDetails(fmt.Sprintf("pid %d: no transport", dest))
	}
	return k.transport.SendChildExit(ctx, dest, childTID, exitCode, termSignal)
}

// After runs fn on the async helper thread once d has elapsed.
func (k *Kernel) After(d time.Duration, fn func()) error {
	return k.async.After(d, fn)
}

// Close runs the process cleanup hooks without going through the exit
// path. It is for processes that are torn down from outside.
func (k *Kernel) Close(ctx context.Context) error {
	return k.hooks.Run(ctx)
}

// OnShutdown registers a hook run during process cleanup.
func (k *Kernel) OnShutdown(name string, fn func(context.Context) error) {
	k.hooks.OnShutdown(name, fn)
}

// PID returns the process ID.
func (k *Kernel) PID() int32 { return k.pid }

// Process returns the process-scoped exit state.
func (k *Kernel) Process() *domain.Process { return k.proc }

// Main returns the main thread.
func (k *Kernel) Main() *domain.Thread { return k.main }

// Threads returns the thread table.
func (k *Kernel) Threads() *threadtable.Table { return k.table }

// Host returns the host the process ends in.
func (k *Kernel) Host() host.Host { return k.host }

// Metrics returns the metric registry.
func (k *Kernel) Metrics() *metric.Registry { return k.metrics }

// Store returns the profile store.
func (k *Kernel) Store() *storage.ProfileStore { return k.store }

// Releaser returns the resource ledger.
func (k *Kernel) Releaser() *exit.ResourceReleaser { return k.releaser }

// Gossip returns the gossip node, or nil with the loopback transport.
func (k *Kernel) Gossip() *ipc.Gossip { return k.gossip }

// Loopback returns the loopback router, or nil with the gossip transport.
func (k *Kernel) Loopback() *ipc.Loopback { return k.loopback }

// IPCHelper returns the IPC helper.
func (k *Kernel) IPCHelper() *helper.IPC { return k.ipc }

// Logger returns the process logger.
func (k *Kernel) Logger() logger.Logger { return k.logger }
