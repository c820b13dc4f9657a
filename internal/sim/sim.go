package sim

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/yndnr/libos-go/internal/config"
	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/host"
	"github.com/yndnr/libos-go/internal/ipc"
	"github.com/yndnr/libos-go/internal/libos"
	"github.com/yndnr/libos-go/internal/storage"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// Scenario names a simulated exit pattern.
type Scenario string

// Scenarios.
const (
	// SelfExit: the only thread of a process calls exit(code).
	SelfExit Scenario = "self-exit"
	// LocalParent: a child thread exits while its parent thread watches.
	LocalParent Scenario = "local-parent"
	// RemoteParent: a process whose parent lives in another process exits.
	RemoteParent Scenario = "remote-parent"
	// GroupExit: one thread calls exit_group(code) while the others block.
	GroupExit Scenario = "group-exit"
	// AlreadyDead: a thread is terminated twice before the process exits.
	AlreadyDead Scenario = "already-dead"
	// ThreadsExit: every thread calls exit(code) at once.
	ThreadsExit Scenario = "threads-exit"
	// Kill: a timer on the async helper kills every blocked thread.
	Kill Scenario = "kill"
)

// Scenarios returns every scenario in a stable order.
func Scenarios() []Scenario {
	return []Scenario{SelfExit, LocalParent, RemoteParent, GroupExit, AlreadyDead, ThreadsExit, Kill}
}

// ParseScenario validates a scenario name.
func ParseScenario(name string) (Scenario, error) {
	s := Scenario(name)
	if !slices.Contains(Scenarios(), s) {
		return "", fmt.Errorf("unknown scenario %q", name)
	}
	return s, nil
}

// Defaults.
const (
	DefaultThreads = 4
	DefaultTimeout = 10 * time.Second
	DefaultBasePID = 100
)

// killDelay is how long the kill scenario's timer waits.
const killDelay = 5 * time.Millisecond

// Options configure a run.
type Options struct {
	Scenario Scenario
	// Threads is the thread count of the multi-thread scenarios. Zero
	// selects DefaultThreads; other values below 2 are raised to 2.
	Threads  int
	ExitCode int
	// Config is the base configuration. Each simulated process gets a copy
	// with its own PID and the loopback transport.
	Config *config.Config
	// Store receives the profiles. nil uses a private in-memory store.
	Store   *storage.ProfileStore
	Logger  logger.Logger
	Timeout time.Duration
}

type runner struct {
	opts      Options
	store     *storage.ProfileStore
	loopback  *ipc.Loopback
	processes []*process
	nextPID   int32
}

// Run executes one scenario to completion and reports the outcome.
func Run(ctx context.Context, opts Options) (*Report, error) {
	switch {
	case opts.Threads == 0:
		opts.Threads = DefaultThreads
	case opts.Threads < 2:
		opts.Threads = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	r := &runner{
		opts:     opts,
		store:    opts.Store,
		loopback: ipc.NewLoopback(nil, opts.Logger),
		nextPID:  DefaultBasePID,
	}
	if r.store == nil {
		store, err := storage.Open(storage.DefaultConfig(), opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("open profile store: %w", err)
		}
		defer store.Close()
		r.store = store
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	report := &Report{Scenario: string(opts.Scenario)}

	var err error
	switch opts.Scenario {
	case SelfExit:
		err = r.selfExit(ctx)
	case LocalParent:
		report.Parent, err = r.localParent(ctx)
	case RemoteParent:
		report.Parent, err = r.remoteParent(ctx)
	case GroupExit:
		err = r.groupExit(ctx)
	case AlreadyDead:
		err = r.alreadyDead(ctx)
	case ThreadsExit:
		err = r.threadsExit(ctx)
	case Kill:
		err = r.kill(ctx)
	default:
		_, err = ParseScenario(string(opts.Scenario))
	}
	if err != nil {
		return nil, err
	}
	r.loopback.Wait()
	report.Duration = time.Since(start)

	for _, p := range r.processes {
		pr, err := processReport(p)
		if err != nil {
			return nil, err
		}
		report.Processes = append(report.Processes, pr)
	}
	if report.Records, err = r.countRecords(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *runner) spawn(parentPID int32) (*process, error) {
	cfg := *r.opts.Config
	cfg.IPC.PID = r.nextPID
	cfg.IPC.Transport = config.TransportLoopback
	r.nextPID += DefaultBasePID

	h := host.NewGoroutine()
	k, err := libos.New(&cfg, libos.Options{
		Host:      h,
		Loopback:  r.loopback,
		Store:     r.store,
		ParentPID: parentPID,
		Logger:    r.opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("start process %d: %w", cfg.IPC.PID, err)
	}
	p := &process{kernel: k, host: h, threads: 1}
	r.processes = append(r.processes, p)
	return p, nil
}

func (r *runner) wait(ctx context.Context, p *process) error {
	select {
	case <-p.host.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("process %d did not exit: %w", p.kernel.PID(), ctx.Err())
	}
}

func (r *runner) countRecords(ctx context.Context) (int, error) {
	recs, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profile records: %w", err)
	}
	n := 0
	for _, rec := range recs {
		for _, p := range r.processes {
			if rec.PID == p.kernel.PID() {
				n++
				break
			}
		}
	}
	return n, nil
}

// exitWith returns a body that exits with code.
func exitWith(k *libos.Kernel, code int) libos.Body {
	return func(ctx context.Context, ec *domain.ExecContext) {
		k.Exit(ctx, ec, code)
	}
}

// parked returns a body that blocks until a fatal signal arrives.
func parked(runCtx context.Context, k *libos.Kernel) libos.Body {
	return func(_ context.Context, ec *domain.ExecContext) {
		_ = k.Park(runCtx, ec)
	}
}
