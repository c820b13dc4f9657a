package exit

import (
	"context"
	"errors"
	"fmt"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/host"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
	"github.com/yndnr/libos-go/internal/telemetry/metric"
)

// CoordinatorDeps are the collaborators of a Coordinator. Remote may be nil
// when the process has no IPC transport.
type CoordinatorDeps struct {
	Remote  RemoteNotifier
	Signals SignalDelivery
	Handles HandleReleaser
	Futex   FutexReleaser
	Host    host.Host
	Metrics *metric.Registry
	Logger  logger.Logger
}

// Coordinator terminates single threads.
type Coordinator struct {
	remote  RemoteNotifier
	signals SignalDelivery
	handles HandleReleaser
	futex   FutexReleaser
	host    host.Host
	metrics *metric.Registry
	logger  logger.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	if deps.Metrics == nil {
		deps.Metrics = metric.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	return &Coordinator{
		remote:  deps.Remote,
		signals: deps.Signals,
		handles: deps.Handles,
		futex:   deps.Futex,
		host:    deps.Host,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("component", "exit"),
	}
}

// TerminateThread marks t dead, detaches it from its parent, notifies the
// parent and releases what t owned. Terminating a dead thread is a no-op.
//
// notifyRemote enables the early child-exit message for threads whose
// parent lives in another process. A release failure is fatal to the
// process.
func (c *Coordinator) TerminateThread(ctx context.Context, t *domain.Thread, notifyRemote bool) error {
	_, err := c.terminate(ctx, t, terminateOpts{notifyRemote: notifyRemote})
	return err
}

type terminateOpts struct {
	// notifyRemote sends the early child-exit message for InVM threads.
	notifyRemote bool
	// sigchldInVM queues SIGCHLD at the local parent even for an InVM
	// thread. Set when the exit was reported by the child's own process.
	sigchldInVM bool
}

// terminate reports whether this call performed the termination.
func (c *Coordinator) terminate(ctx context.Context, t *domain.Thread, opts terminateOpts) (bool, error) {
	log := c.logger.WithContext(ctx).With("tid", t.TID)

	// Tell a remote parent before taking any lock so it can start reaping.
	// Only a live thread sends, and only once.
	notified := false
	if opts.notifyRemote && t.InVM && t.IsAlive() && t.ClaimRemoteNotice() {
		code, sig := t.ExitStatus()
		c.notify(ctx, t, code, sig, metric.ReasonInVM)
		notified = true
	}

	g := t.Lock()
	exitCode, ok := g.MarkDead()
	if !ok {
		g.Unlock()
		log.Debug("thread is already dead")
		c.metrics.DuplicateTerminations.Inc()
		return false, nil
	}
	if t.Internal {
		g.Unlock()
		c.metrics.ThreadsTerminated.WithLabelValues(metric.PathInternal).Inc()
		return true, nil
	}

	owned := g.TakeOwned()
	_, termSignal := g.ExitStatus()

	path := metric.PathLocalParent
	if pg := g.LockParent(); pg != nil {
		parent := pg.Thread()
		log.Debug("thread exits, notifying parent", "parent", parent.TID)

		pg.MoveToExited(t)
		if !t.InVM || opts.sigchldInVM {
			log.Debug("deliver SIGCHLD", "parent", parent.TID, "exit_code", exitCode)
			c.signals.Enqueue(pg, domain.ChildExited(t.TID, t.UID, exitCode))
			c.metrics.SigchldEnqueued.Inc()
		}
		pg.Unlock()

		parent.ChildExitEvent.Set()
	} else {
		path = metric.PathRemote
	}
	g.Unlock()

	if path == metric.PathRemote && !notified && t.ClaimRemoteNotice() {
		log.Debug("parent not here, notifying its process", "ppid", t.PPID)
		c.notify(ctx, t, exitCode, termSignal, metric.ReasonOrphan)
	}

	if err := c.release(t, owned); err != nil {
		return true, c.fatal(ctx, t, err)
	}

	c.metrics.ThreadsTerminated.WithLabelValues(path).Inc()
	if t.Process != nil {
		t.Process.Profile.Inc(domain.ProfileThreadExit)
	}
	t.ExitEvent.Set()
	return true, nil
}

func (c *Coordinator) notify(ctx context.Context, t *domain.Thread, exitCode, termSignal int, reason string) {
	c.metrics.RemoteNotifications.WithLabelValues(reason).Inc()
	if t.Process != nil {
		t.Process.Profile.Inc(domain.ProfileRemoteExitNotif)
	}
	if c.remote == nil {
		c.logger.Debug("no ipc transport, child exit not sent", "tid", t.TID, "ppid", t.PPID)
		return
	}
	if err := c.remote.SendChildExit(ctx, t.PPID, t.TID, exitCode, termSignal); err != nil {
		c.logger.Debug("child exit notification failed", "tid", t.TID, "ppid", t.PPID, "error", err)
	}
}

// release puts every owned resource, outside any thread lock.
func (c *Coordinator) release(t *domain.Thread, o domain.Owned) error {
	var errs []error
	put := func(kind string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			return
		}
		c.metrics.ResourcesReleased.WithLabelValues(kind).Inc()
	}

	if o.HandleMap != nil {
		put(KindHandleMap, c.handles.PutHandleMap(o.HandleMap))
	}
	if o.Exec != nil {
		put(KindExec, c.handles.PutHandle(o.Exec))
	}
	if o.RobustList != 0 {
		put(KindRobustList, c.futex.ReleaseRobustList(t, o.RobustList))
	}
	if o.ClearChildTID != 0 {
		put(KindClearChildTID, c.futex.ReleaseClearChildTID(t, o.ClearChildTID))
	}
	return errors.Join(errs...)
}

// fatal ends the process after a failed release. It only returns when the
// host primitive does.
func (c *Coordinator) fatal(ctx context.Context, t *domain.Thread, cause error) error {
	err := domain.ErrResourceRelease.WithDetails(fmt.Sprintf("tid %d", t.TID)).WithCause(cause)
	c.logger.WithContext(ctx).Error("thread exit failed, terminating process",
		"tid", t.TID,
		"error", err)
	c.metrics.ProcessExits.WithLabelValues(metric.OutcomeFatal).Inc()
	c.host.ProcessExit(domain.FatalExitCode)
	return err
}
