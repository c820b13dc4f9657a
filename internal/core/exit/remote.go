package exit

import (
	"context"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/ipc"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
	"github.com/yndnr/libos-go/internal/telemetry/metric"
)

// ThreadLookup finds thread records by TID.
type ThreadLookup interface {
	Get(tid int32) (*domain.Thread, bool)
}

// RemoteExits applies child-exit messages from other processes to the
// local proxy records of those children.
type RemoteExits struct {
	threads ThreadLookup
	coord   *Coordinator
	metrics *metric.Registry
	logger  logger.Logger
}

// NewRemoteExits creates a RemoteExits.
func NewRemoteExits(threads ThreadLookup, coord *Coordinator, m *metric.Registry, log logger.Logger) *RemoteExits {
	if m == nil {
		m = metric.NewRegistry()
	}
	if log == nil {
		log = logger.Default()
	}
	return &RemoteExits{
		threads: threads,
		coord:   coord,
		metrics: m,
		logger:  log.With("component", "exit"),
	}
}

// Apply terminates the proxy of msg.ChildTID and tells its local parent.
// Messages for unknown children, or for proxies with no local parent, are
// dropped.
func (r *RemoteExits) Apply(ctx context.Context, msg ipc.ChildExit) error {
	log := r.logger.WithContext(ctx).With("tid", msg.ChildTID)

	child, ok := r.threads.Get(msg.ChildTID)
	if !ok {
		r.metrics.IPCDropped.Inc()
		log.Debug("child exit for unknown thread dropped")
		return nil
	}
	parent := child.Parent()
	if parent == nil {
		r.metrics.IPCDropped.Inc()
		log.Debug("child exit for thread without local parent dropped")
		return nil
	}

	child.SetExitStatus(msg.ExitCode, msg.TermSignal)
	// SIGCHLD is queued under the parent lock together with the move to
	// the exited list, before the parent's single child-exit pulse.
	done, err := r.coord.terminate(ctx, child, terminateOpts{sigchldInVM: true})
	if err != nil || !done {
		return err
	}
	log.Debug("remote child exit applied", "parent", parent.TID, "exit_code", msg.ExitCode)
	return nil
}
