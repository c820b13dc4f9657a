package exit

import (
	"context"

	"github.com/yndnr/libos-go/internal/core/domain"
)

// handoff retires a placeholder identity. If ec runs as a dummy thread, the
// dummy is terminated with no terminating signal and ec continues as the
// dummy's successor. It returns the thread ec runs as afterwards.
func (s *Syscalls) handoff(ctx context.Context, ec *domain.ExecContext) *domain.Thread {
	cur := ec.Current()
	next := cur.Successor()
	if next == nil {
		return cur
	}

	s.logger.Debug("retiring placeholder thread", "tid", cur.TID, "successor", next.TID)
	cur.SetTermSignal(0)
	_ = s.coord.TerminateThread(ctx, cur, true)
	ec.SwitchIdentity(next)
	return next
}
