package helper

import "github.com/yndnr/libos-go/internal/core/domain"

// Set is the pair of helpers a process runs.
type Set struct {
	Async *Async
	IPC   *IPC
}

// TerminateAsyncHelper stops the async helper.
func (s *Set) TerminateAsyncHelper() *domain.Thread {
	if s.Async == nil {
		return nil
	}
	return s.Async.Terminate()
}

// ExitWithIPCHelper stops the IPC helper or hands it the process exit.
func (s *Set) ExitWithIPCHelper(handoff bool, final func()) (*domain.Thread, int) {
	if s.IPC == nil {
		return nil, 0
	}
	return s.IPC.ExitWithIPCHelper(handoff, final)
}
