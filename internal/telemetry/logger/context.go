package logger

import "context"

type (
	loggerKey struct{}
	threadKey struct{}
)

// ThreadIdentity names the LibOS thread a log line belongs to.
type ThreadIdentity struct {
	TID int32
	PID int32
}

// WithLogger returns ctx carrying l.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger in ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Default()
}

// WithThread returns ctx carrying the running thread's identity.
func WithThread(ctx context.Context, tid, pid int32) context.Context {
	return context.WithValue(ctx, threadKey{}, ThreadIdentity{TID: tid, PID: pid})
}

// ThreadFromContext returns the identity set by WithThread.
func ThreadFromContext(ctx context.Context) (ThreadIdentity, bool) {
	id, ok := ctx.Value(threadKey{}).(ThreadIdentity)
	return id, ok
}

// L is FromContext with the tid attached when ctx names a thread. The pid
// is left to the logger, which a Kernel tags once.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if id, ok := ThreadFromContext(ctx); ok {
		return l.With("tid", id.TID)
	}
	return l
}
