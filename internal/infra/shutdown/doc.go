// Package shutdown runs cleanup hooks in reverse registration order.
//
// The same Handler serves two callers: the LibOS exit path runs it once
// when the last thread of a process cleans up, and the serve command runs
// it after SIGINT or SIGTERM.
//
// Usage:
//
//	h := shutdown.NewHandler(5 * time.Second)
//	h.OnShutdown("store", store.Close)
//	err := h.Wait(ctx) // blocks until a signal or ctx ends, then runs hooks
package shutdown
