// Package domain defines the thread and process records of the LibOS
// termination path.
//
// The package has no IO dependencies. It contains:
//
//   - Thread: per-thread record with its Guard and the Owned resource set
//   - Process: group-wide exit code, live-thread count and exit state
//   - TCB / ExecContext: the control block a host thread runs on
//   - Latch / Pulse: one-shot and auto-reset events
//   - Errors: domain error catalog
package domain
