// Package libos assembles one LibOS process: its thread table, signal
// delivery, helper threads, IPC transport, profile store and the exit path,
// all built from a config.Config.
//
// A Kernel owns exactly one process. Threads are created with NewThread and
// run with Go; their bodies call Exit, ExitGroup or Park, and a body that
// returns exits its thread with code 0.
package libos
