// Package exit implements thread and process termination for the LibOS.
//
//   - coordinator.go: one thread's death, parent notification, resource release
//   - sequencer.go: last-thread detection, helper drain, final cleanup
//   - syscalls.go / handoff.go: exit, exit_group and fatal-signal entry points
//   - remote.go: child-exit messages arriving from other processes
//   - cleanup.go: profile flush and cleanup hooks run on process exit
//
// Collaborators outside the exit path are reached through the interfaces in
// interfaces.go.
package exit
