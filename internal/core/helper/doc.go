// Package helper runs the LibOS background threads of a process: the async
// helper, which fires delayed callbacks, and the IPC helper, which applies
// inbound messages and can be handed the final cleanup of a process that
// still has messages in flight.
//
// Both helpers run on internal thread records so the exit path can stop
// them and reclaim their records like any other thread.
package helper
