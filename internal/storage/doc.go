// Package storage keeps the profile records of exited processes in Badger.
//
// Each process that reaches the cleanup path flushes its profile counters
// once, as a ProcessRecord keyed by a ULID under the "proc/" prefix, so a
// scan returns records in the order they were written. An empty data
// directory selects Badger's in-memory mode.
package storage
