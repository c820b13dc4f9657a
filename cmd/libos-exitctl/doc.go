// Package main provides the entry point for libos-exitctl.
//
// libos-exitctl drives the LibOS exit path outside a real guest:
//
//   - simulate runs exit scenarios on in-process LibOS processes
//   - serve runs one LibOS process as a gossip node and serves /metrics
//   - notify sends a child-exit message to a node started by serve
//   - records lists the exit profiles kept in a data directory
//
// Usage:
//
//	libos-exitctl simulate -s group-exit -n 8 --code 3
//	libos-exitctl serve --pid 100 --adopt 200 --bind-port 7946
//	libos-exitctl notify --dest 100 --child 200 --code 9 --seed 127.0.0.1:7946
//	libos-exitctl -o json records --data-dir /var/lib/libos
package main
