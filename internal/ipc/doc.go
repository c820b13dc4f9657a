// Package ipc carries child-exit notifications between LibOS processes.
//
//   - codec.go: ChildExit message and its wire encoding
//   - loopback.go: in-process router for simulations and tests
//   - gossip.go: hashicorp/memberlist transport between host processes
//   - hclog.go: routes memberlist logs into the application logger
package ipc
