// Package httpserver serves a node's HTTP endpoints:
//
//   - /metrics: the Prometheus registry of the LibOS kernel
//   - /healthz: liveness, with the process id the node speaks for
//
// Requests pass through Recover, RequestID, NetworkACL, RateLimit and
// AccessLog, in that order. TLS is used when the Config carries a
// tls.Config.
package httpserver
