// Package metric provides Prometheus metrics for the LibOS exit path.
//
// Counters cover thread terminations by path, duplicate terminations,
// remote child-exit notifications, SIGCHLD deliveries, released resources
// and process exit outcomes. helper_drain_seconds measures how long helper
// threads take to stop. Metrics are served at /metrics by the serve command.
package metric
