// Package command provides the CLI command definitions for libos-exitctl.
//
// Commands are built with urfave/cli/v2:
//
//   - simulate: run an exit scenario on in-process LibOS processes
//   - serve: run one LibOS process as a gossip node with /metrics
//   - notify: send a child-exit message to a running node
//   - stats: show the metrics of a running serve node
//   - records: list the exit profiles kept in a data directory
//   - version: print build information
//   - shell: run the commands above interactively
//
// Every command reads the configuration file given with --config, the
// LIBOS_ environment and its own flags, in that order of precedence.
package command
