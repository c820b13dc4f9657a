// Package repl provides the interactive shell of libos-exitctl.
//
//   - repl.go: read loop, builtins and command dispatch
//   - completer.go: prefix suggestions for mistyped commands
//   - history.go: command history persistence
//
// Lines are split on whitespace and handed to an Executor, which runs them
// as if they had been given on the command line.
package repl
