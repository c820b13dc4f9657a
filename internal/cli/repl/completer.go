package repl

import (
	"slices"
	"strings"
)

// builtins are handled by the REPL itself.
var builtins = []string{"help", "history", "exit", "quit"}

// Completer suggests command names for a prefix.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over commands and the builtins.
func NewCompleter(commands ...string) *Completer {
	all := slices.Concat(commands, builtins)
	slices.Sort(all)
	return &Completer{commands: slices.Compact(all)}
}

// Complete returns the commands starting with prefix, in sorted order.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
