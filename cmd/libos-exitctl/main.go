// Command libos-exitctl drives the LibOS termination subsystem: it runs exit
// scenarios, serves a process as a gossip node and inspects its profiles.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/libos-go/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "libos-exitctl:", err)
		os.Exit(1)
	}
}
