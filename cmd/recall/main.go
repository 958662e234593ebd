// Command recall is the operator CLI for semantic memory retrieval.
package main

import (
	"fmt"
	"os"

	"github.com/scrypster/recall/cmd/recall/commands"
)

// Version information (set by ldflags)
var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.SetVersion(version, commit)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
