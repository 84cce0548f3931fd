// Package main provides the atcscribe administration CLI.
//
// Usage:
//
//	atcscribe [flags] <service> <command> [args]
//
// Services:
//
//	history  - Browse and prune stored transcriptions
//	model    - Manage recognition models
//	settings - Read and write daemon preferences
//
// The CLI operates on the same data directories as atcscribed; point it
// at the daemon's configuration file with -c.
package main

import (
	"fmt"
	"os"

	"github.com/atcscribe/atcscribe-core/cmd/atcscribe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
