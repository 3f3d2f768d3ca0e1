// Package main is the entry point for the usage-cost CLI.
package main

import (
	"os"

	"usage-cost/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
