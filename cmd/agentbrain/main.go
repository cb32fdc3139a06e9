// Package main provides the agentbrain CLI.
package main

import (
	"os"

	"github.com/agentbrain/agentbrain/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
