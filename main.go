// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for cachesweep.
//
// Usage:
//
//	go run . [flags]
//	./cachesweep [command] [flags]
//
// Without a command the HTTP API and the scheduler are started. See --help
// for the other commands.
package main

import (
	"os"

	"github.com/toeirei/cachesweep/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// cobra has already printed the error.
		os.Exit(1)
	}
}
