// Package main is the entry point for the pulse CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/danielolaszy/pulse/cmd"
	"github.com/danielolaszy/pulse/internal/logging"
)

// main executes the root command and exits non-zero if it fails.
func main() {
	logging.Debug("starting pulse cli", "version", "1.0.0", "log_level", logging.LevelFromEnv())

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
