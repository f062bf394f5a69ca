// Package main provides the CLI entry point for the annacore cognitive core.
//
// annacore drains a bounded thought buffer through a single cooperative
// scheduling loop, calling a language model provider and dispatching the
// actions it requests through a tool manager.
//
// # Basic Usage
//
// Start the core:
//
//	annacore run --config annacore.yaml
//
// Check the running core's health:
//
//	annacore healthcheck --addr localhost:9090
//
// # Environment Variables
//
// Configuration can be provided via environment variables referenced from
// the config file with shell-style expansion, e.g.:
//
//   - ANTHROPIC_API_KEY
//   - OPENAI_API_KEY
//   - VENICE_API_KEY
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main is the entry point for the annacore CLI.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "annacore",
		Short:   "annacore - cognitive core scheduling loop",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Long: `annacore drives the thought buffer -> scheduler -> tool manager
cycle: it drains candidate thoughts, assembles a context window, calls a
language model, and dispatches the actions it requests.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildHealthcheckCmd(),
	)

	return rootCmd
}
