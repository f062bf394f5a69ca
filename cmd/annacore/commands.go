package main

import (
	"time"

	"github.com/spf13/cobra"
)

// buildRunCmd creates the "run" command that starts the cognitive core.
func buildRunCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the cognitive core scheduling loop",
		Long: `Start the cognitive core: load configuration, wire the thought
buffer, tool manager, memory adapter and language model provider into a
Scheduler, and run its cycle loop until a shutdown signal arrives.`,
		Example: `  # Start with default config
  annacore run

  # Start with custom config
  annacore run --config /etc/annacore/production.yaml

  # Start with debug logging
  annacore run --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCore(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "annacore.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")

	return cmd
}

// buildHealthcheckCmd creates the "healthcheck" command, a thin HTTP client
// against a running core's /healthz endpoint — intended for container
// liveness probes.
func buildHealthcheckCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check whether a running core is healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(cmd.Context(), addr, timeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "host:port of the core's observability server")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")

	return cmd
}
