package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires every subcommand.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	upFlags := &UpFlags{}
	queryFlags := &QueryFlags{}
	serveFlags := &ServeFlags{}

	benchrigCommand := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createUpCommand(benchrigCommand, upFlags),
		createDownCommand(benchrigCommand),
		createStatusCommand(benchrigCommand, queryFlags),
		createHealthCommand(benchrigCommand, queryFlags),
		createURLsCommand(benchrigCommand, queryFlags),
		createStatsCommand(benchrigCommand, queryFlags),
		createServeCommand(benchrigCommand, serveFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "benchrig",
		Short: "Dependency lifecycle manager for benchmark runs",
		Long: `Benchrig brings up the services a benchmark run depends on (the agent
server and the blockchain sandbox node), waits until they answer health
checks, and supervises them until teardown.

Examples:
  benchrig up                        # start dependencies, wait for Ctrl-C
  benchrig up --serve                # also expose the observability API
  benchrig status                    # query a running daemon
  benchrig serve --listen :7171      # daemon mode`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	return root
}

func createUpCommand(c command, flags *UpFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start all dependencies and supervise them until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Up(*flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Serve, "serve", false, "expose the observability API while running")
	cmd.Flags().StringVar(&flags.Listen, "listen", defaultListen, "observability API listen address")
	return cmd
}

func createDownCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Terminate dependency processes found by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Down()
		},
	}
}

func createStatusCommand(c command, flags *QueryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show registered services and their health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(*flags)
		},
	}
	addQueryFlags(cmd, flags)
	return cmd
}

func createHealthCommand(c command, flags *QueryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether every dependency is healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Health(*flags)
		},
	}
	addQueryFlags(cmd, flags)
	return cmd
}

func createURLsCommand(c command, flags *QueryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "urls",
		Short: "Print the dependency URL bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.URLs(*flags)
		},
	}
	addQueryFlags(cmd, flags)
	return cmd
}

func createStatsCommand(c command, flags *QueryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-service health check statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stats(*flags)
		},
	}
	addQueryFlags(cmd, flags)
	return cmd
}

func createServeCommand(c command, flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as a daemon: start dependencies and serve the observability API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Serve(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", defaultListen, "listen address")
	return cmd
}

func addQueryFlags(cmd *cobra.Command, flags *QueryFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:7171)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}
