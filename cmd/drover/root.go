package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/droverlabs/drover/internal/cli"
	"github.com/droverlabs/drover/internal/config"
	"github.com/droverlabs/drover/pkg/supervisor"
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Drover is a supervisor engine for multi-agent conversations",
	Long: `Drover runs conversations through a supervisor loop: each user message
is routed across specialist executors one bounded step at a time, every
step committed atomically, until the turn ends with an answer or a
clarifying question.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the drover config file (default drover.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging and step-loop tracing")
}

// newRuntime loads configuration and assembles the engine the way every
// command shares it.
func newRuntime(cmd *cobra.Command) (*config.Config, *cli.Runtime, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := cli.NewLogger(cfg.Logging, debug)
	var extra []supervisor.Option
	if debug {
		extra = append(extra, supervisor.WithHooks(cli.DebugHooks(logger)))
	}

	rt, err := cli.NewRuntime(cfg, logger, extra...)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, rt, logger, nil
}
