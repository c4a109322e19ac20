package main

import (
	"daw-agent-be/internal/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

type rootOptions struct {
	verbose bool
}

func (o *rootOptions) logger() logger.ILogger {
	if o.verbose {
		return logger.NewConsoleLogger(zapcore.DebugLevel)
	}
	return logger.NewConsoleLogger(zapcore.WarnLevel)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "agentctl",
		Short: "Operate the DAW agent core from the terminal",
		Long: `agentctl drives the agent orchestration core without the HTTP server.

Quick Start:
  agentctl simulate --scenario scenario.yaml   # replay a scripted Sense/Plan/Act run
  agentctl knowledge search "jazz ii-V-I"      # query the retrieval catalogue
  agentctl memory export --path data/agent.db  # dump the persisted memory snapshot`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging on stderr")

	rootCmd.AddCommand(
		newSimulateCmd(opts),
		newKnowledgeCmd(opts),
		newMemoryCmd(opts),
		newEventsCmd(opts),
	)
	return rootCmd
}
