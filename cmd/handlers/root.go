// Package handlers holds the cobra commands of the brainstream CLI.
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/japanese-wolf/brain-stream/internal/config"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "brainstream",
		Short: "Personal technology-intelligence hub",
		Long: `brainstream collects announcements from cloud vendors, AI providers and
open-source release feeds, summarizes them with a local LLM CLI tool,
clusters them into topics and serves a personalized feed that balances
your interests with serendipitous discoveries.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.brainstream.yaml)")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewFetchCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewSourcesCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}
