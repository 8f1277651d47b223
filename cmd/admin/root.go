package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"linkproxy/internal/shared/config"
	"linkproxy/internal/shared/logger"
)

// Global flags
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Link proxy admin CLI",
	Long: `Management commands for the link proxy.

Configuration is read the same way the API server reads it: an optional
YAML file followed by environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.InitWithWriter("warn", "console", cmd.ErrOrStderr())
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (overrides CONFIG_FILE)")
}

// loadConfig loads configuration, honouring --config.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
			return nil, err
		}
	}
	return config.Load()
}
