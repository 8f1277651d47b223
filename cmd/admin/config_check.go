package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCheckCmd = &cobra.Command{
	Use:   "config-check",
	Short: "Validate configuration and print it with secrets masked",
	Long: `Load the configuration exactly as the API server would, validate it
and print the result as YAML. The upstream secret, database password and
fingerprint key are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}

		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "# configuration OK")
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCheckCmd)
}
