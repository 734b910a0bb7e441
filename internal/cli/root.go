// Package cli implements the staketax command line interface.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/staketax/internal/config"
	"github.com/me/staketax/internal/logging"
)

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the staketax CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "staketax",
		Short: "staketax — staking income reports for tax filing",
		Long: "staketax computes yearly staking income from on-chain data or\n" +
			"exchange CSV exports and values it in USD using historical prices.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			// Flags win over the config file.
			if cmd.Flags().Changed("log-level") || cfg.LogLevel == "" {
				cfg.LogLevel = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") || cfg.LogFormat == "" {
				cfg.LogFormat = flagLogFormat
			}
			logger = logging.New(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newCalcCmd(),
	)

	return root
}
