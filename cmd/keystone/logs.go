package main

import (
	"log/slog"

	"github.com/aretw0/keystone/internal/cli"
	"github.com/aretw0/keystone/internal/config"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect and manage stored response logs",
}

var logsGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print every entry stored under KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		return cli.GetLogs(cmd.Context(), cfg, logger, args[0], cmd.OutOrStdout())
	},
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recently written keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		return cli.ListLogs(cmd.Context(), cfg, logger, limit, cmd.OutOrStdout())
	},
}

var logsDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Delete every entry stored under KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		return cli.DeleteLogs(cmd.Context(), cfg, logger, args[0], cmd.OutOrStdout())
	},
}

func setup(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := cli.CreateLogger(cfg.Log)
	return cfg, logger, err
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsGetCmd, logsListCmd, logsDeleteCmd)
	logsListCmd.Flags().IntP("limit", "n", 50, "Maximum number of keys to list (0 for all)")
}
