package main

import (
	"fmt"
	"os"

	"github.com/aretw0/keystone/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keystone",
	Short: "Keystone is an exit-readiness survey for construction business owners",
	Long: `Keystone walks contractors through a short exit-readiness survey,
unlocks an indicative valuation report behind an email gate, and stores
the lead in a pluggable response store (memory, file, redis, sqlite, firebase).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().String("store", "", "Response store driver: memory, file, redis, sqlite, firebase")
	rootCmd.PersistentFlags().String("survey", "", "Path to a survey definition (YAML or JSON)")
}

// loadConfig reads the config file and environment, then applies explicit flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("store") {
		cfg.Store.Driver, _ = flags.GetString("store")
	}
	if flags.Changed("survey") {
		cfg.Survey.Path, _ = flags.GetString("survey")
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		cfg.Server.Addr, _ = flags.GetString("addr")
	}
	return cfg, cfg.Validate()
}
