package main

import (
	"os"

	"github.com/aretw0/keystone/internal/cli"
	"github.com/aretw0/keystone/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var surveyCmd = &cobra.Command{
	Use:   "survey",
	Short: "Take the survey in the terminal",
	Long: `Walks through the exit-readiness survey interactively. Answer with the
option number, "s" to skip, "b" to go back and "quit" to leave. The report
unlocks once a valid email is submitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := cli.CreateLogger(cfg.Log)
		if err != nil {
			return err
		}
		plain, _ := cmd.Flags().GetBool("plain")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		return cli.RunSurvey(ctx, cfg, logger, cli.SurveyOptions{
			Input:  os.Stdin,
			Output: os.Stdout,
			Pretty: !plain && tui.IsTerminal(os.Stdout),
			Width:  tui.Width(os.Stdout),
		})
	},
}

func init() {
	rootCmd.AddCommand(surveyCmd)
	surveyCmd.Flags().Bool("plain", false, "Disable markdown styling and the banner")

	// Taking the survey is the default action.
	rootCmd.RunE = surveyCmd.RunE
	rootCmd.Flags().AddFlagSet(surveyCmd.Flags())
}
