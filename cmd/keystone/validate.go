package main

import (
	"fmt"

	"github.com/aretw0/keystone/pkg/survey"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check a survey definition for consistency",
	Long: `Parses a YAML survey definition and reports every structural problem:
unknown keys, misplaced welcome or results steps, and questions without
options or with duplicate ids.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := survey.LoadFile(args[0])
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Survey %q is valid! ✅ (%d steps, %d questions)\n",
			def.ID, def.Len(), len(def.QuestionIDs()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
