package main

import (
	"fmt"

	"github.com/aretw0/keystone/internal/presentation/graph"
	"github.com/aretw0/keystone/pkg/survey"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the survey flow visualization",
	Long:  `Loads the configured survey and outputs a Mermaid diagram (graph TD) of its steps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		def := survey.Default()
		if cfg.Survey.Path != "" {
			if def, err = survey.LoadFile(cfg.Survey.Path); err != nil {
				return err
			}
		}

		var overlay *graph.Overlay
		if cmd.Flags().Changed("current") {
			current, _ := cmd.Flags().GetInt("current")
			overlay = &graph.Overlay{Current: current}
			for i := 0; i < current; i++ {
				overlay.Visited = append(overlay.Visited, i)
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(def, cfg.Survey.GateDelay, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Int("current", 0, "Highlight this step index and mark earlier ones visited")
}
