// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Run the research engine on a query",
	Long: `Research plans an outline for the query, searches and summarizes each
section with reflection passes, and writes the state, draft and hand-off
files to research.output_dir. The final narrative is printed to stdout.

Quick mode processes only the first sections with a fixed news tool and no
reflection.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quick, _ := cmd.Flags().GetBool("quick")
		reflections, _ := cmd.Flags().GetInt("reflections")

		a, err := loadApp(cmd.Context(), cmd.ErrOrStderr(), func(cfg *types.PipelineConfig) {
			if quick {
				cfg.Research.Quick = true
			}
			if cmd.Flags().Changed("reflections") {
				cfg.Research.MaxReflections = reflections
			}
		})
		if err != nil {
			return err
		}
		defer a.Close()
		if a.research == nil {
			return errors.New("research needs an LLM provider credential and a Tavily API key")
		}

		res, err := a.research.Research(cmd.Context(), strings.Join(args, " "), func(pct int) {
			fmt.Fprintf(cmd.ErrOrStderr(), "progress: %d%%\n", pct)
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, res.Report)
		fmt.Fprintln(out)
		if res.Artifacts.DraftPath != "" {
			fmt.Fprintf(out, "draft: %s\n", res.Artifacts.DraftPath)
		}
		if res.Artifacts.StatePath != "" {
			fmt.Fprintf(out, "state: %s\n", res.Artifacts.StatePath)
		}
		if res.Artifacts.ReportPath != "" {
			fmt.Fprintf(out, "report: %s\n", res.Artifacts.ReportPath)
		}
		return nil
	},
}

func init() {
	researchCmd.Flags().Bool("quick", false, "quick mode: fewer sections, no reflection")
	researchCmd.Flags().Int("reflections", 2, "reflection passes per section")

	rootCmd.AddCommand(researchCmd)
}
