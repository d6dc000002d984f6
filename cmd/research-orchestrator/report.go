// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-orchestrator/internal/report"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report [query]",
	Short: "Render a report from research artifacts or raw text",
	Long: `Report selects a template, generates the document and writes it to
report.output_dir. Material comes from, in order: --text-file, explicit
--draft/--state paths, or the newest research hand-off in
research.output_dir.`,
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	local, _ := cmd.Flags().GetBool("local")
	textFile, _ := cmd.Flags().GetString("text-file")
	draft, _ := cmd.Flags().GetString("draft")
	state, _ := cmd.Flags().GetString("state")
	tmpl, _ := cmd.Flags().GetString("template")

	a, err := loadApp(cmd.Context(), cmd.ErrOrStderr(), func(cfg *types.PipelineConfig) {
		if local {
			cfg.Report.ForceLocal = true
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		f = string(a.cfg.Report.OutputFormat)
	}
	req := report.Request{
		Query:        strings.Join(args, " "),
		TemplateHint: strings.TrimSuffix(tmpl, ".md"),
		Format:       types.ParseOutputFormat(f),
		Artifacts:    types.ArtifactHandle{DraftPath: draft, StatePath: state},
	}
	progress := func(pct int) { fmt.Fprintf(cmd.ErrOrStderr(), "progress: %d%%\n", pct) }

	var res report.Result
	switch {
	case textFile != "":
		data, err := os.ReadFile(textFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", textFile, err)
		}
		req.Sources = report.Sources{Draft: string(data)}
		res, err = a.report.Generate(cmd.Context(), req, progress)
		if err != nil {
			return err
		}
	case !req.Artifacts.Empty():
		res, err = a.report.Generate(cmd.Context(), req, progress)
		if err != nil {
			return err
		}
	default:
		res, err = a.report.GenerateFromArtifacts(cmd.Context(), a.cfg.Research.OutputDir, req, progress)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "report: %s\n", res.Path)
	fmt.Fprintf(out, "template: %s\n", res.Template)
	if res.Fallback != "" {
		fmt.Fprintf(out, "rendered locally: %s\n", res.Fallback)
	}
	return nil
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the report templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), cmd.ErrOrStderr(), func(cfg *types.PipelineConfig) {
			cfg.Memory.Backend = types.MemoryNone
		})
		if err != nil {
			return err
		}
		defer a.Close()
		for _, t := range a.report.Catalog().Templates() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", t.Name, t.Description)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().String("format", "", "output format: html, docx, or pdf (default from config)")
	reportCmd.Flags().String("template", "", "template name to use instead of automatic selection")
	reportCmd.Flags().String("text-file", "", "render this Markdown/text file instead of research artifacts")
	reportCmd.Flags().String("draft", "", "research draft path")
	reportCmd.Flags().String("state", "", "research state path")
	reportCmd.Flags().Bool("local", false, "skip the LLM and render the material locally")

	reportCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(reportCmd)
}
