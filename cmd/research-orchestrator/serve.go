// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/research-orchestrator/internal/server"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat, research, report and download API over HTTP",
	Long: `Serve exposes the orchestration pipeline at /api/chat, background research
and report jobs under /api/query and /api/report, report downloads, the
search tools, and Prometheus metrics at /metrics. Interrupting the process
stops the listener and cancels running jobs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		a, err := loadApp(cmd.Context(), nil, func(cfg *types.PipelineConfig) {
			if addr != "" {
				cfg.Server.Addr = addr
			}
		})
		if err != nil {
			return err
		}
		defer a.Close()

		deps := server.Deps{
			Config:   a.cfg,
			Pipeline: a.pipeline,
			Report:   a.report,
			Catalog:  a.report.Catalog(),
			Models:   a.models(),
		}
		if a.research != nil {
			deps.Research = a.research
		}
		if a.search != nil {
			deps.Search = a.search
		}
		return server.New(deps).Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config, :8080)")

	rootCmd.AddCommand(serveCmd)
}
