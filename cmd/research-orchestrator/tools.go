// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-orchestrator/internal/search"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

var toolsCmd = &cobra.Command{
	Use:   "tools [tool] [query]",
	Short: "List the news search tools, or run one",
	Long: `Without arguments, tools lists the six news search tools. With a tool name
and a query it runs that tool against Tavily and prints the results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, name := range types.SearchTools {
				fmt.Fprintln(out, name)
			}
			return nil
		}
		if len(args) < 2 {
			return fmt.Errorf("usage: tools <tool> <query>")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Search.APIKey == "" {
			return errors.New("no Tavily API key (set search.api_key or .secrets/tavily-api-key)")
		}

		req := types.SearchRequest{Tool: args[0], Query: strings.Join(args[1:], " ")}
		req.StartDate, _ = cmd.Flags().GetString("from")
		req.EndDate, _ = cmd.Flags().GetString("to")
		req.MaxResults, _ = cmd.Flags().GetInt("max-results")

		resp, err := search.NewTavily(cfg.Search).Call(cmd.Context(), req)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return search.FormatJSON(resp, out)
		}
		search.FormatTable(resp, out)
		return nil
	},
}

func init() {
	toolsCmd.Flags().String("from", "", "date range start for search_news_by_date (YYYY-MM-DD)")
	toolsCmd.Flags().String("to", "", "date range end for search_news_by_date (YYYY-MM-DD)")
	toolsCmd.Flags().Int("max-results", 0, "maximum number of results (0 = tool default)")
	toolsCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(toolsCmd)
}
