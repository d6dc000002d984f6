// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-orchestrator/internal/memory"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage long-term conversation memory",
	Long: `Memory works directly against the configured backend (memory.backend:
sqlite or redis). Unlike the pipeline, failures here are reported.`,
}

// --- query subcommand ---

var memoryQueryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search remembered turns relevant to a text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMemoryQuery,
}

func runMemoryQuery(cmd *cobra.Command, args []string) error {
	cfg, store, err := openMemory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = cfg.Memory.MaxResults
	}
	turns, err := store.Search(cmd.Context(), memoryProfile(cmd, cfg), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatTurns(cmd.OutOrStdout(), turns, jsonOutput)
}

func formatTurns(w io.Writer, turns []memory.Turn, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(turns)
	}

	if len(turns) == 0 {
		fmt.Fprintln(w, "No remembered turns found.")
		return nil
	}

	fmt.Fprintf(w, "%-4s  %-10s  %-40s  %s\n", "Rank", "Date", "User", "Reply")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for i, t := range turns {
		date := ""
		if !t.CreatedAt.IsZero() {
			date = t.CreatedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%-4d  %-10s  %-40s  %s\n", i+1, date, shorten(t.User, 40), shorten(t.Reply, 50))
	}
	fmt.Fprintf(w, "\n%d turns\n", len(turns))
	return nil
}

// --- add subcommand ---

var memoryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record one exchange",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		reply, _ := cmd.Flags().GetString("reply")
		if strings.TrimSpace(user) == "" || strings.TrimSpace(reply) == "" {
			return fmt.Errorf("--user and --reply are required")
		}

		cfg, store, err := openMemory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		profile := memoryProfile(cmd, cfg)
		if err := store.Add(cmd.Context(), memory.Turn{Profile: profile, User: user, Reply: reply}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Remembered under profile %q.\n", profile)
		return nil
	},
}

// --- export subcommand ---

var memoryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export remembered turns to YAML or JSON",
	Long: `Export writes every remembered turn for the profile (or all profiles with
--all) to stdout or to --output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		all, _ := cmd.Flags().GetBool("all")

		cfg, store, err := openMemory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		profile := memoryProfile(cmd, cfg)
		if all {
			profile = ""
		}

		w := cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}
		if err := memory.Export(cmd.Context(), store, profile, format, w); err != nil {
			return err
		}
		if output != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", output)
		}
		return nil
	},
}

// --- shared helpers ---

func openMemory(cmd *cobra.Command) (*types.PipelineConfig, memory.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Memory.Backend == types.MemoryNone {
		return nil, nil, fmt.Errorf("memory is disabled (memory.backend: none)")
	}
	store, err := openMemoryStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s memory: %w", cfg.Memory.Backend, err)
	}
	return cfg, store, nil
}

func memoryProfile(cmd *cobra.Command, cfg *types.PipelineConfig) string {
	if p, _ := cmd.Flags().GetString("profile"); p != "" {
		return p
	}
	if cfg.Memory.Profile != "" {
		return cfg.Memory.Profile
	}
	return "default"
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

func init() {
	memoryCmd.PersistentFlags().String("profile", "", "memory profile (default from config)")

	memoryQueryCmd.Flags().Int("limit", 0, "maximum turns (0 = memory.max_results)")
	memoryQueryCmd.Flags().Bool("json", false, "output results as JSON")

	memoryAddCmd.Flags().String("user", "", "user message")
	memoryAddCmd.Flags().String("reply", "", "assistant reply")

	memoryExportCmd.Flags().String("format", memory.FormatYAML, "export format: yaml or json")
	memoryExportCmd.Flags().String("output", "", "write to this file instead of stdout")
	memoryExportCmd.Flags().Bool("all", false, "export every profile")

	memoryCmd.AddCommand(memoryQueryCmd)
	memoryCmd.AddCommand(memoryAddCmd)
	memoryCmd.AddCommand(memoryExportCmd)

	rootCmd.AddCommand(memoryCmd)
}
