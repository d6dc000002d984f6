// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Run one turn, or an interactive session when no message is given",
	Long: `Chat runs the orchestration pipeline. With a message argument it runs a
single turn and prints the reply. Without one it reads messages from stdin,
one per line, and keeps the recent conversation as history.

The routing switches mirror the HTTP API: --research forces a research run,
--report forces a report, and --combo asks for research followed by a report.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := loadApp(ctx, cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	base := turnFlags(cmd)
	asJSON, _ := cmd.Flags().GetBool("json")

	if len(args) > 0 {
		req := base
		req.Text = strings.Join(args, " ")
		return printTurn(out, a.pipeline.Run(ctx, req), asJSON)
	}
	return chatLoop(ctx, a, base, cmd.InOrStdin(), out, asJSON)
}

func turnFlags(cmd *cobra.Command) types.TurnRequest {
	var req types.TurnRequest
	req.Profile, _ = cmd.Flags().GetString("profile")
	req.ForceQuery, _ = cmd.Flags().GetBool("research")
	req.ForceReport, _ = cmd.Flags().GetBool("report")
	req.ForceCombo, _ = cmd.Flags().GetBool("combo")
	req.ReportOutput, _ = cmd.Flags().GetString("format")
	req.ReplyLang, _ = cmd.Flags().GetString("lang")
	return req
}

// chatLoop reads one message per line until EOF or "exit".
func chatLoop(ctx context.Context, a *app, base types.TurnRequest, in io.Reader, out io.Writer, asJSON bool) error {
	var history []types.HistoryMessage
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	interactive := in == os.Stdin
	prompt := func() {
		if interactive {
			fmt.Fprint(out, "> ")
		}
	}

	prompt()
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			prompt()
			continue
		case "exit", "quit":
			return nil
		}

		req := base
		req.Text = text
		req.History = history
		resp := a.pipeline.Run(ctx, req)
		if err := printTurn(out, resp, asJSON); err != nil {
			return err
		}
		history = append(history,
			types.HistoryMessage{Role: "user", Content: text},
			types.HistoryMessage{Role: "assistant", Content: resp.Result})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		prompt()
	}
	return scanner.Err()
}

func printTurn(w io.Writer, resp types.TurnResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(w, resp.Result)
	if resp.Error != "" {
		fmt.Fprintf(w, "(error: %s)\n", resp.Error)
	}
	return nil
}

func init() {
	chatCmd.Flags().String("profile", "", "memory profile (default from config)")
	chatCmd.Flags().Bool("research", false, "force a research run")
	chatCmd.Flags().Bool("report", false, "force a report")
	chatCmd.Flags().Bool("combo", false, "research, then report on the findings")
	chatCmd.Flags().String("format", "", "report output format: html, docx, or pdf")
	chatCmd.Flags().String("lang", "", "reply language for plain chat (zh, en, ja, ko)")
	chatCmd.Flags().Bool("json", false, "print the full turn response as JSON")

	rootCmd.AddCommand(chatCmd)
}
