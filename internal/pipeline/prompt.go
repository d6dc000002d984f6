// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const (
	historyTurns    = 8
	memoryWriteMax  = 4000
	truncatedMarker = "\n...[truncated]"
)

const chatSystem = "You are a helpful research assistant. Answer directly and concisely. " +
	"If you are not sure about a fact, say so instead of guessing."

var replyLanguages = map[string]string{
	"zh": "Reply in Simplified Chinese.",
	"en": "Reply in English.",
	"ja": "Reply in Japanese.",
	"ko": "Reply in Korean.",
}

// chatSystemPrompt appends the language instruction and any remembered
// context to the base prompt.
func chatSystemPrompt(lang, memory string) string {
	var b strings.Builder
	b.WriteString(chatSystem)
	if instr, ok := replyLanguages[strings.ToLower(strings.TrimSpace(lang))]; ok {
		b.WriteString("\n\n")
		b.WriteString(instr)
	}
	if m := strings.TrimSpace(memory); m != "" {
		b.WriteString("\n\n[Memory]\nRelevant notes from earlier conversations:\n")
		b.WriteString(m)
	}
	return b.String()
}

// chatUserPrompt renders the last few history turns ahead of the new text.
func chatUserPrompt(text string, history []types.HistoryMessage) string {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	var lines []string
	for _, m := range history {
		c := strings.TrimSpace(m.Content)
		if c == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role == "" {
			role = "user"
		}
		lines = append(lines, role+": "+c)
	}
	if len(lines) == 0 {
		return text
	}
	return "[Conversation so far]\n" + strings.Join(lines, "\n") + "\n\n[Current message]\n" + text
}

// researchPayload builds the research query from the user text, the
// routing intent, the derived research inputs and remembered context.
func researchPayload(st *types.PipelineState, in types.QEInputs) string {
	blocks := []string{"[User request]\n" + st.UserInput}
	if st.Intent.Task != "" {
		if data, err := yaml.Marshal(st.Intent); err == nil {
			blocks = append(blocks, "[Intent]\n"+strings.TrimSpace(string(data)))
		}
		blocks = append(blocks, "[QE inputs]\n"+formatQEInputs(in))
	}
	if m := strings.TrimSpace(st.MemoryContext); m != "" {
		blocks = append(blocks, "[Memory]\n"+m)
	}
	return strings.Join(blocks, "\n\n")
}

func formatQEInputs(in types.QEInputs) string {
	lines := []string{
		fmt.Sprintf("should_use_qe: %t", in.ShouldUseQE),
		"search_tool: " + in.SearchTool,
		"query: " + in.Query,
	}
	if in.StartDate != "" {
		lines = append(lines, "start_date: "+in.StartDate)
	}
	if in.EndDate != "" {
		lines = append(lines, "end_date: "+in.EndDate)
	}
	return strings.Join(lines, "\n")
}

// memoryEntry clips what is written back to memory.
func memoryEntry(s string) string {
	r := []rune(s)
	if len(r) <= memoryWriteMax {
		return s
	}
	return string(r[:memoryWriteMax]) + truncatedMarker
}
