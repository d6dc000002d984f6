// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// HistoryMessage is one prior message in the conversation.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is the input to the orchestration entry point.
type TurnRequest struct {
	Text         string           `json:"text"`
	Profile      string           `json:"profile,omitempty"`
	ForceQuery   bool             `json:"force_query,omitempty"`
	ForceReport  bool             `json:"force_report,omitempty"`
	ForceCombo   bool             `json:"force_combo,omitempty"`
	ReportOutput string           `json:"report_output,omitempty"`
	ReplyLang    string           `json:"reply_lang,omitempty"`
	History      []HistoryMessage `json:"history,omitempty"`
}

// TurnResponse is the output of the orchestration entry point. It always
// carries a non-empty Result.
type TurnResponse struct {
	Result           string  `json:"result"`
	Plan             *Intent `json:"plan,omitempty"`
	QESummary        string  `json:"qe_summary,omitempty"`
	QEDraftPath      string  `json:"qe_draft_path,omitempty"`
	QEStatePath      string  `json:"qe_state_path,omitempty"`
	REReportPath     string  `json:"re_report_path,omitempty"`
	RETemplate       string  `json:"re_template,omitempty"`
	Branch           string  `json:"branch,omitempty"`
	ComboSignal      string  `json:"combo_signal,omitempty"`
	UsedQueryEngine  bool    `json:"used_query_engine"`
	UsedReportEngine bool    `json:"used_report_engine"`
	UsedMemory       bool    `json:"used_grag_memory"`
	Error            string  `json:"error,omitempty"`
}

// PipelineState is the per-turn aggregate carried through the pipeline stages.
type PipelineState struct {
	UserInput     string
	ReportOutput  OutputFormat
	Intent        Intent
	MemoryContext string

	QESummary   string
	QEArtifacts ArtifactHandle

	RETemplate   string
	REReportPath string

	FinalReply string

	ForceQuery  bool
	ForceReport bool
	ForceCombo  bool

	// Failures collects labeled stage failure fragments such as "[RE failed] ...".
	Failures []string
}
