// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package intent

import "github.com/pdiddy/research-orchestrator/pkg/types"

// ToQueryEngineInputs maps an Intent onto the research engine's inputs.
// The time window selects the search tool; date_range uses the by-date tool
// only when both bounds are present.
func ToQueryEngineInputs(in types.Intent) types.QEInputs {
	tool := types.ToolBasicSearch
	switch in.TimeWindow {
	case types.WindowLast24h:
		tool = types.ToolLast24Hours
	case types.WindowLast7d:
		tool = types.ToolLastWeek
	case types.WindowDateRange:
		if in.DateFrom != "" && in.DateTo != "" {
			tool = types.ToolSearchByDate
		}
	}
	return types.QEInputs{
		ShouldUseQE: in.ShouldUseQE,
		SearchTool:  tool,
		Query:       in.PrimaryQuery(),
		StartDate:   in.DateFrom,
		EndDate:     in.DateTo,
	}
}
