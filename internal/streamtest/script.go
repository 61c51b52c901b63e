package streamtest

import "github.com/pverill/agentfeed/internal/payload"

// DemoSegments returns a scripted thesis-style job for the CLI demo
// mode: a research stage with a tool call and embedded search results,
// three numbered steps with streamed response text, and a terminal
// success signal. The segment boundary exercises the reconnect path.
func DemoSegments() [][]Frame {
	searchContent, err := payload.Encode(payload.KindSearchResults, map[string]any{
		"query": "solid state battery anode materials",
		"results": []map[string]string{
			{"title": "Lithium metal anodes in solid-state cells", "url": "https://example.org/ssb-anodes", "snippet": "Review of anode interfaces."},
			{"title": "Silicon composite anode survey", "url": "https://example.org/si-anode", "snippet": "Capacity retention data."},
		},
	})
	if err != nil {
		panic(err)
	}

	return [][]Frame{
		{
			JSONFrame("connected", map[string]any{}),
			JSONFrame("stage_started", map[string]any{"stage": "research", "message": "Gathering sources"}),
			JSONFrame("tool_started", map[string]any{"tool": "search", "step": 1, "total": 3, "description": "Searching for sources"}),
			JSONFrame("log", map[string]any{"message": "Found 12 candidate sources", "level": "info"}),
			JSONFrame("tool_completed", map[string]any{"tool": "search", "status": "success"}),
			JSONFrame("log", map[string]any{"message": searchContent, "level": "info"}),
			JSONFrame("stage_completed", map[string]any{"stage": "research", "status": "success"}),
			JSONFrame("step_started", map[string]any{"step": 1, "name": "Outline", "total_steps": 3}),
			JSONFrame("response_chunk", map[string]any{"chunk": "Drafting", "accumulated": "Drafting the outline"}),
			JSONFrame("response_chunk", map[string]any{"chunk": "...", "accumulated": "Drafting the outline across three sections.", "completed": true}),
			JSONFrame("step_completed", map[string]any{"step": 1, "name": "Outline", "wordCount": 412}),
		},
		{
			JSONFrame("connected", map[string]any{}),
			JSONFrame("step_started", map[string]any{"step": 2, "name": "Draft"}),
			JSONFrame("file_created", map[string]any{"path": "draft/chapter-1.md", "type": "markdown"}),
			JSONFrame("step_completed", map[string]any{"step": 2, "name": "Draft", "wordCount": 1890, "file": "draft/chapter-1.md"}),
			JSONFrame("progress", map[string]any{"percentage": 70, "message": "Revising"}),
			JSONFrame("step_started", map[string]any{"step": 3, "name": "Revise"}),
			JSONFrame("step_completed", map[string]any{"step": 3, "name": "Revise"}),
			JSONFrame("stage_completed", map[string]any{"stage": "complete", "status": "success"}),
			JSONFrame("keepalive", nil),
		},
	}
}
