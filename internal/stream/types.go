// Package stream implements the client side of the agent-actions event
// feed: a long-lived server-sent-event subscription for one job, the
// closed taxonomy of frame types it carries, and the reconnect policy
// that keeps the subscription alive across network interruptions.
package stream

import (
	"encoding/json"
	"strconv"
)

// Name identifies the type of a frame on the wire.
type Name string

const (
	// Server → client event names.

	// NameConnected confirms the subscription is live.
	NameConnected Name = "connected"
	// NameLog is a free-text log line from the job.
	NameLog Name = "log"
	// NameReasoningChunk streams the job's thinking text.
	NameReasoningChunk Name = "reasoning_chunk"
	// NameResponseChunk streams the job's response text.
	NameResponseChunk Name = "response_chunk"
	// NameAgentActivity reports what a sub-agent is doing.
	NameAgentActivity Name = "agent_activity"
	// NameAgentWorking is an alias of agent_activity used by older jobs.
	NameAgentWorking Name = "agent_working"
	// NameToolStarted marks the start of a tool invocation.
	NameToolStarted Name = "tool_started"
	// NameToolCompleted marks the end of a tool invocation.
	NameToolCompleted Name = "tool_completed"
	// NameStageStarted marks the start of a named pipeline stage.
	NameStageStarted Name = "stage_started"
	// NameStageCompleted marks the end of a named pipeline stage.
	NameStageCompleted Name = "stage_completed"
	// NameStepStarted marks the start of a numbered step.
	NameStepStarted Name = "step_started"
	// NameStepCompleted marks the end of a numbered step.
	NameStepCompleted Name = "step_completed"
	// NameProgress carries an externally computed progress percentage.
	NameProgress Name = "progress"
	// NameFileCreated reports a file written by the job.
	NameFileCreated Name = "file_created"
	// NameError reports a job-level error.
	NameError Name = "error"
	// NameKeepalive is a liveness ping with no payload.
	NameKeepalive Name = "keepalive"
)

// Event is one classified frame. Name identifies which payload field is
// set; at most one payload pointer is non-nil. Events are ephemeral and
// consumed once by the reconciler.
type Event struct {
	Name Name

	Log       *LogPayload
	Chunk     *ChunkPayload
	Activity  *ActivityPayload
	ToolStart *ToolStartPayload
	ToolDone  *ToolDonePayload
	Stage     *StagePayload
	StepStart *StepStartPayload
	StepDone  *StepDonePayload
	Progress  *ProgressPayload
	File      *FilePayload
	Err       *ErrorPayload
}

// LogPayload is the body of a log frame.
type LogPayload struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// ChunkPayload is the body of reasoning_chunk and response_chunk
// frames. Accumulated always carries the full text to date, so a
// consumer replaces rather than appends.
type ChunkPayload struct {
	Chunk       string `json:"chunk"`
	Accumulated string `json:"accumulated"`
	Completed   bool   `json:"completed"`
}

// ActivityPayload is the body of agent_activity / agent_working frames.
type ActivityPayload struct {
	Agent  string `json:"agent"`
	Action string `json:"action"`
	Status string `json:"status"`
}

// ToolStartPayload is the body of a tool_started frame.
type ToolStartPayload struct {
	Tool        string `json:"tool"`
	Step        int    `json:"step"`
	Total       int    `json:"total"`
	Description string `json:"description"`
}

// ToolDonePayload is the body of a tool_completed frame.
type ToolDonePayload struct {
	Tool   string `json:"tool"`
	Status string `json:"status"`
}

// StagePayload is the body of stage_started and stage_completed frames.
type StagePayload struct {
	Stage    string         `json:"stage"`
	Message  string         `json:"message"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

// StepStartPayload is the body of a step_started frame.
type StepStartPayload struct {
	Step       int    `json:"step"`
	Name       string `json:"name"`
	TotalSteps int    `json:"total_steps"`
}

// StepDonePayload is the body of a step_completed frame.
type StepDonePayload struct {
	Step      int    `json:"step"`
	Name      string `json:"name"`
	WordCount int    `json:"wordCount"`
	File      string `json:"file"`
}

// ProgressPayload is the body of a progress frame. The backend is
// inconsistent about the field name and type of the percentage, so
// unmarshalling accepts "percentage" or "percent", numeric or string.
type ProgressPayload struct {
	Percentage     float64
	Message        string
	CurrentSection string
}

// UnmarshalJSON implements tolerant decoding for ProgressPayload.
func (p *ProgressPayload) UnmarshalJSON(data []byte) error {
	var raw struct {
		Percentage     any    `json:"percentage"`
		Percent        any    `json:"percent"`
		Message        string `json:"message"`
		CurrentSection string `json:"current_section"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Message = raw.Message
	p.CurrentSection = raw.CurrentSection
	v := raw.Percentage
	if v == nil {
		v = raw.Percent
	}
	p.Percentage = coerceFloat(v)
	return nil
}

func coerceFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// FilePayload is the body of a file_created frame.
type FilePayload struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Message string `json:"message"`
}
