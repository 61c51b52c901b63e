package stream

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Result is the outcome of classifying one frame.
type Result struct {
	// Event is the classified event. Zero-valued (empty Name) when the
	// frame name is not part of the taxonomy.
	Event Event
	// Known reports whether the frame name belongs to the taxonomy.
	Known bool
	// Fallback reports whether the body could not be parsed as the
	// expected shape and a best-effort substitute was used.
	Fallback bool
}

// Classify parses one raw frame into a typed event. It never panics and
// never returns an error: an unparseable body is substituted with
// {"message": <raw body>}, and an unknown frame name yields a Result
// with Known=false so the caller can count and drop it.
func Classify(name string, body []byte) Result {
	n := Name(name)
	if n == NameAgentWorking {
		n = NameAgentActivity
	}

	res := Result{Event: Event{Name: n}}

	data, substituted := normalizeBody(body)
	res.Fallback = substituted

	switch n {
	case NameConnected, NameKeepalive:
		res.Known = true
		res.Fallback = false // these frames carry no payload

	case NameLog:
		var p LogPayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		if p.Message == "" {
			p.Message = strings.TrimSpace(string(body))
		}
		res.Event.Log = &p
		res.Known = true

	case NameReasoningChunk, NameResponseChunk:
		var p ChunkPayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		res.Event.Chunk = &p
		res.Known = true

	case NameAgentActivity:
		var p ActivityPayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		res.Event.Activity = &p
		res.Known = true

	case NameToolStarted:
		var p ToolStartPayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		res.Event.ToolStart = &p
		res.Known = true

	case NameToolCompleted:
		var p ToolDonePayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		res.Event.ToolDone = &p
		res.Known = true

	case NameStageStarted, NameStageCompleted:
		var p StagePayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		res.Event.Stage = &p
		res.Known = true

	case NameStepStarted:
		var p StepStartPayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		res.Event.StepStart = &p
		res.Known = true

	case NameStepCompleted:
		var p StepDonePayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		res.Event.StepDone = &p
		res.Known = true

	case NameProgress:
		var p ProgressPayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		res.Event.Progress = &p
		res.Known = true

	case NameFileCreated:
		var p FilePayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		res.Event.File = &p
		res.Known = true

	case NameError:
		var p ErrorPayload
		res.Fallback = decodePayload(data, &p) || res.Fallback
		if p.Message == "" {
			p.Message = strings.TrimSpace(string(body))
		}
		res.Event.Err = &p
		res.Known = true

	default:
		res.Event.Name = Name(name)
	}

	return res
}

// normalizeBody returns the body as valid JSON. A body that is not
// valid JSON is substituted with {"message": <raw>}. The second return
// reports whether a substitution happened.
func normalizeBody(body []byte) ([]byte, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return []byte("{}"), false
	}
	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed), false
	}
	sub, err := json.Marshal(map[string]string{"message": trimmed})
	if err != nil {
		return []byte("{}"), true
	}
	return sub, true
}

// decodePayload unmarshals data into dst, reporting true when the shape
// did not match and dst was left best-effort.
func decodePayload(data []byte, dst any) bool {
	return json.Unmarshal(data, dst) != nil
}

// Log-noise suppression. Jobs emit large volumes of bare progress
// chatter ("45%", "processing...", "step 3/8") that adds nothing to the
// visible action log.
var (
	logNoiseRe = regexp.MustCompile(`(?i)^\s*(?:\d{1,3}(?:\.\d+)?\s*%?|processing\.*|working\.*|running\.*|loading\.*|step\s*\d+(?:\s*(?:/|of)\s*\d+)?|\.+)\s*$`)
	logKeepRe  = regexp.MustCompile(`(?i)(success|succeeded|complete|finish|fail|error|warn|creat|saved|wrote|writing|file|✓|✗|❌|✅)`)
)

// SuppressLog reports whether a log payload should be hidden from the
// action log. Messages shorter than minLen or matching bare progress
// noise are suppressed, unless they carry a success/failure/file marker
// or are emitted at error level, which are always surfaced.
func SuppressLog(p *LogPayload, minLen int) bool {
	if p == nil {
		return true
	}
	if strings.EqualFold(p.Level, "error") {
		return false
	}
	msg := strings.TrimSpace(p.Message)
	if logKeepRe.MatchString(msg) {
		return false
	}
	if len(msg) < minLen {
		return true
	}
	return logNoiseRe.MatchString(msg)
}
