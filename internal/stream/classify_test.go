package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTaxonomy(t *testing.T) {
	t.Parallel()

	t.Run("log", func(t *testing.T) {
		t.Parallel()

		res := Classify("log", []byte(`{"message":"wrote chapter one","level":"info"}`))
		require.True(t, res.Known)
		require.NotNil(t, res.Event.Log)
		assert.Equal(t, "wrote chapter one", res.Event.Log.Message)
		assert.Equal(t, "info", res.Event.Log.Level)
		assert.False(t, res.Fallback)
	})

	t.Run("reasoning chunk", func(t *testing.T) {
		t.Parallel()

		res := Classify("reasoning_chunk", []byte(`{"chunk":"so","accumulated":"and so"}`))
		require.True(t, res.Known)
		require.NotNil(t, res.Event.Chunk)
		assert.Equal(t, "and so", res.Event.Chunk.Accumulated)
		assert.False(t, res.Event.Chunk.Completed)
	})

	t.Run("response chunk completed", func(t *testing.T) {
		t.Parallel()

		res := Classify("response_chunk", []byte(`{"accumulated":"full text","completed":true}`))
		require.NotNil(t, res.Event.Chunk)
		assert.True(t, res.Event.Chunk.Completed)
	})

	t.Run("agent_working aliases agent_activity", func(t *testing.T) {
		t.Parallel()

		res := Classify("agent_working", []byte(`{"agent":"browser","action":"navigate","status":"started"}`))
		require.True(t, res.Known)
		assert.Equal(t, NameAgentActivity, res.Event.Name)
		require.NotNil(t, res.Event.Activity)
		assert.Equal(t, "browser", res.Event.Activity.Agent)
	})

	t.Run("tool lifecycle", func(t *testing.T) {
		t.Parallel()

		start := Classify("tool_started", []byte(`{"tool":"search","step":2,"total":5,"description":"Searching"}`))
		require.NotNil(t, start.Event.ToolStart)
		assert.Equal(t, "search", start.Event.ToolStart.Tool)
		assert.Equal(t, 2, start.Event.ToolStart.Step)

		done := Classify("tool_completed", []byte(`{"tool":"search","status":"success"}`))
		require.NotNil(t, done.Event.ToolDone)
		assert.Equal(t, "success", done.Event.ToolDone.Status)
	})

	t.Run("stage with metadata", func(t *testing.T) {
		t.Parallel()

		res := Classify("stage_completed", []byte(`{"stage":"complete","status":"success","metadata":{"task_id":"t1"}}`))
		require.NotNil(t, res.Event.Stage)
		assert.Equal(t, "complete", res.Event.Stage.Stage)
		assert.Equal(t, "t1", res.Event.Stage.Metadata["task_id"])
	})

	t.Run("steps", func(t *testing.T) {
		t.Parallel()

		start := Classify("step_started", []byte(`{"step":1,"name":"Outline","total_steps":8}`))
		require.NotNil(t, start.Event.StepStart)
		assert.Equal(t, 8, start.Event.StepStart.TotalSteps)

		done := Classify("step_completed", []byte(`{"step":1,"name":"Outline","wordCount":412,"file":"outline.md"}`))
		require.NotNil(t, done.Event.StepDone)
		assert.Equal(t, 412, done.Event.StepDone.WordCount)
		assert.Equal(t, "outline.md", done.Event.StepDone.File)
	})

	t.Run("file_created and error", func(t *testing.T) {
		t.Parallel()

		f := Classify("file_created", []byte(`{"path":"draft/ch1.md","type":"markdown"}`))
		require.NotNil(t, f.Event.File)
		assert.Equal(t, "draft/ch1.md", f.Event.File.Path)

		e := Classify("error", []byte(`{"message":"model overloaded"}`))
		require.NotNil(t, e.Event.Err)
		assert.Equal(t, "model overloaded", e.Event.Err.Message)
	})

	t.Run("connected and keepalive carry no payload", func(t *testing.T) {
		t.Parallel()

		for _, name := range []string{"connected", "keepalive"} {
			res := Classify(name, nil)
			assert.True(t, res.Known, name)
			assert.False(t, res.Fallback, name)
		}
	})
}

func TestClassifyProgress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want float64
	}{
		{"percentage number", `{"percentage":42.5}`, 42.5},
		{"percent number", `{"percent":70}`, 70},
		{"percentage string", `{"percentage":"55"}`, 55},
		{"garbage percentage", `{"percentage":"n/a"}`, 0},
		{"missing", `{"message":"almost"}`, 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res := Classify("progress", []byte(tc.body))
			require.True(t, res.Known)
			require.NotNil(t, res.Event.Progress)
			assert.Equal(t, tc.want, res.Event.Progress.Percentage)
		})
	}
}

func TestClassifyRobustness(t *testing.T) {
	t.Parallel()

	t.Run("non-JSON body substitutes message", func(t *testing.T) {
		t.Parallel()

		res := Classify("log", []byte("plain text, not json at all"))
		require.True(t, res.Known)
		assert.True(t, res.Fallback)
		require.NotNil(t, res.Event.Log)
		assert.Equal(t, "plain text, not json at all", res.Event.Log.Message)
	})

	t.Run("truncated JSON substitutes message", func(t *testing.T) {
		t.Parallel()

		res := Classify("error", []byte(`{"message":"half a fra`))
		require.True(t, res.Known)
		assert.True(t, res.Fallback)
		require.NotNil(t, res.Event.Err)
		assert.NotEmpty(t, res.Event.Err.Message)
	})

	t.Run("wrong-shape JSON does not panic", func(t *testing.T) {
		t.Parallel()

		res := Classify("step_started", []byte(`["not","an","object"]`))
		require.True(t, res.Known)
		assert.True(t, res.Fallback)
		require.NotNil(t, res.Event.StepStart)
	})

	t.Run("unknown event name is not classified", func(t *testing.T) {
		t.Parallel()

		res := Classify("telemetry_v2", []byte(`{}`))
		assert.False(t, res.Known)
	})

	t.Run("empty body", func(t *testing.T) {
		t.Parallel()

		res := Classify("log", nil)
		require.True(t, res.Known)
		require.NotNil(t, res.Event.Log)
	})
}

func TestSuppressLog(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		payload  LogPayload
		suppress bool
	}{
		{"bare percentage", LogPayload{Message: "45%"}, true},
		{"bare processing", LogPayload{Message: "processing..."}, true},
		{"bare step counter", LogPayload{Message: "step 3/8"}, true},
		{"too short", LogPayload{Message: "ok then"}, true},
		{"informative message", LogPayload{Message: "analyzing 14 candidate sources"}, false},
		{"short but success marker", LogPayload{Message: "✓ done"}, false},
		{"short but file marker", LogPayload{Message: "file out"}, false},
		{"error level always surfaces", LogPayload{Message: "x", Level: "error"}, false},
		{"failure marker", LogPayload{Message: "failed"}, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := tc.payload
			assert.Equal(t, tc.suppress, SuppressLog(&p, 10))
		})
	}
}
