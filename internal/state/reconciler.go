package state

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pverill/agentfeed/internal/stream"
)

// Options configures a Reconciler.
type Options struct {
	// ExpectedTotalSteps is the assumed step count until a frame
	// declares one.
	ExpectedTotalSteps int
	// MinStepsForDone gates the terminal success signal: a "complete"
	// stage only finalizes the job when at least this many steps have
	// completed. Reduced-scope runs legitimately finish below the
	// declared total.
	MinStepsForDone int
	// MinLogLength is the suppression threshold for log frames.
	MinLogLength int
}

// DefaultOptions returns the thesis-style defaults: 8 steps expected,
// finalize from 3 completed, hide log lines under 10 characters.
func DefaultOptions() Options {
	return Options{
		ExpectedTotalSteps: 8,
		MinStepsForDone:    3,
		MinLogLength:       10,
	}
}

// Reconciler folds classified stream events into the action log, task
// list, and step list for one job. It is not safe for concurrent use;
// callers serialize Apply against Snapshot (the monitor does this with
// a single mutex).
type Reconciler struct {
	opts Options

	actions []*Action
	// merge maps an open action's merge key to its index in actions,
	// so chunk and lifecycle updates are O(1) instead of a log scan.
	merge map[string]int

	tasks     []*Task
	taskIndex map[string]int

	steps         map[int]*Step
	expectedTotal int

	agg          *Aggregator
	jobErr       string
	completed    bool
	createdFiles []string

	now   func() time.Time
	newID func() string
}

// NewReconciler creates a Reconciler with the given options.
func NewReconciler(opts Options) *Reconciler {
	if opts.ExpectedTotalSteps < 1 {
		opts.ExpectedTotalSteps = 1
	}
	r := &Reconciler{
		opts:  opts,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	r.reset()
	return r
}

func (r *Reconciler) reset() {
	r.actions = nil
	r.merge = make(map[string]int)
	r.tasks = nil
	r.taskIndex = make(map[string]int)
	r.steps = make(map[int]*Step)
	r.expectedTotal = r.opts.ExpectedTotalSteps
	r.agg = NewAggregator()
	r.jobErr = ""
	r.completed = false
	r.createdFiles = nil
}

// Clear empties all collections and resets progress state. Used when
// the consumer switches to a new job.
func (r *Reconciler) Clear() {
	r.reset()
}

// Apply folds one event into the state. Events are applied strictly in
// delivery order; duplicates of completion events are no-ops.
func (r *Reconciler) Apply(ev stream.Event) {
	switch ev.Name {
	case stream.NameConnected, stream.NameKeepalive:
		// Connection health lives in the client, not here.

	case stream.NameLog:
		r.applyLog(ev.Log)

	case stream.NameReasoningChunk:
		r.applyChunk(ActionThinking, "Thinking", ev.Chunk)

	case stream.NameResponseChunk:
		r.applyChunk(ActionStreamText, "Response", ev.Chunk)

	case stream.NameAgentActivity:
		r.applyActivity(ev.Activity)

	case stream.NameToolStarted:
		r.applyToolStart(ev.ToolStart)

	case stream.NameToolCompleted:
		r.applyToolDone(ev.ToolDone)

	case stream.NameStageStarted:
		r.applyStageStart(ev.Stage)

	case stream.NameStageCompleted:
		r.applyStageDone(ev.Stage)

	case stream.NameStepStarted:
		r.applyStepStart(ev.StepStart)

	case stream.NameStepCompleted:
		r.applyStepDone(ev.StepDone)

	case stream.NameProgress:
		if ev.Progress != nil {
			r.agg.SetOverride(ev.Progress.Percentage)
		}

	case stream.NameFileCreated:
		r.applyFileCreated(ev.File)

	case stream.NameError:
		r.applyError(ev.Err)
	}
}

// Snapshot returns a deep copy of the current state. The task tree is
// rebuilt from the flat list on every call.
func (r *Reconciler) Snapshot() Snapshot {
	actions := make([]Action, len(r.actions))
	for i, a := range r.actions {
		actions[i] = *a
		if a.Metadata != nil {
			md := make(map[string]any, len(a.Metadata))
			for k, v := range a.Metadata {
				md[k] = v
			}
			actions[i].Metadata = md
		}
	}

	tasks := make([]Task, len(r.tasks))
	for i, t := range r.tasks {
		tasks[i] = *t
	}

	steps := make([]Step, 0, len(r.steps))
	for _, s := range r.steps {
		steps = append(steps, *s)
	}
	sortSteps(steps)

	files := make([]string, len(r.createdFiles))
	copy(files, r.createdFiles)

	return Snapshot{
		Actions:      actions,
		Tasks:        tasks,
		TaskTree:     BuildTaskTree(tasks),
		Steps:        steps,
		Progress:     r.agg.Display(r.completedSteps(), len(r.steps), r.expectedTotal, r.completed),
		JobError:     r.jobErr,
		Completed:    r.completed,
		CreatedFiles: files,
	}
}

// append adds a new action to the log and returns it.
func (r *Reconciler) append(kind ActionKind, title string, status Status) *Action {
	a := &Action{
		ID:        r.newID(),
		Kind:      kind,
		Title:     title,
		Status:    status,
		Timestamp: r.now(),
	}
	r.actions = append(r.actions, a)
	return a
}

// open registers the most recently appended action under a merge key
// so later events can update it in place.
func (r *Reconciler) open(key string) {
	r.merge[key] = len(r.actions) - 1
}

// lookup returns the open action for a merge key, if any.
func (r *Reconciler) lookup(key string) (*Action, bool) {
	idx, ok := r.merge[key]
	if !ok {
		return nil, false
	}
	return r.actions[idx], true
}

func (r *Reconciler) applyLog(p *stream.LogPayload) {
	if p == nil || stream.SuppressLog(p, r.opts.MinLogLength) {
		return
	}
	status := StatusCompleted
	if strings.EqualFold(p.Level, "error") {
		status = StatusError
		r.jobErr = p.Message
	}
	a := r.append(ActionLog, "Log", status)
	a.Content = p.Message
	if p.Level != "" {
		a.Metadata = map[string]any{"level": p.Level}
	}
}

// applyChunk creates or updates the single running streaming action of
// the given kind. Accumulated replaces the content wholesale; the
// terminal chunk freezes the action.
func (r *Reconciler) applyChunk(kind ActionKind, title string, p *stream.ChunkPayload) {
	if p == nil {
		return
	}
	content := p.Accumulated
	if content == "" {
		content = p.Chunk
	}

	key := "chunk:" + string(kind)
	a, ok := r.lookup(key)
	if !ok {
		a = r.append(kind, title, StatusRunning)
		a.IsStreaming = true
		r.open(key)
	}
	if content != "" {
		a.Content = content
	}
	if p.Completed {
		a.Status = StatusCompleted
		a.IsStreaming = false
		delete(r.merge, key)
	}
}

func (r *Reconciler) applyActivity(p *stream.ActivityPayload) {
	if p == nil || (p.Agent == "" && p.Action == "") {
		return
	}
	title := strings.TrimSpace(p.Agent + " " + p.Action)
	status := lifecycleStatus(p.Status)

	key := "agent:" + p.Agent
	a, ok := r.lookup(key)
	if !ok {
		a = r.append(ActionToolCall, title, status)
		a.Metadata = map[string]any{"agent": p.Agent}
		if status == StatusRunning {
			r.open(key)
		}
		return
	}
	a.Title = title
	a.Status = status
	if status != StatusRunning {
		delete(r.merge, key)
	}
}

func (r *Reconciler) applyToolStart(p *stream.ToolStartPayload) {
	if p == nil || p.Tool == "" {
		return
	}
	key := "tool:" + p.Tool
	if a, ok := r.lookup(key); ok {
		// Duplicate start for an already running tool: refresh only.
		if p.Description != "" {
			a.Content = p.Description
		}
		return
	}
	a := r.append(ActionToolCall, p.Tool, StatusRunning)
	a.Content = p.Description
	a.Metadata = map[string]any{"tool": p.Tool}
	if p.Total > 0 {
		a.Metadata["step"] = p.Step
		a.Metadata["total"] = p.Total
	}
	r.open(key)
}

func (r *Reconciler) applyToolDone(p *stream.ToolDonePayload) {
	if p == nil || p.Tool == "" {
		return
	}
	key := "tool:" + p.Tool
	a, ok := r.lookup(key)
	if !ok {
		// Redelivered completion for an already closed tool call.
		return
	}
	a.Status = lifecycleStatus(p.Status)
	if a.Status == StatusRunning {
		a.Status = StatusCompleted
	}
	delete(r.merge, key)
}

func (r *Reconciler) applyStageStart(p *stream.StagePayload) {
	if p == nil || p.Stage == "" {
		return
	}
	key := "stage:" + p.Stage
	a, ok := r.lookup(key)
	if !ok {
		a = r.append(ActionThinking, p.Stage, StatusRunning)
		a.Metadata = map[string]any{"stage": p.Stage}
		r.open(key)
	}
	if p.Message != "" {
		a.Content = p.Message
	}
	r.upsertTaskFromStage(p, StatusRunning)
}

func (r *Reconciler) applyStageDone(p *stream.StagePayload) {
	if p == nil || p.Stage == "" {
		return
	}
	status := lifecycleStatus(p.Status)
	if status == StatusRunning {
		status = StatusCompleted
	}

	key := "stage:" + p.Stage
	if a, ok := r.lookup(key); ok {
		a.Status = status
		if p.Message != "" {
			a.Content = p.Message
		}
		delete(r.merge, key)
	} else if !r.stageAlreadyClosed(p.Stage, status) {
		a := r.append(ActionThinking, p.Stage, status)
		a.Content = p.Message
		a.Metadata = map[string]any{"stage": p.Stage}
	}

	r.upsertTaskFromStage(p, status)

	if p.Stage == "complete" && strings.EqualFold(p.Status, "success") {
		r.finalize()
	}
}

// stageAlreadyClosed reports whether the latest action for this stage
// already carries the terminal status, so a redelivered completion is
// not appended twice.
func (r *Reconciler) stageAlreadyClosed(stage string, status Status) bool {
	for i := len(r.actions) - 1; i >= 0; i-- {
		a := r.actions[i]
		if a.Metadata != nil && a.Metadata["stage"] == stage {
			return a.Status == status
		}
	}
	return false
}

func (r *Reconciler) applyStepStart(p *stream.StepStartPayload) {
	if p == nil {
		return
	}
	if p.TotalSteps > 0 {
		r.expectedTotal = p.TotalSteps
	}
	if p.Step < 1 || p.Step > r.expectedTotal {
		return
	}
	s, ok := r.steps[p.Step]
	if !ok {
		s = &Step{ID: strconv.Itoa(p.Step)}
		r.steps[p.Step] = s
	}
	if p.Name != "" {
		s.Name = p.Name
	}
	// A completed step never regresses to running on redelivery.
	if s.Status != StatusCompleted {
		s.Status = StatusRunning
	}
	r.upsertStepTask(p.Step, s.Name, s.Status, 0)
}

func (r *Reconciler) applyStepDone(p *stream.StepDonePayload) {
	if p == nil {
		return
	}
	if p.Step < 1 || p.Step > r.expectedTotal {
		return
	}
	s, ok := r.steps[p.Step]
	if !ok {
		s = &Step{ID: strconv.Itoa(p.Step)}
		r.steps[p.Step] = s
	}
	if p.Name != "" {
		s.Name = p.Name
	}
	if s.Status == StatusCompleted {
		// Redelivery of an already applied completion.
		return
	}
	s.Status = StatusCompleted
	if p.WordCount > 0 {
		s.WordCount = p.WordCount
	}
	if p.File != "" {
		s.Description = p.File
	}
	r.upsertStepTask(p.Step, s.Name, StatusCompleted, 1)

	// Completing the final declared step completes the job.
	if p.Step == r.expectedTotal {
		r.completeAll()
	}
}

// upsertStepTask mirrors a numbered step into the task list so both
// flat and hierarchical consumers see the same lifecycle.
func (r *Reconciler) upsertStepTask(step int, name string, status Status, progress float64) {
	id := strconv.Itoa(step)
	if name == "" {
		name = fmt.Sprintf("Step %d", step)
	}
	if idx, ok := r.taskIndex[id]; ok {
		t := r.tasks[idx]
		t.Name = name
		if t.Status != StatusCompleted {
			t.Status = status
			t.Progress = progress
		}
		return
	}
	r.taskIndex[id] = len(r.tasks)
	r.tasks = append(r.tasks, &Task{
		TaskID:   id,
		Name:     name,
		Mode:     ModeExecution,
		Status:   status,
		Progress: progress,
	})
}

// upsertTaskFromStage folds hierarchical task metadata carried on stage
// frames into the task list. Stages without a task_id do not produce
// tasks.
func (r *Reconciler) upsertTaskFromStage(p *stream.StagePayload, status Status) {
	if p.Metadata == nil {
		return
	}
	id, _ := p.Metadata["task_id"].(string)
	if id == "" {
		return
	}
	parent, _ := p.Metadata["parent_task_id"].(string)
	name, _ := p.Metadata["name"].(string)
	if name == "" {
		name = p.Stage
	}
	mode, _ := p.Metadata["mode"].(string)
	progress, _ := p.Metadata["progress"].(float64)
	if status == StatusCompleted {
		progress = 1
	}

	if idx, ok := r.taskIndex[id]; ok {
		t := r.tasks[idx]
		t.Name = name
		if parent != "" {
			t.ParentTaskID = parent
		}
		if t.Status != StatusCompleted || status == StatusError {
			t.Status = status
			t.Progress = progress
		}
		if p.Message != "" {
			t.Content = p.Message
		}
		return
	}
	r.taskIndex[id] = len(r.tasks)
	r.tasks = append(r.tasks, &Task{
		TaskID:       id,
		ParentTaskID: parent,
		Name:         name,
		Mode:         TaskMode(strings.ToUpper(mode)),
		Status:       status,
		Progress:     progress,
		Content:      p.Message,
	})
}

func (r *Reconciler) applyFileCreated(p *stream.FilePayload) {
	if p == nil || p.Path == "" {
		return
	}
	a := r.append(ActionFileWrite, p.Path, StatusCompleted)
	a.Metadata = map[string]any{"path": p.Path}
	if p.Type != "" {
		a.Metadata["type"] = p.Type
	}
	r.createdFiles = append(r.createdFiles, p.Path)
}

func (r *Reconciler) applyError(p *stream.ErrorPayload) {
	if p == nil {
		return
	}
	a := r.append(ActionLog, "Error", StatusError)
	a.Content = p.Message
	r.jobErr = p.Message
}

// finalize handles the terminal success signal. The job is only marked
// complete when enough steps have finished; a reduced-scope run (for
// example 3 of 8 steps) counts, a bare signal with no completed work
// does not.
func (r *Reconciler) finalize() {
	// Stage-only jobs declare no steps; the signal alone finalizes.
	if len(r.steps) > 0 && r.completedSteps() < r.opts.MinStepsForDone {
		return
	}
	r.completeAll()
}

// completeAll marks every step and task completed and flags the job
// done, which pins the displayed progress at 100.
func (r *Reconciler) completeAll() {
	for _, s := range r.steps {
		if s.Status != StatusCompleted {
			s.Status = StatusCompleted
		}
	}
	for _, t := range r.tasks {
		if t.Status != StatusError {
			t.Status = StatusCompleted
			t.Progress = 1
		}
	}
	r.completed = true
}

func (r *Reconciler) completedSteps() int {
	n := 0
	for _, s := range r.steps {
		if s.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// lifecycleStatus maps the loose status vocabulary used on the wire to
// the closed Status set. Unrecognized values mean "still running".
func lifecycleStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "succeeded", "completed", "complete", "done", "ok":
		return StatusCompleted
	case "error", "failed", "failure":
		return StatusError
	case "pending", "queued":
		return StatusPending
	default:
		return StatusRunning
	}
}
