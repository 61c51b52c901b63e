// Package state reconciles classified stream events into the visible
// record of a job: an ordered action log, a hierarchical task tree, a
// flat step list, and a derived progress percentage. The reconciler is
// the only writer; consumers read immutable snapshots.
package state

import (
	"sort"
	"strconv"
	"time"
)

// Status is the lifecycle status shared by actions, tasks, and steps.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// ActionKind categorizes one entry in the action log.
type ActionKind string

const (
	ActionFileWrite      ActionKind = "file-write"
	ActionFileRead       ActionKind = "file-read"
	ActionDocumentRead   ActionKind = "document-read"
	ActionBrowserAction  ActionKind = "browser-action"
	ActionCodeExecution  ActionKind = "code-execution"
	ActionResearchResult ActionKind = "research-result"
	ActionFileDiff       ActionKind = "file-diff"
	ActionDataAnalysis   ActionKind = "data-analysis"
	ActionChart          ActionKind = "chart"
	ActionLog            ActionKind = "log"
	ActionToolCall       ActionKind = "tool-call"
	ActionStreamText     ActionKind = "stream-text"
	ActionUserMessage    ActionKind = "user-message"
	ActionThinking       ActionKind = "thinking"
)

// Action is one entry in the visible log of what the job has done. The
// ID is stable across in-place updates of a streaming action and fresh
// for every new action.
type Action struct {
	ID          string         `json:"id"`
	Kind        ActionKind     `json:"kind"`
	Title       string         `json:"title"`
	Content     string         `json:"content,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Status      Status         `json:"status"`
	IsStreaming bool           `json:"isStreaming"`
	Timestamp   time.Time      `json:"timestamp"`
}

// TaskMode is the phase a task belongs to.
type TaskMode string

const (
	ModePlanning     TaskMode = "PLANNING"
	ModeExecution    TaskMode = "EXECUTION"
	ModeVerification TaskMode = "VERIFICATION"
)

// Task is a declared unit of work. Tasks form a tree through
// ParentTaskID; children are derived on read, never stored.
type Task struct {
	TaskID       string   `json:"task_id"`
	ParentTaskID string   `json:"parent_task_id,omitempty"`
	Name         string   `json:"name"`
	Mode         TaskMode `json:"mode,omitempty"`
	Status       Status   `json:"status"`
	Progress     float64  `json:"progress"`
	Content      string   `json:"content,omitempty"`
}

// TaskNode is a task with its resolved children.
type TaskNode struct {
	Task
	Children []*TaskNode `json:"children,omitempty"`
}

// BuildTaskTree groups a flat task list into a forest by parent id.
// The build is deterministic: roots and children keep the input order.
// A task whose declared parent is absent from the list is a root.
func BuildTaskTree(tasks []Task) []*TaskNode {
	nodes := make(map[string]*TaskNode, len(tasks))
	order := make([]*TaskNode, 0, len(tasks))
	for _, t := range tasks {
		n := &TaskNode{Task: t}
		nodes[t.TaskID] = n
		order = append(order, n)
	}

	var roots []*TaskNode
	for _, n := range order {
		if n.ParentTaskID != "" {
			if parent, ok := nodes[n.ParentTaskID]; ok && parent != n {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}

// Step is the flat lifecycle unit used by simpler jobs.
type Step struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      Status `json:"status"`
	WordCount   int    `json:"wordCount,omitempty"`
	Description string `json:"description,omitempty"`
}

// sortSteps orders steps by the numeric value of their id when both
// parse, falling back to lexicographic order.
func sortSteps(steps []Step) {
	sort.SliceStable(steps, func(i, j int) bool {
		a, errA := strconv.Atoi(steps[i].ID)
		b, errB := strconv.Atoi(steps[j].ID)
		if errA == nil && errB == nil {
			return a < b
		}
		return steps[i].ID < steps[j].ID
	})
}

// Snapshot is a point-in-time copy of the reconciled job state.
type Snapshot struct {
	Actions      []Action    `json:"actions"`
	Tasks        []Task      `json:"tasks"`
	TaskTree     []*TaskNode `json:"task_tree,omitempty"`
	Steps        []Step      `json:"steps"`
	Progress     int         `json:"progress"`
	JobError     string      `json:"job_error,omitempty"`
	Completed    bool        `json:"completed"`
	CreatedFiles []string    `json:"created_files,omitempty"`
}
