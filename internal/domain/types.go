package domain

import (
	"fmt"
	"time"
)

// Priority tiers for task dispatch. Within a tier tasks run FIFO by
// submission time.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority maps a tier name to a Priority. Empty input means
// "use the profile's own tier" and parses to an invalid sentinel.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "low":
		return PriorityLow, true
	case "normal":
		return PriorityNormal, true
	case "high":
		return PriorityHigh, true
	case "critical":
		return PriorityCritical, true
	case "":
		return Priority(-1), true
	default:
		return Priority(-1), false
	}
}

// JobProfile is the immutable configuration snapshot for one dump job.
// It references profile components by ID; the profile store resolves them.
// Once a task is created from it the engine treats it as read-only.
type JobProfile struct {
	ID              string
	Name            string
	SerialProfileID string
	BridgeProfileID string
	PowerProfileID  string
	MemoryRegionID  string
	PowerOnDelay    time.Duration
	PowerOffDelay   time.Duration
	OutputDir       string
	NamePattern     string
	Priority        Priority
	Template        bool
}

// Resolved profile components, looked up at submission time.
type SerialProfile struct {
	ID       string
	Device   string
	BaudRate int
}

type BridgeProfile struct {
	ID   string
	Port int
}

type PowerProfile struct {
	ID     string
	Output int
}

type MemoryRegion struct {
	ID     string
	Name   string
	Start  uint32
	Length uint32
}

// ResolvedJob is a JobProfile with all references resolved. It carries
// everything the orchestrator needs without touching the profile store
// again, so edits to stored profiles cannot affect in-flight tasks.
type ResolvedJob struct {
	Profile JobProfile
	Serial  SerialProfile
	Bridge  BridgeProfile
	Power   PowerProfile
	Region  MemoryRegion
}

// ResourceKeys returns the exclusive physical resources this job needs.
func (r ResolvedJob) ResourceKeys() []string {
	return []string{
		"serial:" + r.Serial.Device,
		fmt.Sprintf("tcp:%d", r.Bridge.Port),
		fmt.Sprintf("power:%d", r.Power.Output),
	}
}

// StageAttempt is one entry in a task's attempt log.
type StageAttempt struct {
	Stage      string    `json:"stage"`
	Attempt    int       `json:"attempt"`
	Outcome    string    `json:"outcome"` // ok | transient | fatal | canceled
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

const (
	OutcomeOK        = "ok"
	OutcomeTransient = "transient"
	OutcomeFatal     = "fatal"
	OutcomeCanceled  = "canceled"
)

// TaskResult is the payload of a successfully completed dump.
type TaskResult struct {
	OutputPath string  `json:"output_path"`
	ByteCount  int64   `json:"byte_count"`
	Throughput float64 `json:"throughput_bps"`
}

// TaskSnapshot is an immutable copy of a task's runtime record, as
// handed out to status queries and the history store.
type TaskSnapshot struct {
	ID        string         `json:"id"`
	ProfileID string         `json:"profile_id"`
	State     TaskState      `json:"state"`
	Priority  Priority       `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	EndedAt   time.Time      `json:"ended_at,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Percent   float64        `json:"percent"`
	Attempts  []StageAttempt `json:"attempts,omitempty"`
	Result    *TaskResult    `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	BlockedBy []string       `json:"blocked_by,omitempty"`
}

func (s TaskSnapshot) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Event is published to the progress sink after every state or stage
// transition. Delivery is best-effort; the engine never blocks on it.
type Event struct {
	TaskID  string    `json:"task_id"`
	State   TaskState `json:"state"`
	Stage   string    `json:"stage,omitempty"`
	Percent float64   `json:"percent"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// ResourceLock ties held resource keys to the task holding them.
type ResourceLock struct {
	TaskID     string    `json:"task_id"`
	Keys       []string  `json:"keys"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Stats summarizes scheduler activity.
type Stats struct {
	CountByState map[TaskState]int `json:"count_by_state"`
	AvgDuration  time.Duration     `json:"avg_duration"`
	Throughput   float64           `json:"throughput_per_min"`
}
