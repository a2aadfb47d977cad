// Package scheduler implements the queue-oriented task executor: a state
// machine over scheduled tool invocations with exponential-backoff retry
// and an event log.
package scheduler

import (
	"encoding/json"
	"time"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// Status is a task's position in the state machine.
type Status string

const (
	Pending   Status = "pending"
	Scheduled Status = "scheduled"
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
)

// allowedTransitions maps each status to the set of statuses it may move to.
var allowedTransitions = map[Status]map[Status]bool{
	Pending:   {Running: true, Scheduled: true, Cancelled: true},
	Scheduled: {Running: true, Cancelled: true},
	Running:   {Completed: true, Failed: true, Cancelled: true, Scheduled: true},
	Failed:    {Scheduled: true},
	Completed: {},
	Cancelled: {},
}

// CanTransition reports whether moving from 'from' to 'to' is permitted.
func CanTransition(from, to Status) bool {
	targets, ok := allowedTransitions[from]
	return ok && targets[to]
}

// EventLogEntry records one status change.
type EventLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// Schedule expresses when a task becomes runnable.
type Schedule struct {
	RunAt *time.Time    `json:"run_at,omitempty"`
	Cron  string        `json:"cron,omitempty"`
	Delay time.Duration `json:"delay,omitempty"`
}

// ResourceLimits caps (or, when attached to a Task as ResourceUsage,
// reports) memory, CPU time, and concurrency for a task.
type ResourceLimits struct {
	MemoryBytes   int64 `json:"memory_bytes"`
	CPUTimeMs     int64 `json:"cpu_time_ms"`
	MaxConcurrent int   `json:"max_concurrent"`
}

// DefaultResourceLimits returns the default caps: 1GB memory, one minute
// of CPU time, ten concurrent tasks.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MemoryBytes:   1024 * 1024 * 1024,
		CPUTimeMs:     60000,
		MaxConcurrent: 10,
	}
}

// responseCacheCap bounds the frustration/similarity FIFO per spec §4.10.
const responseCacheCap = 5

// responseCacheEntry is one recent response string with its similarity
// score against the task's current response.
type responseCacheEntry struct {
	Response   string
	Similarity float64
}

// Task is a scheduled tool invocation.
type Task struct {
	ID            string
	ToolID        string
	Arguments     json.RawMessage
	Status        Status
	Retries       int
	MaxRetries    int
	Timeout       time.Duration
	Schedule      Schedule
	EventLog      []EventLogEntry
	ResponseCache []responseCacheEntry
	Result        json.RawMessage
	Error         string

	// ResourceLimits records caps for this task's resource usage. It is
	// carried as data only: the scheduler never reads it or enforces it.
	ResourceLimits *ResourceLimits
	// ResourceUsage reports the most recent invocation's observed usage,
	// populated from the executor's Result after each run.
	ResourceUsage *ResourceLimits

	FrustrationThreshold float64
	SimilarityThreshold  float64
	frustration          float64
}

// Transition moves t to 'to', appending an event log entry, or returns a
// Validation error and leaves t unchanged if the transition is not allowed.
func (t *Task) Transition(to Status, message string) error {
	if !CanTransition(t.Status, to) {
		return toolerrs.Newf(toolerrs.Validation, "scheduler.Transition", "task %s: invalid transition %s -> %s", t.ID, t.Status, to)
	}
	t.Status = to
	t.EventLog = append(t.EventLog, EventLogEntry{Timestamp: time.Now(), Status: to, Message: message})
	return nil
}

// Runnable reports whether t is eligible to be picked up by the scheduler
// loop: status in {Pending, Scheduled} and either no run_at is set or
// run_at has already passed.
func (t *Task) Runnable(now time.Time) bool {
	if t.Status != Pending && t.Status != Scheduled {
		return false
	}
	if t.Schedule.RunAt == nil {
		return true
	}
	return !t.Schedule.RunAt.After(now)
}

// RecordResponse appends response to the bounded FIFO response cache with a
// caller-supplied similarity score, evicting the oldest entry past
// responseCacheCap, and accumulates frustration.
func (t *Task) RecordResponse(response string, similarity float64, frustrationDelta float64) {
	t.ResponseCache = append(t.ResponseCache, responseCacheEntry{Response: response, Similarity: similarity})
	if len(t.ResponseCache) > responseCacheCap {
		t.ResponseCache = t.ResponseCache[len(t.ResponseCache)-responseCacheCap:]
	}
	t.frustration += frustrationDelta
}

// ShouldIntercept reports whether the loop-detection signal fires: either
// accumulated frustration meets the threshold, or at least two cached
// responses exceed the similarity threshold. This is exposed for an
// external policy to consume — the scheduler never acts on it itself.
func (t *Task) ShouldIntercept() bool {
	if t.frustration >= t.FrustrationThreshold && t.FrustrationThreshold > 0 {
		return true
	}
	similar := 0
	for _, e := range t.ResponseCache {
		if e.Similarity > t.SimilarityThreshold {
			similar++
		}
	}
	return similar >= 2
}

// backoffBase is the exponential-backoff base per spec §4.10: 2^retries
// seconds, starting at 2s after the first failure.
const backoffBase = 2 * time.Second

// Backoff computes the retry delay for the given retry count.
func Backoff(retries int) time.Duration {
	d := backoffBase
	for i := 1; i < retries; i++ {
		d *= 2
	}
	return d
}
