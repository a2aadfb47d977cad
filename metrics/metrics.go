// Package metrics holds the process-wide atomic counters for tool
// invocations and task outcomes, exposed both as the MCP-native
// metrics/get snapshot and as a Prometheus collector.
package metrics

import (
	"sync/atomic"
)

// ToolSnapshot is a point-in-time read of the tool invocation counters.
// It is not internally consistent across fields — each is read with its
// own atomic load.
type ToolSnapshot struct {
	Invocations     int64
	Errors          int64
	TotalDurationMs int64
	MaxDurationMs   int64
	TotalBytes      int64
}

// ToolCollector accumulates tool-invocation outcomes with lock-free atomic
// counters. The zero value is ready to use.
type ToolCollector struct {
	invocations     atomic.Int64
	errors          atomic.Int64
	totalDurationMs atomic.Int64
	maxDurationMs   atomic.Int64
	totalBytes      atomic.Int64
}

// Record updates the counters for one completed invocation.
func (c *ToolCollector) Record(durationMs int64, bytes int64, isError bool) {
	c.invocations.Add(1)
	if isError {
		c.errors.Add(1)
	}
	c.totalDurationMs.Add(durationMs)
	c.totalBytes.Add(bytes)

	for {
		cur := c.maxDurationMs.Load()
		if durationMs <= cur {
			return
		}
		if c.maxDurationMs.CompareAndSwap(cur, durationMs) {
			return
		}
	}
}

// Snapshot reads every counter. Fields are read independently and need not
// be mutually consistent under concurrent updates.
func (c *ToolCollector) Snapshot() ToolSnapshot {
	return ToolSnapshot{
		Invocations:     c.invocations.Load(),
		Errors:          c.errors.Load(),
		TotalDurationMs: c.totalDurationMs.Load(),
		MaxDurationMs:   c.maxDurationMs.Load(),
		TotalBytes:      c.totalBytes.Load(),
	}
}

// TaskSnapshot is a point-in-time read of the scheduler's task counters.
type TaskSnapshot struct {
	Started             int64
	Active              int64
	Completed           int64
	Failed              int64
	Cancelled           int64
	Retried             int64
	AvgExecutionMs      float64
	MaxExecutionMs      int64
	PeakMemoryBytes     int64
	PeakCPUTimeMs       int64
	PeakConcurrentTasks int64
}

// TaskCollector accumulates scheduler task outcomes, including the peak
// resource usage an executor reports for a run. The zero value is ready to
// use.
type TaskCollector struct {
	started             atomic.Int64
	active              atomic.Int64
	completed           atomic.Int64
	failed              atomic.Int64
	cancelled           atomic.Int64
	retried             atomic.Int64
	totalExecutionMs    atomic.Int64
	completedExecMs     atomic.Int64
	maxExecutionMs      atomic.Int64
	peakMemoryBytes     atomic.Int64
	peakCPUTimeMs       atomic.Int64
	peakConcurrentTasks atomic.Int64
}

// RecordStarted marks a task as dispatched: it counts toward Started and
// Active, and may push PeakConcurrentTasks to a new high.
func (c *TaskCollector) RecordStarted() {
	c.started.Add(1)
	active := c.active.Add(1)
	for {
		cur := c.peakConcurrentTasks.Load()
		if active <= cur {
			return
		}
		if c.peakConcurrentTasks.CompareAndSwap(cur, active) {
			return
		}
	}
}

// RecordCompleted moves a task out of Active into Completed, folding
// durationMs into the running total and max execution time.
func (c *TaskCollector) RecordCompleted(durationMs int64) {
	c.active.Add(-1)
	c.completed.Add(1)
	c.completedExecMs.Add(durationMs)
	c.recordExecutionTime(durationMs)
}

// RecordFailed moves a task out of Active into Failed (a retry that will be
// rescheduled is recorded with RecordRetried instead).
func (c *TaskCollector) RecordFailed(durationMs int64) {
	c.active.Add(-1)
	c.failed.Add(1)
	c.recordExecutionTime(durationMs)
}

// RecordCancelled moves a task out of Active into Cancelled.
func (c *TaskCollector) RecordCancelled(durationMs int64) {
	c.active.Add(-1)
	c.cancelled.Add(1)
	c.recordExecutionTime(durationMs)
}

// RecordRetried moves a task out of Active and counts it toward Retried; it
// will re-enter Active the next time RecordStarted runs for it.
func (c *TaskCollector) RecordRetried(durationMs int64) {
	c.active.Add(-1)
	c.retried.Add(1)
	c.recordExecutionTime(durationMs)
}

func (c *TaskCollector) recordExecutionTime(durationMs int64) {
	c.totalExecutionMs.Add(durationMs)
	for {
		cur := c.maxExecutionMs.Load()
		if durationMs <= cur {
			return
		}
		if c.maxExecutionMs.CompareAndSwap(cur, durationMs) {
			return
		}
	}
}

// UpdateResourceUsage folds an executor-reported memory/CPU sample into the
// running peaks. Callers that cannot measure one or both pass 0, which never
// raises a peak.
func (c *TaskCollector) UpdateResourceUsage(memoryBytes, cpuTimeMs int64) {
	for {
		cur := c.peakMemoryBytes.Load()
		if memoryBytes <= cur {
			break
		}
		if c.peakMemoryBytes.CompareAndSwap(cur, memoryBytes) {
			break
		}
	}
	for {
		cur := c.peakCPUTimeMs.Load()
		if cpuTimeMs <= cur {
			break
		}
		if c.peakCPUTimeMs.CompareAndSwap(cur, cpuTimeMs) {
			break
		}
	}
}

func (c *TaskCollector) Snapshot() TaskSnapshot {
	completed := c.completed.Load()
	total := c.completedExecMs.Load()
	var avg float64
	if completed > 0 {
		avg = float64(total) / float64(completed)
	}
	return TaskSnapshot{
		Started:             c.started.Load(),
		Active:              c.active.Load(),
		Completed:           completed,
		Failed:              c.failed.Load(),
		Cancelled:           c.cancelled.Load(),
		Retried:             c.retried.Load(),
		AvgExecutionMs:      avg,
		MaxExecutionMs:      c.maxExecutionMs.Load(),
		PeakMemoryBytes:     c.peakMemoryBytes.Load(),
		PeakCPUTimeMs:       c.peakCPUTimeMs.Load(),
		PeakConcurrentTasks: c.peakConcurrentTasks.Load(),
	}
}

// Registry is the process-wide singleton pair of collectors backing both
// metrics/get and the Prometheus exposition endpoint.
type Registry struct {
	Tool ToolCollector
	Task TaskCollector
}

// Default is the process-wide metrics singleton.
var Default = &Registry{}
