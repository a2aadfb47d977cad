package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/modnet-labs/registry-scheduler/metrics"
	"github.com/modnet-labs/registry-scheduler/telemetry"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
	"github.com/modnet-labs/registry-scheduler/toolregistry"
)

// Invoker is the subset of toolregistry.Registry the scheduler needs to run
// a task's underlying tool invocation.
type Invoker interface {
	InvokeTool(ctx context.Context, inv toolregistry.Invocation) (toolregistry.InvocationResult, error)
}

// InterceptHook is invoked after each run that ends Completed, when the
// task's ShouldIntercept signal is true at that point; failed runs never
// invoke it. The scheduler never acts on the signal itself — a hook
// observes it and decides what, if anything, to do.
type InterceptHook func(*Task)

// Scheduler runs a pool of Tasks to completion, retrying retryable failures
// with exponential backoff up to each task's MaxRetries. On each fire of a
// task's cron schedule, a task that has ended Failed is re-armed; Completed
// is terminal, so a completed task is not run again.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*Task
	wg    sync.WaitGroup

	invoker Invoker
	cron    *cron.Cron
	entries map[string]cron.EntryID

	tick          time.Duration
	InterceptHook InterceptHook

	logger  telemetry.Logger
	metrics telemetry.Metrics

	// Metrics accumulates task lifecycle counters (active/completed/failed/
	// peak resource usage) for metrics/get and the Prometheus collector. It
	// defaults to the process-wide singleton.
	Metrics *metrics.Registry

	stop chan struct{}
	done chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l telemetry.Logger) Option   { return func(s *Scheduler) { s.logger = l } }
func WithMetrics(m telemetry.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }
func WithTick(d time.Duration) Option        { return func(s *Scheduler) { s.tick = d } }
func WithInterceptHook(h InterceptHook) Option {
	return func(s *Scheduler) { s.InterceptHook = h }
}

// defaultTick is how often the run loop scans for runnable tasks.
const defaultTick = 100 * time.Millisecond

// New constructs a Scheduler backed by invoker.
func New(invoker Invoker, opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:   make(map[string]*Task),
		invoker: invoker,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		tick:    defaultTick,
		logger:  telemetry.NewNoopLogger(),
		metrics: telemetry.NewNoopMetrics(),
		Metrics: metrics.Default,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit adds t in Pending status and, if t carries a cron expression,
// arms a cron entry that calls rearm on each fire.
func (s *Scheduler) Submit(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.Status = Pending
	t.EventLog = append(t.EventLog, EventLogEntry{Timestamp: time.Now(), Status: Pending, Message: "submitted"})
	s.tasks[t.ID] = t

	if t.Schedule.Cron != "" {
		id, err := s.cron.AddFunc(t.Schedule.Cron, func() { s.rearm(t.ID) })
		if err != nil {
			return toolerrs.New(toolerrs.Configuration, "scheduler.Submit", err)
		}
		s.entries[t.ID] = id
	}
	return nil
}

// rearm transitions a failed cron task back to Scheduled, with its retry
// count reset, so the run loop picks it up on the next tick. Completed is
// terminal, so the transition is refused and a completed task stays as it
// is.
func (s *Scheduler) rearm(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return
	}
	if t.Status == Completed || t.Status == Failed {
		t.Retries = 0
		_ = t.Transition(Scheduled, "cron re-arm")
	}
}

// Get returns the current state of a task by id.
func (s *Scheduler) Get(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// List returns every task currently held by the scheduler, in no
// particular order.
func (s *Scheduler) List() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// Delete removes a task's state entirely, unarming any cron entry it held.
// Deleting an unknown id is a NotFound error.
func (s *Scheduler) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return toolerrs.Newf(toolerrs.NotFound, "scheduler.Delete", "unknown task %q", id)
	}
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	delete(s.tasks, id)
	return nil
}

// Cancel transitions a task to Cancelled if it is not already terminal.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return toolerrs.Newf(toolerrs.NotFound, "scheduler.Cancel", "unknown task %q", id)
	}
	wasRunning := t.Status == Running
	if err := t.Transition(Cancelled, "cancelled"); err != nil {
		return err
	}
	if wasRunning {
		s.Metrics.Task.RecordCancelled(0)
	}
	return nil
}

// Run drives the scheduler loop until ctx is cancelled or Stop is called.
// Each tick it scans for runnable tasks and runs each on its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	defer s.cron.Stop()
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.runReady(ctx)
		}
	}
}

// Stop halts Run and blocks until the loop has exited and every in-flight
// runOne goroutine it dispatched has returned.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	s.wg.Wait()
}

// runReady snapshots runnable tasks and dispatches each on its own
// goroutine so one slow or blocked invocation never delays the rest of the
// tick's runnable tasks.
func (s *Scheduler) runReady(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	ready := make([]*Task, 0)
	for _, t := range s.tasks {
		if t.Runnable(now) {
			ready = append(ready, t)
		}
	}
	s.mu.Unlock()

	for _, t := range ready {
		s.wg.Add(1)
		go func(t *Task) {
			defer s.wg.Done()
			s.runOne(ctx, t)
		}(t)
	}
}

// runOne executes a single task to completion: Running -> {Completed,Failed}.
// On failure it schedules a retry with exponential backoff if the error is
// retryable (toolerrs.Retryable) and retries remain, otherwise the task
// ends Failed. Concurrent invocations of runOne
// for distinct tasks run independently; only the bookkeeping around each
// task's own state transitions is serialized.
func (s *Scheduler) runOne(ctx context.Context, t *Task) {
	s.mu.Lock()
	if err := t.Transition(Running, "dispatched"); err != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.Metrics.Task.RecordStarted()
	start := time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if t.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	invRes, invErr := s.invoker.InvokeTool(runCtx, toolregistry.Invocation{ToolID: t.ToolID, Parameters: t.Arguments})
	if invErr == nil {
		invErr = invRes.Err
	}
	durationMs := time.Since(start).Milliseconds()
	s.Metrics.Task.UpdateResourceUsage(invRes.MemoryBytes, invRes.CPUTimeMs)

	s.mu.Lock()
	defer s.mu.Unlock()

	t.ResourceUsage = &ResourceLimits{MemoryBytes: invRes.MemoryBytes, CPUTimeMs: invRes.CPUTimeMs}

	if invErr != nil {
		t.Error = invErr.Error()
		if t.Transition(Failed, invErr.Error()) != nil {
			return
		}
		s.metrics.IncCounter("scheduler_task_failed_total", 1, "tool_id", t.ToolID)

		if t.Retries < t.MaxRetries && toolerrs.Retryable(invErr) {
			t.Retries++
			delay := Backoff(t.Retries)
			runAt := time.Now().Add(delay)
			t.Schedule.RunAt = &runAt
			if t.Transition(Scheduled, "retry backoff") == nil {
				s.Metrics.Task.RecordRetried(durationMs)
			}
			return
		}
		s.Metrics.Task.RecordFailed(durationMs)
		return
	}

	t.Result = invRes.Result
	if t.Transition(Completed, "run completed") != nil {
		return
	}
	s.metrics.IncCounter("scheduler_task_completed_total", 1, "tool_id", t.ToolID)
	s.Metrics.Task.RecordCompleted(durationMs)

	if s.InterceptHook != nil && t.ShouldIntercept() {
		s.InterceptHook(t)
	}
}
