package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modnet-labs/registry-scheduler/scheduler"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
	"github.com/modnet-labs/registry-scheduler/toolregistry"
)

// failingInvoker always fails, recording how many times it was called.
type failingInvoker struct {
	calls int
}

func (f *failingInvoker) InvokeTool(ctx context.Context, inv toolregistry.Invocation) (toolregistry.InvocationResult, error) {
	f.calls++
	return toolregistry.InvocationResult{}, toolerrs.New(toolerrs.Resource, "test", assertErr{})
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated failure" }

// succeedingInvoker always succeeds with a fixed payload.
type succeedingInvoker struct{}

func (succeedingInvoker) InvokeTool(ctx context.Context, inv toolregistry.Invocation) (toolregistry.InvocationResult, error) {
	return toolregistry.InvocationResult{Result: []byte(`{"ok":true}`)}, nil
}

func waitForStatus(t *testing.T, s *scheduler.Scheduler, id string, want scheduler.Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, ok := s.Get(id)
		require.True(t, ok)
		if task.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := s.Get(id)
	t.Fatalf("task %s did not reach status %s, stuck at %s", id, want, task.Status)
}

func TestTaskExhaustsRetriesThenFails(t *testing.T) {
	inv := &failingInvoker{}
	s := scheduler.New(inv, scheduler.WithTick(5*time.Millisecond))

	task := &scheduler.Task{ID: "t1", ToolID: "echo", MaxRetries: 2}
	require.NoError(t, s.Submit(task))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	// Backoff after retry 1 is 2s and after retry 2 is 4s; wait past both.
	waitForStatus(t, s, "t1", scheduler.Failed, 8*time.Second)

	final, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, scheduler.Failed, final.Status)
	assert.Equal(t, 2, final.Retries)
	assert.Equal(t, 3, inv.calls)

	var statuses []scheduler.Status
	for _, e := range final.EventLog {
		statuses = append(statuses, e.Status)
	}
	assert.Equal(t, []scheduler.Status{
		scheduler.Pending,
		scheduler.Running, scheduler.Failed, scheduler.Scheduled,
		scheduler.Running, scheduler.Failed, scheduler.Scheduled,
		scheduler.Running, scheduler.Failed,
	}, statuses)
}

func TestTaskSucceedsOnFirstRun(t *testing.T) {
	s := scheduler.New(succeedingInvoker{}, scheduler.WithTick(5*time.Millisecond))

	task := &scheduler.Task{ID: "t2", ToolID: "echo", MaxRetries: 3}
	require.NoError(t, s.Submit(task))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	waitForStatus(t, s, "t2", scheduler.Completed, time.Second)

	final, ok := s.Get("t2")
	require.True(t, ok)
	assert.Equal(t, `{"ok":true}`, string(final.Result))
	assert.Equal(t, 0, final.Retries)
}

func TestCancelPreventsFurtherRuns(t *testing.T) {
	s := scheduler.New(succeedingInvoker{}, scheduler.WithTick(5*time.Millisecond))
	task := &scheduler.Task{ID: "t3", ToolID: "echo", MaxRetries: 1}
	require.NoError(t, s.Submit(task))
	require.NoError(t, s.Cancel("t3"))

	final, ok := s.Get("t3")
	require.True(t, ok)
	assert.Equal(t, scheduler.Cancelled, final.Status)
}

func TestInvalidTransitionRejected(t *testing.T) {
	task := &scheduler.Task{ID: "t4", Status: scheduler.Completed}
	err := task.Transition(scheduler.Running, "should not work")
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.Validation))
}

func TestShouldInterceptOnRepeatedSimilarResponses(t *testing.T) {
	task := &scheduler.Task{ID: "t5", SimilarityThreshold: 0.9, FrustrationThreshold: 100}
	task.RecordResponse("a", 0.95, 0)
	task.RecordResponse("a", 0.95, 0)
	assert.True(t, task.ShouldIntercept())
}

func TestShouldInterceptOnFrustrationThreshold(t *testing.T) {
	task := &scheduler.Task{ID: "t6", FrustrationThreshold: 1.0, SimilarityThreshold: 2.0}
	task.RecordResponse("x", 0, 1.5)
	assert.True(t, task.ShouldIntercept())
}

func TestRunnableRespectsFutureRunAt(t *testing.T) {
	future := time.Now().Add(time.Hour)
	task := &scheduler.Task{ID: "t7", Status: scheduler.Scheduled, Schedule: scheduler.Schedule{RunAt: &future}}
	assert.False(t, task.Runnable(time.Now()))
}

// blockingInvoker signals startedCh as soon as it is called, then blocks
// until release is closed. Used to prove the scheduler dispatches runnable
// tasks concurrently rather than one at a time.
type blockingInvoker struct {
	startedCh chan string
	release   chan struct{}
}

func (b *blockingInvoker) InvokeTool(ctx context.Context, inv toolregistry.Invocation) (toolregistry.InvocationResult, error) {
	b.startedCh <- inv.ToolID
	<-b.release
	return toolregistry.InvocationResult{Result: []byte(`{"ok":true}`)}, nil
}

func TestRunnableTasksDispatchConcurrently(t *testing.T) {
	inv := &blockingInvoker{startedCh: make(chan string, 3), release: make(chan struct{})}
	s := scheduler.New(inv, scheduler.WithTick(5*time.Millisecond))

	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, s.Submit(&scheduler.Task{ID: id, ToolID: id}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case id := <-inv.startedCh:
			seen[id] = true
		case <-deadline:
			t.Fatalf("only %d of 3 tasks started concurrently within deadline: %v", len(seen), seen)
		}
	}
	close(inv.release)

	for _, id := range []string{"c1", "c2", "c3"} {
		waitForStatus(t, s, id, scheduler.Completed, time.Second)
	}
}

func TestCancelRunningTaskLeavesItCancelledOnCompletion(t *testing.T) {
	release := make(chan struct{})
	inv := &blockingInvoker{startedCh: make(chan string, 1), release: release}
	s := scheduler.New(inv, scheduler.WithTick(5*time.Millisecond))

	task := &scheduler.Task{ID: "c4", ToolID: "echo"}
	require.NoError(t, s.Submit(task))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	<-inv.startedCh
	require.NoError(t, s.Cancel("c4"))
	close(release)

	// The in-flight invoke still returns successfully, but runOne's
	// Transition(Completed, ...) must fail against the terminal Cancelled
	// state, so the task never flips back to Completed.
	time.Sleep(50 * time.Millisecond)
	final, ok := s.Get("c4")
	require.True(t, ok)
	assert.Equal(t, scheduler.Cancelled, final.Status)
}

func TestListReturnsAllSubmittedTasks(t *testing.T) {
	s := scheduler.New(succeedingInvoker{})
	require.NoError(t, s.Submit(&scheduler.Task{ID: "l1"}))
	require.NoError(t, s.Submit(&scheduler.Task{ID: "l2"}))

	ids := map[string]bool{}
	for _, task := range s.List() {
		ids[task.ID] = true
	}
	assert.Equal(t, map[string]bool{"l1": true, "l2": true}, ids)
}

func TestDeleteRemovesTaskAndRejectsUnknownID(t *testing.T) {
	s := scheduler.New(succeedingInvoker{})
	require.NoError(t, s.Submit(&scheduler.Task{ID: "d1"}))

	require.NoError(t, s.Delete("d1"))
	_, ok := s.Get("d1")
	assert.False(t, ok)

	err := s.Delete("d1")
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.NotFound))
}

func TestCompletedTaskRecordsResourceUsage(t *testing.T) {
	s := scheduler.New(succeedingInvoker{}, scheduler.WithTick(5*time.Millisecond))
	task := &scheduler.Task{ID: "t8", ToolID: "echo"}
	require.NoError(t, s.Submit(task))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	waitForStatus(t, s, "t8", scheduler.Completed, time.Second)

	final, ok := s.Get("t8")
	require.True(t, ok)
	require.NotNil(t, final.ResourceUsage)
}

func TestBackoffDoubles(t *testing.T) {
	assert.Equal(t, 2*time.Second, scheduler.Backoff(1))
	assert.Equal(t, 4*time.Second, scheduler.Backoff(2))
	assert.Equal(t, 8*time.Second, scheduler.Backoff(3))
}
