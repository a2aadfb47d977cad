package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/modnet-labs/registry-scheduler/metrics"
)

func TestToolCollectorAccumulates(t *testing.T) {
	var c metrics.ToolCollector
	c.Record(10, 100, false)
	c.Record(30, 50, true)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Invocations)
	assert.Equal(t, int64(1), snap.Errors)
	assert.Equal(t, int64(40), snap.TotalDurationMs)
	assert.Equal(t, int64(30), snap.MaxDurationMs)
	assert.Equal(t, int64(150), snap.TotalBytes)
}

func TestTaskCollectorAccumulates(t *testing.T) {
	var c metrics.TaskCollector
	c.RecordStarted()
	c.RecordCompleted(50)
	c.RecordStarted()
	c.RecordFailed(75)
	c.RecordStarted()
	c.RecordRetried(75)
	c.RecordRetried(0)

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.Started)
	assert.Equal(t, int64(1), snap.Completed)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(2), snap.Retried)
	assert.Equal(t, float64(50), snap.AvgExecutionMs)
	assert.Equal(t, int64(75), snap.MaxExecutionMs)
}

func TestTaskCollectorTracksPeakConcurrencyAndResourceUsage(t *testing.T) {
	var c metrics.TaskCollector
	c.RecordStarted()
	c.RecordStarted()
	c.RecordStarted()
	c.UpdateResourceUsage(1024, 12)
	c.UpdateResourceUsage(512, 20)
	c.UpdateResourceUsage(2048, 5)

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.Active)
	assert.Equal(t, int64(3), snap.PeakConcurrentTasks)
	assert.Equal(t, int64(2048), snap.PeakMemoryBytes)
	assert.Equal(t, int64(20), snap.PeakCPUTimeMs)
}

func TestCollectorExportsGatherableMetrics(t *testing.T) {
	reg := &metrics.Registry{}
	reg.Tool.Record(5, 10, false)
	col := metrics.NewCollector(reg)

	count := testutil.CollectAndCount(col)
	assert.Equal(t, 16, count)
}
