package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	toolInvocationsDesc = prometheus.NewDesc("registry_tool_invocations_total", "Total tool invocations.", nil, nil)
	toolErrorsDesc      = prometheus.NewDesc("registry_tool_errors_total", "Total failed tool invocations.", nil, nil)
	toolDurationDesc    = prometheus.NewDesc("registry_tool_duration_ms_total", "Total tool invocation duration in milliseconds.", nil, nil)
	toolMaxDurationDesc = prometheus.NewDesc("registry_tool_duration_ms_max", "Maximum observed tool invocation duration in milliseconds.", nil, nil)
	toolBytesDesc       = prometheus.NewDesc("registry_tool_bytes_total", "Total bytes produced by tool invocations.", nil, nil)

	taskStartedDesc   = prometheus.NewDesc("registry_task_started_total", "Total tasks dispatched to an executor.", nil, nil)
	taskActiveDesc    = prometheus.NewDesc("registry_task_active", "Tasks currently running.", nil, nil)
	taskCompletedDesc = prometheus.NewDesc("registry_task_completed_total", "Total tasks that completed successfully.", nil, nil)
	taskFailedDesc    = prometheus.NewDesc("registry_task_failed_total", "Total tasks that ended in the failed state.", nil, nil)
	taskCancelledDesc = prometheus.NewDesc("registry_task_cancelled_total", "Total tasks cancelled before completion.", nil, nil)
	taskRetriedDesc   = prometheus.NewDesc("registry_task_retried_total", "Total task retry attempts scheduled.", nil, nil)

	taskAvgExecutionDesc = prometheus.NewDesc("registry_task_execution_ms_avg", "Average completed task execution time in milliseconds.", nil, nil)
	taskMaxExecutionDesc = prometheus.NewDesc("registry_task_execution_ms_max", "Maximum observed task execution time in milliseconds.", nil, nil)
	taskPeakMemoryDesc   = prometheus.NewDesc("registry_task_peak_memory_bytes", "Peak memory usage reported by an executor for a single task run.", nil, nil)
	taskPeakCPUDesc      = prometheus.NewDesc("registry_task_peak_cpu_time_ms", "Peak CPU time reported by an executor for a single task run, in milliseconds.", nil, nil)
	taskPeakConcurrency  = prometheus.NewDesc("registry_task_peak_concurrent", "Maximum number of tasks observed running at once.", nil, nil)
)

// Collector adapts a Registry to prometheus.Collector, exposing the same
// atomic counters that back metrics/get.
type Collector struct {
	reg *Registry
}

// NewCollector wraps reg for Prometheus scraping.
func NewCollector(reg *Registry) *Collector {
	return &Collector{reg: reg}
}

var _ prometheus.Collector = (*Collector)(nil)

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- toolInvocationsDesc
	ch <- toolErrorsDesc
	ch <- toolDurationDesc
	ch <- toolMaxDurationDesc
	ch <- toolBytesDesc
	ch <- taskStartedDesc
	ch <- taskActiveDesc
	ch <- taskCompletedDesc
	ch <- taskFailedDesc
	ch <- taskCancelledDesc
	ch <- taskRetriedDesc
	ch <- taskAvgExecutionDesc
	ch <- taskMaxExecutionDesc
	ch <- taskPeakMemoryDesc
	ch <- taskPeakCPUDesc
	ch <- taskPeakConcurrency
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	tool := c.reg.Tool.Snapshot()
	ch <- prometheus.MustNewConstMetric(toolInvocationsDesc, prometheus.CounterValue, float64(tool.Invocations))
	ch <- prometheus.MustNewConstMetric(toolErrorsDesc, prometheus.CounterValue, float64(tool.Errors))
	ch <- prometheus.MustNewConstMetric(toolDurationDesc, prometheus.CounterValue, float64(tool.TotalDurationMs))
	ch <- prometheus.MustNewConstMetric(toolMaxDurationDesc, prometheus.GaugeValue, float64(tool.MaxDurationMs))
	ch <- prometheus.MustNewConstMetric(toolBytesDesc, prometheus.CounterValue, float64(tool.TotalBytes))

	task := c.reg.Task.Snapshot()
	ch <- prometheus.MustNewConstMetric(taskStartedDesc, prometheus.CounterValue, float64(task.Started))
	ch <- prometheus.MustNewConstMetric(taskActiveDesc, prometheus.GaugeValue, float64(task.Active))
	ch <- prometheus.MustNewConstMetric(taskCompletedDesc, prometheus.CounterValue, float64(task.Completed))
	ch <- prometheus.MustNewConstMetric(taskFailedDesc, prometheus.CounterValue, float64(task.Failed))
	ch <- prometheus.MustNewConstMetric(taskCancelledDesc, prometheus.CounterValue, float64(task.Cancelled))
	ch <- prometheus.MustNewConstMetric(taskRetriedDesc, prometheus.CounterValue, float64(task.Retried))
	ch <- prometheus.MustNewConstMetric(taskAvgExecutionDesc, prometheus.GaugeValue, task.AvgExecutionMs)
	ch <- prometheus.MustNewConstMetric(taskMaxExecutionDesc, prometheus.GaugeValue, float64(task.MaxExecutionMs))
	ch <- prometheus.MustNewConstMetric(taskPeakMemoryDesc, prometheus.GaugeValue, float64(task.PeakMemoryBytes))
	ch <- prometheus.MustNewConstMetric(taskPeakCPUDesc, prometheus.GaugeValue, float64(task.PeakCPUTimeMs))
	ch <- prometheus.MustNewConstMetric(taskPeakConcurrency, prometheus.GaugeValue, float64(task.PeakConcurrentTasks))
}
