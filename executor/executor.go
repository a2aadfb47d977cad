// Package executor defines the common interface and result shape both the
// sub-process and Wasm executors implement.
package executor

import (
	"context"
	"encoding/json"
)

// Executor runs one tool invocation to completion under the given policy
// timeout and returns the parsed JSON result or an error.
type Executor interface {
	Invoke(ctx context.Context, arguments json.RawMessage) (Result, error)
}

// Result is the raw outcome of an executor invocation before MCP content
// wrapping. Bytes is the wire size used to enforce max_output_bytes and to
// feed the metrics collector. MemoryBytes and CPUTimeMs carry whatever
// resource-usage sample the executor can produce for the run; an executor
// that has no such measurement leaves them zero, which never raises a task
// collector's peak.
type Result struct {
	Value       json.RawMessage
	Bytes       int
	MemoryBytes int64
	CPUTimeMs   int64
}
