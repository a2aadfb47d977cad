// Package process implements the sub-process executor: one tool invocation
// spawns one short-lived child process, writes a single JSON request line
// to its stdin, and reads a single JSON response line from its stdout.
package process

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/modnet-labs/registry-scheduler/executor"
	"github.com/modnet-labs/registry-scheduler/policy"
	"github.com/modnet-labs/registry-scheduler/telemetry"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// Config is the spawn configuration for a sub-process tool, mirroring
// manifest.ProcessConfig so this package does not import manifest.
type Config struct {
	Command string
	Args    []string
}

// Executor spawns Config.Command for every invocation.
type Executor struct {
	cfg     Config
	policy  policy.Policy
	metrics telemetry.Metrics
	logger  telemetry.Logger
}

var _ executor.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics overrides the Metrics recorder; defaults to a no-op.
func WithMetrics(m telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger overrides the Logger; defaults to a no-op.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New constructs a sub-process Executor.
func New(cfg Config, p policy.Policy, opts ...Option) *Executor {
	e := &Executor{
		cfg:     cfg,
		policy:  p,
		metrics: telemetry.NewNoopMetrics(),
		logger:  telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type requestLine struct {
	Arguments json.RawMessage `json:"arguments"`
}

// Invoke spawns the configured command, writes the request line, and reads
// one response line within the policy's wall-clock timeout.
func (e *Executor) Invoke(ctx context.Context, arguments json.RawMessage) (executor.Result, error) {
	timeout := time.Duration(e.policy.TimeoutMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := e.run(runCtx, arguments)
	duration := time.Since(start)

	isError := err != nil
	bytes := 0
	if result.Value != nil {
		bytes = len(result.Value)
	}
	e.metrics.RecordTimer("tool_invocation_duration", duration)
	if isError {
		e.metrics.IncCounter("tool_invocation_errors", 1)
	} else {
		e.metrics.IncCounter("tool_invocations", 1)
		e.metrics.RecordGauge("tool_invocation_bytes", float64(bytes))
	}

	return result, err
}

func (e *Executor) run(ctx context.Context, arguments json.RawMessage) (executor.Result, error) {
	cmd := exec.CommandContext(ctx, e.cfg.Command, e.cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "process.Invoke", err)
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "process.Invoke", err)
	}

	req := requestLine{Arguments: arguments}
	line, err := json.Marshal(req)
	if err != nil {
		_ = cmd.Process.Kill()
		return executor.Result{}, toolerrs.New(toolerrs.Validation, "process.Invoke", err)
	}

	if _, err := stdin.Write(append(line, '\n')); err != nil {
		_ = cmd.Process.Kill()
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "process.Invoke", err)
	}
	_ = stdin.Close()

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		_ = cmd.Process.Kill()
		return executor.Result{}, toolerrs.Newf(toolerrs.Resource, "process.Invoke", "timed out")
	}

	respLine, ok := firstLine(stdout.Bytes())
	if !ok {
		return executor.Result{}, toolerrs.Newf(toolerrs.Resource, "process.Invoke", "empty response")
	}
	if int64(len(respLine)) > e.policy.MaxOutputBytes {
		return executor.Result{}, toolerrs.Newf(toolerrs.Resource, "process.Invoke", "output exceeds max_output_bytes (%d > %d)", len(respLine), e.policy.MaxOutputBytes)
	}

	var probe json.RawMessage
	if err := json.Unmarshal(respLine, &probe); err != nil {
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "process.Invoke", err)
	}

	if waitErr != nil {
		e.logger.Warn(ctx, "process: child exited non-zero but produced a JSON line", "command", e.cfg.Command, "error", waitErr)
	}

	return executor.Result{Value: probe, Bytes: len(respLine)}, nil
}

func firstLine(b []byte) ([]byte, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(b))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			return nil, false
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, true
	}
	return nil, false
}
