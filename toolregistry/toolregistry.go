// Package toolregistry owns the mapping from tool id to its manifest,
// compiled schemas, executor, and policy, and persists the discovered Tool
// metadata as an atomically-written JSON file.
package toolregistry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modnet-labs/registry-scheduler/chainindex"
	"github.com/modnet-labs/registry-scheduler/contentcache"
	"github.com/modnet-labs/registry-scheduler/executor"
	"github.com/modnet-labs/registry-scheduler/executor/process"
	"github.com/modnet-labs/registry-scheduler/executor/wasmexec"
	"github.com/modnet-labs/registry-scheduler/ipfsfetch"
	"github.com/modnet-labs/registry-scheduler/manifest"
	"github.com/modnet-labs/registry-scheduler/policy"
	"github.com/modnet-labs/registry-scheduler/telemetry"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// manifestServerID is the implicit server id every manifest-discovered tool
// is registered under.
const manifestServerID = "manifest"

// Tool is the runtime-facing view of a loaded or registered tool.
type Tool struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	Description   string          `json:"description,omitempty"`
	ServerID      string          `json:"server_id"`
	Categories    []string        `json:"categories,omitempty"`
	InputSchema   json.RawMessage `json:"input_schema,omitempty"`
	ReturnsSchema json.RawMessage `json:"returns_schema,omitempty"`
	RegisteredAt  time.Time       `json:"registered_at"`
}

// Filter narrows list_tools results.
type Filter struct {
	ServerID string
	Category string
}

// entry is the registry's internal per-tool state: the public Tool view
// plus everything invoke_tool needs.
type entry struct {
	tool     Tool
	manifest manifest.Manifest
	policy   policy.Policy
	exec     executor.Executor
}

// Registry owns id -> (Tool, Manifest, Executor, Policy, compiled schemas).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	manifestRoot string
	storePath    string

	wasmResolver *wasmexec.Resolver

	logger  telemetry.Logger
	metrics telemetry.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger overrides the Logger; defaults to a no-op.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics overrides the Metrics recorder; defaults to a no-op.
func WithMetrics(m telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New constructs a Registry rooted at manifestRoot (scanned for tool.json
// files) persisting discovered Tool metadata under storePath.
func New(manifestRoot, storePath string, cache *contentcache.Cache, fetcher *ipfsfetch.Fetcher, chain *chainindex.Resolver, opts ...Option) *Registry {
	r := &Registry{
		entries:      make(map[string]*entry),
		manifestRoot: manifestRoot,
		storePath:    storePath,
		wasmResolver: &wasmexec.Resolver{Cache: cache, Fetcher: fetcher, Chain: chain},
		logger:       telemetry.NewNoopLogger(),
		metrics:      telemetry.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize loads the manifest directory, registers every discovered tool
// under the "manifest" server id, and persists the result. It is idempotent
// given the same on-disk manifests.
func (r *Registry) Initialize(ctx context.Context) error {
	manifests, err := manifest.Load(r.manifestRoot, r.logger)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*entry, len(manifests))
	for _, m := range manifests {
		r.entries[m.ID] = &entry{
			tool: Tool{
				ID:            m.ID,
				Name:          m.Name,
				Version:       m.Version,
				Description:   m.Description,
				ServerID:      manifestServerID,
				Categories:    m.Categories,
				InputSchema:   m.ParametersRaw,
				ReturnsSchema: m.ReturnsRaw,
				RegisteredAt:  time.Now(),
			},
			manifest: m,
			policy:   m.Policy,
			exec:     r.buildExecutor(m),
		}
	}

	return r.persist()
}

func (r *Registry) buildExecutor(m manifest.Manifest) executor.Executor {
	switch m.Runtime {
	case manifest.RuntimeWasm:
		return wasmexec.New(wasmexec.Config{ModulePath: m.Wasm.ModulePath, Export: m.Wasm.Export}, m.Policy, r.wasmResolver,
			wasmexec.WithLogger(r.logger), wasmexec.WithMetrics(r.metrics))
	default:
		return process.New(process.Config{Command: m.Process.Command, Args: m.Process.Args}, m.Policy,
			process.WithLogger(r.logger), process.WithMetrics(r.metrics))
	}
}

// RegisterRequest describes a manually registered tool (not sourced from a
// scanned manifest file).
type RegisterRequest struct {
	Name        string
	Version     string
	Description string
	Manifest    manifest.Manifest
}

// RegisterTool generates a UUID id, builds a Tool, and appends it to
// storage.
func (r *Registry) RegisterTool(ctx context.Context, req RegisterRequest) (Tool, error) {
	id := uuid.NewString()
	m := req.Manifest
	m.ID = id

	r.mu.Lock()
	defer r.mu.Unlock()

	tool := Tool{
		ID:            id,
		Name:          req.Name,
		Version:       req.Version,
		Description:   req.Description,
		ServerID:      manifestServerID,
		Categories:    m.Categories,
		InputSchema:   m.ParametersRaw,
		ReturnsSchema: m.ReturnsRaw,
		RegisteredAt:  time.Now(),
	}
	r.entries[id] = &entry{
		tool:     tool,
		manifest: m,
		policy:   m.Policy,
		exec:     r.buildExecutor(m),
	}

	if err := r.persist(); err != nil {
		return Tool{}, err
	}
	return tool, nil
}

// ListTools returns every tool matching filter.
func (r *Registry) ListTools(filter Filter) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.entries))
	for _, e := range r.entries {
		if filter.ServerID != "" && e.tool.ServerID != filter.ServerID {
			continue
		}
		if filter.Category != "" && !hasCategory(e.tool.Categories, filter.Category) {
			continue
		}
		out = append(out, e.tool)
	}
	return out
}

func hasCategory(categories []string, want string) bool {
	for _, c := range categories {
		if c == want {
			return true
		}
	}
	return false
}

// GetTool returns the tool for id, or a NotFound error.
func (r *Registry) GetTool(id string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Tool{}, toolerrs.Newf(toolerrs.NotFound, "toolregistry.GetTool", "unknown tool %q", id)
	}
	return e.tool, nil
}

// DeleteTool removes id and persists. Deleting an absent id is a successful
// no-op.
func (r *Registry) DeleteTool(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return nil
	}
	delete(r.entries, id)
	return r.persist()
}

// Invocation is a tools/call request.
type Invocation struct {
	ToolID     string
	Parameters json.RawMessage
}

// InvocationResult is the outcome of an invocation, prior to MCP content
// wrapping.
type InvocationResult struct {
	Invocation  Invocation
	Result      json.RawMessage
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
	MemoryBytes int64
	CPUTimeMs   int64
}

// InvokeTool looks up the tool, validates parameters/returns against
// compiled schemas when present, dispatches to the tool's executor under
// its stored policy, and wraps the outcome with timestamps.
func (r *Registry) InvokeTool(ctx context.Context, inv Invocation) (InvocationResult, error) {
	r.mu.RLock()
	e, ok := r.entries[inv.ToolID]
	r.mu.RUnlock()
	if !ok {
		return InvocationResult{}, toolerrs.Newf(toolerrs.NotFound, "toolregistry.InvokeTool", "unknown tool %q", inv.ToolID)
	}

	started := time.Now()

	if e.manifest.Parameters != nil {
		var doc any
		if err := json.Unmarshal(inv.Parameters, &doc); err != nil {
			return InvocationResult{}, toolerrs.New(toolerrs.Validation, "toolregistry.InvokeTool", err)
		}
		if err := e.manifest.Parameters.Validate(doc); err != nil {
			return InvocationResult{}, toolerrs.New(toolerrs.Validation, "toolregistry.InvokeTool", err)
		}
	}

	result, execErr := e.exec.Invoke(ctx, inv.Parameters)

	if execErr == nil && e.manifest.Returns != nil {
		var doc any
		if err := json.Unmarshal(result.Value, &doc); err == nil {
			if err := e.manifest.Returns.Validate(doc); err != nil {
				execErr = toolerrs.New(toolerrs.Validation, "toolregistry.InvokeTool", err)
			}
		}
	}

	return InvocationResult{
		Invocation:  inv,
		Result:      result.Value,
		Err:         execErr,
		StartedAt:   started,
		CompletedAt: time.Now(),
		MemoryBytes: result.MemoryBytes,
		CPUTimeMs:   result.CPUTimeMs,
	}, nil
}

// persist writes the current Tool set to storePath atomically: write to a
// temp file in the same directory, then rename over the target. If the
// rename fails (e.g. cross-device), fall back to a direct write.
func (r *Registry) persist() error {
	tools := make([]Tool, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.tool)
	}

	data, err := json.MarshalIndent(tools, "", "  ")
	if err != nil {
		return toolerrs.New(toolerrs.Resource, "toolregistry.persist", err)
	}

	dir := filepath.Dir(r.storePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return toolerrs.New(toolerrs.Resource, "toolregistry.persist", err)
	}

	tmp, err := os.CreateTemp(dir, "toolregistry-*.tmp")
	if err != nil {
		return toolerrs.New(toolerrs.Resource, "toolregistry.persist", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return r.directWrite(data)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return r.directWrite(data)
	}
	if err := os.Rename(tmpName, r.storePath); err != nil {
		os.Remove(tmpName)
		return r.directWrite(data)
	}
	return nil
}

func (r *Registry) directWrite(data []byte) error {
	if err := os.WriteFile(r.storePath, data, 0o644); err != nil {
		return toolerrs.New(toolerrs.Resource, "toolregistry.directWrite", err)
	}
	return nil
}
