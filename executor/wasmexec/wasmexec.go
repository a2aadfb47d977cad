// Package wasmexec implements the Wasm executor: it resolves module bytes
// (local, ipfs://, or chain://), instantiates them under a fuel-metered,
// network-less WASI sandbox, and calls the configured export through a
// minimal alloc/call/free ABI.
package wasmexec

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v27"

	"github.com/modnet-labs/registry-scheduler/chainindex"
	"github.com/modnet-labs/registry-scheduler/contentcache"
	"github.com/modnet-labs/registry-scheduler/executor"
	"github.com/modnet-labs/registry-scheduler/ipfsfetch"
	"github.com/modnet-labs/registry-scheduler/modcrypto"
	"github.com/modnet-labs/registry-scheduler/policy"
	"github.com/modnet-labs/registry-scheduler/telemetry"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// Config is the Wasm entry configuration, mirroring manifest.WasmConfig.
type Config struct {
	ModulePath string
	Export     string
}

// Resolver resolves a module_path into bytes: local file, ipfs://, or
// chain:// (via the chain index and IPFS fetcher).
type Resolver struct {
	Cache   *contentcache.Cache
	Fetcher *ipfsfetch.Fetcher
	Chain   *chainindex.Resolver
}

// Resolve returns the bytes for modulePath, verifying digest/signature when
// the path resolves through the chain index.
func (r *Resolver) Resolve(ctx context.Context, modulePath string) ([]byte, error) {
	switch {
	case strings.HasPrefix(modulePath, "chain://"):
		return r.resolveChain(ctx, modulePath)
	case strings.HasPrefix(modulePath, "ipfs://"):
		return r.resolveIPFS(ctx, modulePath)
	default:
		return readLocalFile(modulePath)
	}
}

func (r *Resolver) resolveChain(ctx context.Context, modulePath string) ([]byte, error) {
	pointer, err := r.Chain.Resolve(ctx, modulePath)
	if err != nil {
		return nil, err
	}

	if pointer.Digest != "" {
		key := contentcache.DigestKey(strings.TrimPrefix(pointer.Digest, "sha256:"))
		if cached, ok := r.Cache.Read(key); ok {
			return cached, nil
		}
	}

	artifactBytes, err := r.fetchByURI(ctx, pointer.URI)
	if err != nil {
		return nil, err
	}

	if pointer.Digest != "" {
		if err := modcrypto.CheckDigest(artifactBytes, pointer.Digest); err != nil {
			return nil, err
		}
	}
	if pointer.Signature != "" && pointer.Owner != "" {
		owner, err := modcrypto.Decode(pointer.Owner)
		if err != nil {
			return nil, err
		}
		digest, err := modcrypto.ParseDigest(pointer.Digest)
		if err != nil {
			return nil, err
		}
		sig, err := modcrypto.ParseSignature(pointer.Signature)
		if err != nil {
			return nil, err
		}
		if err := modcrypto.VerifySr25519(owner.Pubkey, digest, sig); err != nil {
			return nil, err
		}
	}

	if pointer.Digest != "" {
		key := contentcache.DigestKey(strings.TrimPrefix(pointer.Digest, "sha256:"))
		_ = r.Cache.Write(key, artifactBytes)
	}

	return artifactBytes, nil
}

func (r *Resolver) resolveIPFS(ctx context.Context, modulePath string) ([]byte, error) {
	cid := strings.TrimPrefix(modulePath, "ipfs://")
	if idx := strings.IndexByte(cid, '/'); idx >= 0 {
		cid = cid[:idx]
	}
	key := contentcache.CIDKey(cid)
	if cached, ok := r.Cache.Read(key); ok {
		return cached, nil
	}

	fetched, err := r.Fetcher.Fetch(ctx, modulePath)
	if err != nil {
		return nil, err
	}
	_ = r.Cache.Write(key, fetched)
	return fetched, nil
}

func (r *Resolver) fetchByURI(ctx context.Context, uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "ipfs://") {
		return r.Fetcher.Fetch(ctx, uri)
	}
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return fetchHTTP(ctx, uri)
	}
	return readLocalFile(uri)
}

// Executor runs a resolved Wasm module's configured export under a fuel
// budget derived from the tool's policy.
type Executor struct {
	cfg      Config
	policy   policy.Policy
	resolver *Resolver
	engine   *wasmtime.Engine
	metrics  telemetry.Metrics
	logger   telemetry.Logger
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

// New constructs a Wasm Executor with fuel consumption enabled on its engine.
func New(cfg Config, p policy.Policy, resolver *Resolver, opts ...Option) *Executor {
	wtConfig := wasmtime.NewConfig()
	wtConfig.SetConsumeFuel(true)

	e := &Executor{
		cfg:      cfg,
		policy:   p,
		resolver: resolver,
		engine:   wasmtime.NewEngineWithConfig(wtConfig),
		metrics:  telemetry.NewNoopMetrics(),
		logger:   telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invoke resolves the module, instantiates it, and calls its export with
// arguments serialized to JSON. The call runs on a separate goroutine so it
// can be abandoned when timeout_ms elapses.
func (e *Executor) Invoke(ctx context.Context, arguments json.RawMessage) (executor.Result, error) {
	timeout := time.Duration(e.policy.TimeoutMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result executor.Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		start := time.Now()
		res, err := e.run(runCtx, arguments)
		e.metrics.RecordTimer("tool_invocation_duration", time.Since(start))
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			e.metrics.IncCounter("tool_invocation_errors", 1)
		} else {
			e.metrics.IncCounter("tool_invocations", 1)
			e.metrics.RecordGauge("tool_invocation_bytes", float64(out.result.Bytes))
		}
		return out.result, out.err
	case <-runCtx.Done():
		e.metrics.IncCounter("tool_invocation_errors", 1)
		return executor.Result{}, toolerrs.Newf(toolerrs.Resource, "wasmexec.Invoke", "timed out")
	}
}

func (e *Executor) run(ctx context.Context, arguments json.RawMessage) (executor.Result, error) {
	moduleBytes, err := e.resolver.Resolve(ctx, e.cfg.ModulePath)
	if err != nil {
		return executor.Result{}, err
	}

	module, err := wasmtime.NewModule(e.engine, moduleBytes)
	if err != nil {
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "wasmexec.run", err)
	}

	store := wasmtime.NewStore(e.engine)
	if err := store.SetFuel(e.policy.FuelBudget()); err != nil {
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "wasmexec.run", err)
	}

	wasiConfig := wasmtime.NewWasiConfig()
	store.SetWasi(wasiConfig)

	linker := wasmtime.NewLinker(e.engine)
	if err := linker.DefineWasi(); err != nil {
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "wasmexec.run", err)
	}

	instance, err := linker.Instantiate(store, module)
	if err != nil {
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "wasmexec.run", err)
	}

	memExport := instance.GetExport(store, "memory")
	allocExport := instance.GetExport(store, "alloc")
	callExport := instance.GetExport(store, e.cfg.Export)
	if memExport == nil || memExport.Memory() == nil || allocExport == nil || allocExport.Func() == nil || callExport == nil || callExport.Func() == nil {
		return executor.Result{}, toolerrs.Newf(toolerrs.Resource, "wasmexec.run", "module missing required ABI export (memory, alloc, or %q)", e.cfg.Export)
	}
	memory := memExport.Memory()
	allocFn := allocExport.Func()
	callFn := callExport.Func()

	input := []byte(arguments)

	ptrVal, err := allocFn.Call(store, int32(len(input)))
	if err != nil {
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "wasmexec.run", err)
	}
	inPtr, ok := ptrVal.(int32)
	if !ok {
		return executor.Result{}, toolerrs.Newf(toolerrs.Resource, "wasmexec.run", "alloc did not return i32")
	}

	data := memory.UnsafeData(store)
	if int(inPtr)+len(input) > len(data) {
		return executor.Result{}, toolerrs.Newf(toolerrs.Resource, "wasmexec.run", "alloc returned out-of-bounds pointer")
	}
	copy(data[inPtr:], input)

	callResult, err := callFn.Call(store, inPtr, int32(len(input)))
	if err != nil {
		if trap, ok := err.(*wasmtime.Trap); ok {
			return executor.Result{}, toolerrs.New(toolerrs.Resource, "wasmexec.run", trap)
		}
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "wasmexec.run", err)
	}

	outPtr, outLen, err := unpackCallResult(callResult)
	if err != nil {
		return executor.Result{}, err
	}

	if int64(outLen) > e.policy.MaxOutputBytes {
		return executor.Result{}, toolerrs.Newf(toolerrs.Resource, "wasmexec.run", "output exceeds max_output_bytes (%d > %d)", outLen, e.policy.MaxOutputBytes)
	}

	out := make([]byte, outLen)
	data = memory.UnsafeData(store)
	if int(outPtr)+int(outLen) > len(data) {
		return executor.Result{}, toolerrs.Newf(toolerrs.Resource, "wasmexec.run", "call returned out-of-bounds output")
	}
	copy(out, data[outPtr:int(outPtr)+int(outLen)])

	trimmed := trimAfterLastBrace(out)

	var probe json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return executor.Result{}, toolerrs.New(toolerrs.Resource, "wasmexec.run", err)
	}

	if freeExport := instance.GetExport(store, "free"); freeExport != nil && freeExport.Func() != nil {
		_, _ = freeExport.Func().Call(store, outPtr, outLen)
	}

	return executor.Result{Value: probe, Bytes: len(trimmed), MemoryBytes: int64(memory.DataSize(store))}, nil
}

// unpackCallResult normalizes the wasmtime multi-value return of
// call(ptr,len) -> (ptr,len) into two int32s.
func unpackCallResult(v any) (int32, int32, error) {
	vals, ok := v.([]wasmtime.Val)
	if ok {
		if len(vals) != 2 {
			return 0, 0, toolerrs.Newf(toolerrs.Resource, "wasmexec.unpackCallResult", "call export returned %d values, want 2", len(vals))
		}
		return vals[0].I32(), vals[1].I32(), nil
	}

	results, ok := v.([]any)
	if !ok || len(results) != 2 {
		return 0, 0, toolerrs.Newf(toolerrs.Resource, "wasmexec.unpackCallResult", "call export did not return (ptr, len)")
	}
	ptr, ok1 := results[0].(int32)
	length, ok2 := results[1].(int32)
	if !ok1 || !ok2 {
		return 0, 0, toolerrs.Newf(toolerrs.Resource, "wasmexec.unpackCallResult", "call export values are not i32")
	}
	return ptr, length, nil
}

func trimAfterLastBrace(b []byte) []byte {
	if idx := bytes.LastIndexByte(b, '}'); idx >= 0 {
		return b[:idx+1]
	}
	return b
}
