// Command registryd runs the tool registry, task scheduler, and MCP
// JSON-RPC gateway over newline-delimited stdio frames.
//
// # Configuration
//
// Environment variables (see config.Load for the full fallback chains):
//
//	MODSDK_KEYS_DIR / MODNET_KEYS_DIR      - encrypted key file directory
//	MODSDK_CHAIN_RPC_URL / CHAIN_RPC_URL   - substrate RPC endpoint
//	MODSDK_IPFS_GATEWAY_URL / IPFS_GATEWAY_URL - IPFS gateway base
//	IPFS_PROVIDER                          - gateway|kubo|api
//	CHAIN_INDEX_FILE / CHAIN_INDEX_URL     - module index sources
//	REGISTRYD_MANIFEST_DIR                 - tool.json search root (default: ./manifests)
//	REGISTRYD_STORE_PATH                   - tool metadata JSON path (default: <cache>/tools.json)
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/modnet-labs/registry-scheduler/chainindex"
	"github.com/modnet-labs/registry-scheduler/config"
	"github.com/modnet-labs/registry-scheduler/contentcache"
	"github.com/modnet-labs/registry-scheduler/ipfsfetch"
	"github.com/modnet-labs/registry-scheduler/mcpgateway"
	"github.com/modnet-labs/registry-scheduler/scheduler"
	"github.com/modnet-labs/registry-scheduler/telemetry"
	"github.com/modnet-labs/registry-scheduler/toolregistry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zapLog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer zapLog.Sync()
	logger := telemetry.NewZapLogger(zapLog)

	cache, err := contentcache.New(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("open content cache: %w", err)
	}

	fetcher := ipfsfetch.New(cfg, ipfsfetch.WithLogger(logger))

	chain := &chainindex.Resolver{
		LocalIndexFile: cfg.ChainIndexFile,
		HTTPIndexURL:   cfg.ChainIndexURL,
		Fetcher:        fetcher,
	}
	if chain.LocalIndexFile == "" && chain.HTTPIndexURL == "" && cfg.ChainRPCURL != "" {
		reader, err := chainindex.NewGSRPCReader(cfg.ChainRPCURL)
		if err != nil {
			logger.Warn(ctx, "chain RPC unavailable, module resolution limited to local/HTTP index", "error", err)
		} else {
			chain.Chain = reader
		}
	}

	manifestDir := envOr("REGISTRYD_MANIFEST_DIR", "./manifests")
	storePath := envOr("REGISTRYD_STORE_PATH", filepath.Join(cfg.CacheDir, "tools.json"))

	reg := toolregistry.New(manifestDir, storePath, cache, fetcher, chain,
		toolregistry.WithLogger(logger), toolregistry.WithMetrics(telemetry.NewOtelMetrics("registryd")))
	if err := reg.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize tool registry: %w", err)
	}

	sched := scheduler.New(schedulerInvoker{reg}, scheduler.WithLogger(logger))
	go sched.Run(ctx)
	defer sched.Stop()

	gw := mcpgateway.New(reg, mcpgateway.ServerInfo{Name: "registryd", Version: "0.1.0"})

	return serveStdio(ctx, gw)
}

// schedulerInvoker adapts *toolregistry.Registry to scheduler.Invoker.
type schedulerInvoker struct {
	reg *toolregistry.Registry
}

func (s schedulerInvoker) InvokeTool(ctx context.Context, inv toolregistry.Invocation) (toolregistry.InvocationResult, error) {
	return s.reg.InvokeTool(ctx, inv)
}

// serveStdio reads one JSON-RPC frame per line from stdin and writes the
// response frame to stdout, until stdin closes or ctx is cancelled.
func serveStdio(ctx context.Context, gw *mcpgateway.Gateway) error {
	scan := bufio.NewScanner(os.Stdin)
	scan.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for scan.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scan.Bytes()
		if len(line) == 0 {
			continue
		}

		resp, err := gw.HandleFrame(ctx, line)
		if err != nil || resp == nil {
			continue
		}
		out.Write(resp)
		out.WriteByte('\n')
		out.Flush()
	}
	return scan.Err()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
