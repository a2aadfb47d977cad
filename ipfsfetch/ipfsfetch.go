// Package ipfsfetch resolves ipfs:// URIs to bytes and uploads artifacts to
// an IPFS node, across three provider strategies: a public gateway, a Kubo
// HTTP API, and a generic "api" file endpoint.
package ipfsfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/modnet-labs/registry-scheduler/config"
	"github.com/modnet-labs/registry-scheduler/telemetry"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

const clientTimeout = 20 * time.Second

// Fetcher resolves ipfs:// URIs and uploads artifacts via the configured
// provider.
type Fetcher struct {
	provider   config.IPFSProvider
	gatewayURL string
	apiURL     string
	apiKey     string
	client     *http.Client
	logger     telemetry.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger overrides the Fetcher's logger; defaults to a no-op logger.
func WithLogger(l telemetry.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithHTTPClient overrides the Fetcher's http.Client, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// New constructs a Fetcher from a resolved Config.
func New(cfg *config.Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		provider:   cfg.IPFSProvider,
		gatewayURL: cfg.IPFSGatewayURL,
		apiURL:     cfg.IPFSAPIURL,
		apiKey:     cfg.IPFSAPIKey,
		client:     &http.Client{Timeout: clientTimeout},
		logger:     telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ref is a parsed ipfs:// reference: the CID and an optional inner path.
type ref struct {
	cid  string
	path string
}

func parseIPFSURI(uri string) (ref, error) {
	const prefix = "ipfs://"
	if !strings.HasPrefix(uri, prefix) {
		return ref{}, toolerrs.Newf(toolerrs.Configuration, "ipfsfetch.parseIPFSURI", "not an ipfs:// uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	r := ref{cid: parts[0]}
	if len(parts) == 2 {
		r.path = parts[1]
	}
	return r, nil
}

// Fetch resolves uri (ipfs://<cid>[/<path>]) to its bytes using the
// configured provider.
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	r, err := parseIPFSURI(uri)
	if err != nil {
		return nil, err
	}

	switch f.provider {
	case config.IPFSProviderKubo:
		return f.fetchKubo(ctx, r)
	case config.IPFSProviderAPI:
		return f.fetchAPI(ctx, r)
	default:
		return f.fetchGateway(ctx, r)
	}
}

func (f *Fetcher) fetchGateway(ctx context.Context, r ref) ([]byte, error) {
	url := strings.TrimSuffix(f.gatewayURL, "/") + "/" + r.cid
	if r.path != "" {
		url += "/" + r.path
	}
	return f.getBody(ctx, url, nil)
}

func (f *Fetcher) fetchKubo(ctx context.Context, r ref) ([]byte, error) {
	arg := r.cid
	if r.path != "" {
		arg += "/" + r.path
	}
	url := fmt.Sprintf("%s/api/v0/cat?arg=%s", strings.TrimSuffix(f.apiURL, "/"), arg)
	return f.postBody(ctx, url, nil)
}

func (f *Fetcher) fetchAPI(ctx context.Context, r ref) ([]byte, error) {
	if r.path != "" {
		f.logger.Debug(ctx, "ipfsfetch: api provider ignores inner path", "cid", r.cid, "path", r.path)
	}
	url := fmt.Sprintf("%s/files/%s", strings.TrimSuffix(f.apiURL, "/"), r.cid)
	headers := map[string]string{}
	if f.apiKey != "" {
		headers["X-API-Key"] = f.apiKey
	}
	return f.getBody(ctx, url, headers)
}

func (f *Fetcher) getBody(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, toolerrs.New(toolerrs.Transport, "ipfsfetch.getBody", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return f.do(req)
}

func (f *Fetcher) postBody(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, toolerrs.New(toolerrs.Transport, "ipfsfetch.postBody", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return f.do(req)
}

func (f *Fetcher) do(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, toolerrs.New(toolerrs.Transport, "ipfsfetch.do", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, toolerrs.New(toolerrs.Transport, "ipfsfetch.do", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, toolerrs.Newf(toolerrs.Transport, "ipfsfetch.do", "ipfs fetch %s: status %d", req.URL, resp.StatusCode)
	}
	return body, nil
}

// uploadResult is the shape of the "api" provider's upload response.
type uploadResult struct {
	Hash string `json:"Hash"`
	CID  string `json:"cid"`
}

// Upload pushes data to the configured IPFS node and returns the resulting
// CID. It first tries the generic "files/upload" endpoint; if the response
// does not contain a recognizable CID field, it falls back to the Kubo
// add endpoint and parses the first NDJSON line's Hash field.
func (f *Fetcher) Upload(ctx context.Context, data []byte) (string, error) {
	cid, err := f.uploadGeneric(ctx, data)
	if err == nil && cid != "" {
		return cid, nil
	}
	return f.uploadKubo(ctx, data)
}

func (f *Fetcher) uploadGeneric(ctx context.Context, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "artifact")
	if err != nil {
		return "", toolerrs.New(toolerrs.Transport, "ipfsfetch.uploadGeneric", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", toolerrs.New(toolerrs.Transport, "ipfsfetch.uploadGeneric", err)
	}
	if err := mw.Close(); err != nil {
		return "", toolerrs.New(toolerrs.Transport, "ipfsfetch.uploadGeneric", err)
	}

	url := strings.TrimSuffix(f.apiURL, "/") + "/files/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", toolerrs.New(toolerrs.Transport, "ipfsfetch.uploadGeneric", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if f.apiKey != "" {
		req.Header.Set("X-API-Key", f.apiKey)
	}

	body, err := f.do(req)
	if err != nil {
		return "", err
	}

	var result uploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", toolerrs.New(toolerrs.Transport, "ipfsfetch.uploadGeneric", err)
	}
	if result.CID != "" {
		return result.CID, nil
	}
	return result.Hash, nil
}

func (f *Fetcher) uploadKubo(ctx context.Context, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "artifact")
	if err != nil {
		return "", toolerrs.New(toolerrs.Transport, "ipfsfetch.uploadKubo", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", toolerrs.New(toolerrs.Transport, "ipfsfetch.uploadKubo", err)
	}
	if err := mw.Close(); err != nil {
		return "", toolerrs.New(toolerrs.Transport, "ipfsfetch.uploadKubo", err)
	}

	url := strings.TrimSuffix(f.apiURL, "/") + "/api/v0/add?pin=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", toolerrs.New(toolerrs.Transport, "ipfsfetch.uploadKubo", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := f.do(req)
	if err != nil {
		return "", err
	}

	firstLine := body
	if idx := bytes.IndexByte(body, '\n'); idx >= 0 {
		firstLine = body[:idx]
	}
	var result uploadResult
	if err := json.Unmarshal(firstLine, &result); err != nil {
		return "", toolerrs.New(toolerrs.Transport, "ipfsfetch.uploadKubo", err)
	}
	return result.Hash, nil
}
