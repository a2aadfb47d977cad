package mcpgateway

import (
	"context"
	"encoding/json"

	"github.com/modnet-labs/registry-scheduler/metrics"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
	"github.com/modnet-labs/registry-scheduler/toolregistry"
)

// ToolRegistry is the subset of toolregistry.Registry the gateway needs.
type ToolRegistry interface {
	ListTools(filter toolregistry.Filter) []toolregistry.Tool
	GetTool(id string) (toolregistry.Tool, error)
	InvokeTool(ctx context.Context, inv toolregistry.Invocation) (toolregistry.InvocationResult, error)
}

// ServerInfo identifies this gateway in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Gateway dispatches JSON-RPC frames against a tool registry, prompt
// source, and resource source.
type Gateway struct {
	Tools     ToolRegistry
	Prompts   PromptSource
	Resources ResourceSource
	Metrics   *metrics.Registry
	Server    ServerInfo
}

// New constructs a Gateway. Prompts/Resources default to no-op sources and
// Metrics to the process-wide singleton when left unset.
func New(tools ToolRegistry, server ServerInfo) *Gateway {
	return &Gateway{
		Tools:     tools,
		Prompts:   NoopPromptSource{},
		Resources: NoopResourceSource{},
		Metrics:   metrics.Default,
		Server:    server,
	}
}

func errUnknownPrompt(name string) error {
	return toolerrs.Newf(toolerrs.NotFound, "mcpgateway.GetPrompt", "unknown prompt %q", name)
}

func errUnknownResource(uri string) error {
	return toolerrs.Newf(toolerrs.NotFound, "mcpgateway.ReadResource", "unknown resource %q", uri)
}

// Handle dispatches a single parsed Request and returns its Response, or
// nil if the method is a notification with no reply.
func (g *Gateway) Handle(ctx context.Context, req Request) *Response {
	if req.Method == "" {
		return errorResponse(req.ID, codeInvalidRequest, "method is required")
	}

	switch req.Method {
	case "initialize":
		return g.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return g.handleToolsList(req)
	case "tools/call":
		return g.handleToolsCall(ctx, req)
	case "prompts/list":
		return g.handlePromptsList(ctx, req)
	case "prompts/get":
		return g.handlePromptsGet(ctx, req)
	case "resources/list":
		return g.handleResourcesList(ctx, req)
	case "resources/read":
		return g.handleResourcesRead(ctx, req)
	case "metrics/get":
		return g.handleMetricsGet(req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "unknown method "+req.Method)
	}
}

// HandleFrame parses a single raw JSON-RPC frame and dispatches it,
// returning the marshaled response frame (nil for notifications).
func (g *Gateway) HandleFrame(ctx context.Context, frame []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		resp := errorResponse(nil, codeParseError, "parse error: "+err.Error())
		return json.Marshal(resp)
	}

	resp := g.Handle(ctx, req)
	if resp == nil {
		return nil, nil
	}
	return json.Marshal(resp)
}

func okResponse(id json.RawMessage, result any) *Response {
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, codeInternalError, err.Error())
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: data}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

// mapError translates an internal error into a JSON-RPC error response
// per the condition -> code table.
func mapError(id json.RawMessage, err error) *Response {
	if toolerrs.Is(err, toolerrs.Validation) {
		return errorResponse(id, codeInvalidParams, "Invalid params: "+err.Error())
	}
	if toolerrs.Is(err, toolerrs.Transport) {
		return errorResponse(id, codeParseError, err.Error())
	}
	return errorResponse(id, codeInternalError, err.Error())
}

type initializeParams struct {
	ClientInfo      json.RawMessage `json:"clientInfo"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ProtocolVersion string          `json:"protocolVersion"`
}

type initializeResult struct {
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities"`
	ProtocolVersion string         `json:"protocolVersion"`
}

func (g *Gateway) handleInitialize(req Request) *Response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "Invalid params: "+err.Error())
		}
	}

	return okResponse(req.ID, initializeResult{
		ServerInfo: g.Server,
		Capabilities: map[string]any{
			"tools":     map[string]any{},
			"prompts":   map[string]any{},
			"resources": map[string]any{},
		},
		ProtocolVersion: protocolVersion,
	})
}

type toolListing struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type toolsListResult struct {
	Tools      []toolListing `json:"tools"`
	NextCursor any           `json:"nextCursor"`
}

func (g *Gateway) handleToolsList(req Request) *Response {
	tools := g.Tools.ListTools(toolregistry.Filter{})
	out := make([]toolListing, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolListing{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return okResponse(req.ID, toolsListResult{Tools: out, NextCursor: nil})
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (g *Gateway) handleToolsCall(ctx context.Context, req Request) *Response {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params: "+err.Error())
	}

	tools := g.Tools.ListTools(toolregistry.Filter{})
	var toolID string
	for _, t := range tools {
		if t.Name == params.Name {
			toolID = t.ID
			break
		}
	}
	if toolID == "" {
		toolID = params.Name
	}

	invRes, err := g.Tools.InvokeTool(ctx, toolregistry.Invocation{ToolID: toolID, Parameters: params.Arguments})
	if err != nil {
		return mapError(req.ID, err)
	}

	bytes := int64(len(invRes.Result))
	isErr := invRes.Err != nil
	durationMs := invRes.CompletedAt.Sub(invRes.StartedAt).Milliseconds()
	g.Metrics.Tool.Record(durationMs, bytes, isErr)

	if isErr {
		return okResponse(req.ID, callResult{
			Content: []contentItem{{Type: "text", Text: invRes.Err.Error()}},
			IsError: true,
		})
	}

	return okResponse(req.ID, wrapToolResult(invRes.Result))
}

// wrapToolResult applies the tools/call result-wrapping rules: pass an
// already-shaped {content,isError} object through untouched; otherwise
// turn a JSON string into a single text content item, and pretty-print
// anything else.
func wrapToolResult(raw json.RawMessage) callResult {
	var preWrapped struct {
		Content []contentItem `json:"content"`
		IsError bool          `json:"isError"`
	}
	if json.Unmarshal(raw, &preWrapped) == nil && preWrapped.Content != nil {
		return callResult{Content: preWrapped.Content, IsError: preWrapped.IsError}
	}

	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		return callResult{Content: []contentItem{{Type: "text", Text: asString}}}
	}

	pretty := raw
	var doc any
	if json.Unmarshal(raw, &doc) == nil {
		if b, err := json.MarshalIndent(doc, "", "  "); err == nil {
			pretty = b
		}
	}
	return callResult{Content: []contentItem{{Type: "text", Text: string(pretty)}}}
}

type promptListing struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

type promptsListResult struct {
	Prompts []promptListing `json:"prompts"`
}

func (g *Gateway) handlePromptsList(ctx context.Context, req Request) *Response {
	prompts, err := g.Prompts.ListPrompts(ctx)
	if err != nil {
		return mapError(req.ID, err)
	}
	out := make([]promptListing, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, promptListing{Name: p.Name, Description: p.Description, Arguments: p.Arguments})
	}
	return okResponse(req.ID, promptsListResult{Prompts: out})
}

type promptsGetParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (g *Gateway) handlePromptsGet(ctx context.Context, req Request) *Response {
	var params promptsGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params: "+err.Error())
	}

	text, err := g.Prompts.GetPrompt(ctx, params.Name, params.Arguments)
	if err != nil {
		return mapError(req.ID, err)
	}
	return okResponse(req.ID, callResult{Content: []contentItem{{Type: "text", Text: text}}, IsError: false})
}

type resourceListing struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

type resourcesListResult struct {
	Resources  []resourceListing `json:"resources"`
	NextCursor any               `json:"nextCursor"`
}

func (g *Gateway) handleResourcesList(ctx context.Context, req Request) *Response {
	resources, err := g.Resources.ListResources(ctx)
	if err != nil {
		return mapError(req.ID, err)
	}
	out := make([]resourceListing, 0, len(resources))
	for _, r := range resources {
		out = append(out, resourceListing{URI: "registry://resource/" + r.ID, Name: r.Name, MimeType: r.MimeType})
	}
	return okResponse(req.ID, resourcesListResult{Resources: out, NextCursor: nil})
}

type resourcesReadParams struct {
	URI        string          `json:"uri"`
	Parameters json.RawMessage `json:"parameters"`
}

type resourcesReadResult struct {
	Contents []resourceContent `json:"contents"`
}

func (g *Gateway) handleResourcesRead(ctx context.Context, req Request) *Response {
	var params resourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params: "+err.Error())
	}

	mimeType, payload, err := g.Resources.ReadResource(ctx, params.URI, params.Parameters)
	if err != nil {
		return mapError(req.ID, err)
	}

	if mimeType == "" {
		var doc any
		if json.Unmarshal(payload, &doc) == nil {
			mimeType = "application/json"
		}
	}

	content := resourceContent{URI: params.URI, MimeType: mimeType}
	if mimeType == "application/json" {
		var doc any
		if json.Unmarshal(payload, &doc) == nil {
			if pretty, err := json.MarshalIndent(doc, "", "  "); err == nil {
				content.Text = string(pretty)
			}
		}
	}
	if content.Text == "" {
		content.Text = string(payload)
	}

	return okResponse(req.ID, resourcesReadResult{Contents: []resourceContent{content}})
}

type toolMetrics struct {
	Invocations     int64 `json:"invocations"`
	Errors          int64 `json:"errors"`
	TotalDurationMs int64 `json:"totalDurationMs"`
	MaxDurationMs   int64 `json:"maxDurationMs"`
	TotalBytes      int64 `json:"totalBytes"`
}

type metricsGetResult struct {
	Tool toolMetrics `json:"tool"`
}

func (g *Gateway) handleMetricsGet(req Request) *Response {
	snap := g.Metrics.Tool.Snapshot()
	return okResponse(req.ID, metricsGetResult{Tool: toolMetrics{
		Invocations:     snap.Invocations,
		Errors:          snap.Errors,
		TotalDurationMs: snap.TotalDurationMs,
		MaxDurationMs:   snap.MaxDurationMs,
		TotalBytes:      snap.TotalBytes,
	}})
}
