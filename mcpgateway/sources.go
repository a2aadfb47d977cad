package mcpgateway

import (
	"context"
	"encoding/json"
)

// PromptInfo describes one entry returned by prompts/list.
type PromptInfo struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// PromptArgument is one entry of a prompt's derived argument list.
type PromptArgument struct {
	Name     string
	Required bool
}

// PromptSource resolves prompts/list and prompts/get against whatever
// backs the prompt registry. Prompt storage is an opaque dispatch target;
// the gateway only needs this narrow interface.
type PromptSource interface {
	ListPrompts(ctx context.Context) ([]PromptInfo, error)
	GetPrompt(ctx context.Context, name string, arguments json.RawMessage) (text string, err error)
}

// ResourceInfo describes one entry returned by resources/list.
type ResourceInfo struct {
	ID       string
	Name     string
	MimeType string
}

// ResourceSource resolves resources/list and resources/read. Like
// PromptSource, resource storage is opaque beyond this interface.
type ResourceSource interface {
	ListResources(ctx context.Context) ([]ResourceInfo, error)
	ReadResource(ctx context.Context, uri string, parameters json.RawMessage) (mimeType string, payload []byte, err error)
}

// NoopPromptSource has no prompts registered.
type NoopPromptSource struct{}

func (NoopPromptSource) ListPrompts(ctx context.Context) ([]PromptInfo, error) { return nil, nil }
func (NoopPromptSource) GetPrompt(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	return "", errUnknownPrompt(name)
}

// NoopResourceSource has no resources registered.
type NoopResourceSource struct{}

func (NoopResourceSource) ListResources(ctx context.Context) ([]ResourceInfo, error) { return nil, nil }
func (NoopResourceSource) ReadResource(ctx context.Context, uri string, parameters json.RawMessage) (string, []byte, error) {
	return "", nil, errUnknownResource(uri)
}
