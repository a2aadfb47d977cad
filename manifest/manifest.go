// Package manifest loads tool.json files into Manifest values, compiling
// their parameter/return JSON Schemas and mapping their runtime entry into
// the executor configuration the registry dispatches on.
package manifest

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/modnet-labs/registry-scheduler/policy"
	"github.com/modnet-labs/registry-scheduler/telemetry"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

const manifestFilename = "tool.json"

// Runtime identifies which executor handles a tool's invocations.
type Runtime string

const (
	RuntimeProcess        Runtime = "process"
	RuntimePythonUVScript Runtime = "python-uv-script"
	RuntimeBinary         Runtime = "binary"
	RuntimeWasm           Runtime = "wasm"
)

// ProcessConfig configures the sub-process executor.
type ProcessConfig struct {
	Command string
	Args    []string
}

// WasmConfig configures the Wasm executor.
type WasmConfig struct {
	ModulePath string
	Export     string
}

// rawManifest mirrors tool.json's on-disk shape.
type rawManifest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Runtime     string          `json:"runtime"`
	Description string          `json:"description,omitempty"`
	Entry       json.RawMessage `json:"entry"`
	Schema      *struct {
		Parameters json.RawMessage `json:"parameters,omitempty"`
		Returns    json.RawMessage `json:"returns,omitempty"`
	} `json:"schema,omitempty"`
	Policy   *policy.Policy `json:"policy,omitempty"`
	Metadata *struct {
		Categories []string `json:"categories,omitempty"`
	} `json:"metadata,omitempty"`
}

type rawProcessEntry struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type rawUVEntry struct {
	UVArgs []string `json:"uv_args"`
	Script string   `json:"script"`
}

type rawWasmEntry struct {
	WasmPath string `json:"wasm_path"`
	Export   string `json:"export"`
}

// Manifest is the parsed, validated form of a tool.json file.
type Manifest struct {
	ID            string
	Name          string
	Version       string
	Runtime       Runtime
	Description   string
	Process       *ProcessConfig
	Wasm          *WasmConfig
	Parameters    *jsonschema.Schema
	Returns       *jsonschema.Schema
	ParametersRaw json.RawMessage
	ReturnsRaw    json.RawMessage
	Policy        policy.Policy
	Categories    []string

	Path string
}

// Load recursively locates every tool.json under root, parses, and maps it.
// Malformed files or unknown runtimes are logged and skipped; they never
// abort the load.
func Load(root string, logger telemetry.Logger) ([]Manifest, error) {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}

	var out []Manifest
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != manifestFilename {
			return nil
		}

		m, ok := loadOne(path, logger)
		if ok {
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, toolerrs.New(toolerrs.Configuration, "manifest.Load", err)
	}
	return out, nil
}

func loadOne(path string, logger telemetry.Logger) (Manifest, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn(context.Background(), "manifest: unreadable tool.json skipped", "path", path, "error", err)
		return Manifest{}, false
	}

	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn(context.Background(), "manifest: malformed tool.json skipped", "path", path, "error", err)
		return Manifest{}, false
	}

	rt := Runtime(raw.Runtime)
	m := Manifest{
		ID:          raw.ID,
		Name:        raw.Name,
		Version:     raw.Version,
		Runtime:     rt,
		Description: raw.Description,
		Policy:      policy.Defaults(),
		Path:        path,
	}
	if raw.Policy != nil {
		m.Policy = policy.Merge(policy.Defaults(), *raw.Policy)
	}
	if raw.Metadata != nil {
		m.Categories = raw.Metadata.Categories
	}

	if err := mapRuntime(&m, rt, raw.Entry); err != nil {
		logger.Warn(context.Background(), "manifest: unknown or malformed runtime skipped", "path", path, "runtime", raw.Runtime, "error", err)
		return Manifest{}, false
	}

	if raw.Schema != nil {
		m.ParametersRaw = raw.Schema.Parameters
		m.ReturnsRaw = raw.Schema.Returns
		m.Parameters = compileSchema(raw.Schema.Parameters, path, "parameters", logger)
		m.Returns = compileSchema(raw.Schema.Returns, path, "returns", logger)
	}

	return m, true
}

func mapRuntime(m *Manifest, rt Runtime, entry json.RawMessage) error {
	switch rt {
	case RuntimeProcess, RuntimeBinary:
		var e rawProcessEntry
		if err := json.Unmarshal(entry, &e); err != nil {
			return err
		}
		m.Process = &ProcessConfig{Command: e.Command, Args: e.Args}
		return nil
	case RuntimePythonUVScript:
		var e rawUVEntry
		if err := json.Unmarshal(entry, &e); err != nil {
			return err
		}
		args := append([]string{"run"}, e.UVArgs...)
		args = append(args, e.Script)
		m.Process = &ProcessConfig{Command: "uv", Args: args}
		return nil
	case RuntimeWasm:
		var e rawWasmEntry
		if err := json.Unmarshal(entry, &e); err != nil {
			return err
		}
		export := e.Export
		if export == "" {
			export = "call"
		}
		m.Wasm = &WasmConfig{ModulePath: e.WasmPath, Export: export}
		return nil
	default:
		return toolerrs.Newf(toolerrs.Validation, "manifest.mapRuntime", "unknown runtime %q", rt)
	}
}

// compileSchema compiles a parameter/return schema. Compilation failure
// downgrades the validator to absent (nil) rather than failing the load —
// that side simply goes unchecked at invocation time.
func compileSchema(raw json.RawMessage, path, side string, logger telemetry.Logger) *jsonschema.Schema {
	if len(raw) == 0 {
		return nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.Warn(context.Background(), "manifest: schema is not valid JSON, validator absent", "path", path, "side", side, "error", err)
		return nil
	}

	resourceID := path + "#" + side
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceID, doc); err != nil {
		logger.Warn(context.Background(), "manifest: schema resource rejected, validator absent", "path", path, "side", side, "error", err)
		return nil
	}
	schema, err := c.Compile(resourceID)
	if err != nil {
		logger.Warn(context.Background(), "manifest: schema failed to compile, validator absent", "path", path, "side", side, "error", err)
		return nil
	}
	return schema
}
