package chainindex

import (
	"encoding/json"
	"os"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// loadLocalIndex reads path and resolves id against one of three supported
// shapes: flat {id: pointer}, {"modules": {id: pointer}}, or an array of
// pointers. The module id is injected into the returned pointer if the
// source entry omitted it.
func loadLocalIndex(path, id string) (ModulePointer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ModulePointer{}, toolerrs.New(toolerrs.Configuration, "chainindex.loadLocalIndex", err)
	}

	if ptr, ok := tryFlatShape(raw, id); ok {
		return ptr, nil
	}
	if ptr, ok := tryWrappedShape(raw, id); ok {
		return ptr, nil
	}
	if ptr, ok := tryArrayShape(raw, id); ok {
		return ptr, nil
	}

	return ModulePointer{}, toolerrs.Newf(toolerrs.NotFound, "chainindex.loadLocalIndex", "module %q not found in local index %s", id, path)
}

func tryFlatShape(raw []byte, id string) (ModulePointer, bool) {
	var flat map[string]ModulePointer
	if err := json.Unmarshal(raw, &flat); err != nil {
		return ModulePointer{}, false
	}
	ptr, ok := flat[id]
	if !ok {
		return ModulePointer{}, false
	}
	return withID(ptr, id), true
}

func tryWrappedShape(raw []byte, id string) (ModulePointer, bool) {
	var wrapped struct {
		Modules map[string]ModulePointer `json:"modules"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Modules == nil {
		return ModulePointer{}, false
	}
	ptr, ok := wrapped.Modules[id]
	if !ok {
		return ModulePointer{}, false
	}
	return withID(ptr, id), true
}

func tryArrayShape(raw []byte, id string) (ModulePointer, bool) {
	var list []ModulePointer
	if err := json.Unmarshal(raw, &list); err != nil {
		return ModulePointer{}, false
	}
	for _, ptr := range list {
		if ptr.ModuleID == id {
			return ptr, true
		}
	}
	return ModulePointer{}, false
}

func withID(ptr ModulePointer, id string) ModulePointer {
	if ptr.ModuleID == "" {
		ptr.ModuleID = id
	}
	return ptr
}
