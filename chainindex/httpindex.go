package chainindex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

const httpIndexTimeout = 20 * time.Second

func fetchHTTPIndex(ctx context.Context, baseURL, id string) (ModulePointer, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/modules/" + id

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ModulePointer{}, toolerrs.New(toolerrs.Transport, "chainindex.fetchHTTPIndex", err)
	}

	client := &http.Client{Timeout: httpIndexTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return ModulePointer{}, toolerrs.New(toolerrs.Transport, "chainindex.fetchHTTPIndex", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ModulePointer{}, toolerrs.New(toolerrs.Transport, "chainindex.fetchHTTPIndex", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ModulePointer{}, toolerrs.Newf(toolerrs.NotFound, "chainindex.fetchHTTPIndex", "module %q not found at %s", id, baseURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ModulePointer{}, toolerrs.Newf(toolerrs.Transport, "chainindex.fetchHTTPIndex", "index %s: status %d", url, resp.StatusCode)
	}

	var ptr ModulePointer
	if err := json.Unmarshal(body, &ptr); err != nil {
		return ModulePointer{}, toolerrs.New(toolerrs.Validation, "chainindex.fetchHTTPIndex", err)
	}
	return withID(ptr, id), nil
}
