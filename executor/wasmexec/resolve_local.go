package wasmexec

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

const httpFetchTimeout = 20 * time.Second

func readLocalFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, toolerrs.New(toolerrs.NotFound, "wasmexec.readLocalFile", err)
	}
	return b, nil
}

func fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, toolerrs.New(toolerrs.Transport, "wasmexec.fetchHTTP", err)
	}
	client := &http.Client{Timeout: httpFetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, toolerrs.New(toolerrs.Transport, "wasmexec.fetchHTTP", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, toolerrs.New(toolerrs.Transport, "wasmexec.fetchHTTP", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, toolerrs.Newf(toolerrs.Transport, "wasmexec.fetchHTTP", "status %d fetching %s", resp.StatusCode, url)
	}
	return body, nil
}
