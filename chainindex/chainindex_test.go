package chainindex_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modnet-labs/registry-scheduler/chainindex"
)

func writeIndex(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveFlatShape(t *testing.T) {
	path := writeIndex(t, `{"m1":{"uri":"ipfs://cid1","owner":"abc"}}`)
	r := &chainindex.Resolver{LocalIndexFile: path}

	ptr, err := r.Resolve(context.Background(), "chain://m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", ptr.ModuleID)
	assert.Equal(t, "ipfs://cid1", ptr.URI)
}

func TestResolveWrappedShape(t *testing.T) {
	path := writeIndex(t, `{"modules":{"m2":{"module_id":"m2","uri":"ipfs://cid2"}}}`)
	r := &chainindex.Resolver{LocalIndexFile: path}

	ptr, err := r.Resolve(context.Background(), "chain://m2")
	require.NoError(t, err)
	assert.Equal(t, "ipfs://cid2", ptr.URI)
}

func TestResolveArrayShape(t *testing.T) {
	path := writeIndex(t, `[{"module_id":"m3","uri":"ipfs://cid3"}]`)
	r := &chainindex.Resolver{LocalIndexFile: path}

	ptr, err := r.Resolve(context.Background(), "chain://m3")
	require.NoError(t, err)
	assert.Equal(t, "ipfs://cid3", ptr.URI)
}

func TestResolveUnknownModuleFails(t *testing.T) {
	path := writeIndex(t, `{"m1":{"uri":"ipfs://cid1"}}`)
	r := &chainindex.Resolver{LocalIndexFile: path}

	_, err := r.Resolve(context.Background(), "chain://missing")
	require.Error(t, err)
}

func TestResolveHTTPIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/modules/m4", req.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"uri": "ipfs://cid4"})
	}))
	defer srv.Close()

	r := &chainindex.Resolver{HTTPIndexURL: srv.URL}
	ptr, err := r.Resolve(context.Background(), "chain://m4")
	require.NoError(t, err)
	assert.Equal(t, "ipfs://cid4", ptr.URI)
	assert.Equal(t, "m4", ptr.ModuleID)
}

func TestResolveWithNoSourceConfiguredFails(t *testing.T) {
	r := &chainindex.Resolver{}
	_, err := r.Resolve(context.Background(), "chain://m5")
	require.Error(t, err)
}

func TestResolveRejectsNonChainURI(t *testing.T) {
	r := &chainindex.Resolver{LocalIndexFile: writeIndex(t, `{}`)}
	_, err := r.Resolve(context.Background(), "ipfs://cid1")
	require.Error(t, err)
}
