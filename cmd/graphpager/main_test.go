package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphpager/internal/eventbus"
	"github.com/hanpama/graphpager/internal/transport"
)

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"help", "fetch"}, &out))
	assert.Contains(t, out.String(), "fetch FLAGS")

	out.Reset()
	require.NoError(t, run([]string{"help"}, &out))
	assert.Contains(t, out.String(), "COMMANDS")

	require.Error(t, run([]string{"help", "serve"}, &out))
}

func TestUnknownCommand(t *testing.T) {
	require.Error(t, run(nil, io.Discard))
	require.Error(t, run([]string{"serve"}, io.Discard))
}

func TestRender(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"render", "-check", "-tree", "testdata/viewer.yaml"}, &out))

	g := goldie.New(t)
	g.Assert(t, "render_viewer", out.Bytes())
}

func TestRenderRequiresTree(t *testing.T) {
	require.Error(t, run([]string{"render"}, io.Discard))
}

func TestFetchFollowsPages(t *testing.T) {
	t.Cleanup(func() { eventbus.Use(nil) })

	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		var req transport.Request
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if strings.Contains(req.Query, `after: "c2"`) {
			_, _ = w.Write([]byte(`{"data":{"node":{"issues":{
				"edges":[{"node":{"id":"I3","__typename":"Issue","title":"c"},"cursor":"c3"}],
				"pageInfo":{"hasNextPage":false}}}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"node":{"issues":{
			"edges":[
				{"node":{"id":"I1","__typename":"Issue","title":"a"},"cursor":"c1"},
				{"node":{"id":"I2","__typename":"Issue","title":"b"},"cursor":"c2"}],
			"pageInfo":{"hasNextPage":true}}}}}`))
	}))
	defer srv.Close()

	t.Setenv("GRAPHPAGER_TOKEN", "env-token")
	outFile := filepath.Join(t.TempDir(), "nodes.jsonl")
	err := run([]string{"fetch",
		"-tree", "testdata/issues.yaml",
		"-endpoint", srv.URL,
		"-log.level", "disabled",
		"-out", outFile,
	}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "bearer env-token", auth.Load())

	b, err := os.ReadFile(outFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)

	var first nodeLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "I1", first.ID)
	assert.Equal(t, "Issue", first.Type)
	assert.Equal(t, "R1", first.Parent)
	assert.Equal(t, "issues", first.Relationship)
	assert.Equal(t, "a", first.Payload["title"])
}

func TestFetchNeedsEndpoint(t *testing.T) {
	t.Setenv("GRAPHPAGER_TOKEN", "")
	err := run([]string{"fetch", "-tree", "testdata/issues.yaml"}, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no endpoint")
}

func TestFetchRejectsBadFlags(t *testing.T) {
	err := run([]string{"fetch", "-tree", "testdata/issues.yaml", "-endpoint", "http://x", "-concurrency", "0"}, io.Discard)
	require.Error(t, err)

	err = run([]string{"fetch", "-tree", "testdata/issues.yaml", "-endpoint", "http://x", "-header", "novalue"}, io.Discard)
	require.Error(t, err)
}
