package kernel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smilemakc/flowfile/pkg/graph"
	"github.com/smilemakc/flowfile/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeKernelServer(t *testing.T, handler http.HandlerFunc) *Kernel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Kernel{ID: "k1", BaseURL: srv.URL, State: StateIdle}
}

func newTestPool(k *Kernel) *Pool {
	p := &Pool{kernels: map[string]*Kernel{"k1": k}}
	return p
}

func TestDispatcher_ExecuteRecordsPublishedArtifacts(t *testing.T) {
	k := fakeKernelServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ExecuteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "print('hi')", req.Code)
		_ = json.NewEncoder(w).Encode(ExecuteResponse{
			Success:            true,
			ArtifactsPublished: []string{"df_out"},
			OutputPaths:        []string{"/tmp/out/1.parquet"},
		})
	})

	artifacts := NewArtifactContext()
	d := NewDispatcher(newTestPool(k), artifacts, func(int64) []int64 { return nil })

	node := &graph.Node{ID: 5, Kind: graph.KindPythonScript, Settings: map[string]interface{}{"code": "print('hi')"}}
	entry, err := d.Dispatch(context.Background(), node, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out/1.parquet", entry.FilePath)

	published := artifacts.PublishedBy(5)
	require.Len(t, published, 1)
	assert.Equal(t, "df_out", published[0].Name)
}

func TestDispatcher_FailedExecutionReturnsError(t *testing.T) {
	k := fakeKernelServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ExecuteResponse{Success: false, Error: "boom"})
	})

	d := NewDispatcher(newTestPool(k), NewArtifactContext(), nil)
	node := &graph.Node{ID: 1, Kind: graph.KindPythonScript, Settings: map[string]interface{}{}}
	_, err := d.Dispatch(context.Background(), node, nil)
	assert.ErrorContains(t, err, "boom")
}

func TestDispatcher_PassesAvailableArtifactsFromAncestors(t *testing.T) {
	var seen []string
	k := fakeKernelServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ExecuteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = req.Available
		_ = json.NewEncoder(w).Encode(ExecuteResponse{Success: true})
	})

	artifacts := NewArtifactContext()
	_, err := artifacts.RecordPublished(1, "k1", []string{"upstream_df"}, nil)
	require.NoError(t, err)

	d := NewDispatcher(newTestPool(k), artifacts, func(id int64) []int64 { return []int64{1} })
	node := &graph.Node{ID: 2, Kind: graph.KindPythonScript, Settings: map[string]interface{}{}}
	_, err = d.Dispatch(context.Background(), node, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"upstream_df"}, seen)
}

func TestDispatcher_UsesKernelIDFromSettings(t *testing.T) {
	k := fakeKernelServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ExecuteResponse{Success: true})
	})
	pool := &Pool{kernels: map[string]*Kernel{"custom": k}}
	d := NewDispatcher(pool, NewArtifactContext(), nil)

	node := &graph.Node{ID: 1, Kind: graph.KindPythonScript, Settings: map[string]interface{}{"kernel_id": "custom"}}
	_, err := d.Dispatch(context.Background(), node, []scheduler.Input{})
	assert.NoError(t, err)
}
