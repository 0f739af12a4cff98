package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smilemakc/flowfile/internal/config"
	"github.com/smilemakc/flowfile/internal/infrastructure/logger"
	"github.com/smilemakc/flowfile/pkg/executor"
	"github.com/smilemakc/flowfile/pkg/executor/builtin"
	"github.com/smilemakc/flowfile/pkg/fingerprint"
	"github.com/smilemakc/flowfile/pkg/graph"
	"github.com/smilemakc/flowfile/pkg/models"
	"github.com/smilemakc/flowfile/pkg/scheduler"
)

// newTestServer builds a Server around an in-process Lazy-only dispatcher,
// skipping New()'s Docker/worker dial so handler tests stay hermetic.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		Cache:  config.CacheConfig{Dir: t.TempDir()},
		Server: config.ServerConfig{RunDeadline: 5 * time.Second},
	}

	reg := executor.NewRegistry()
	require.NoError(t, builtin.RegisterBuiltins(reg))
	dispatchers := scheduler.Dispatchers{Lazy: executor.NewLazyDispatcher(reg)}

	runner := scheduler.NewRunner(dispatchers, fingerprint.NewCache(cfg.Cache.Dir), fingerprint.NewMutex())
	runner.RetryPolicy = scheduler.NoRetryPolicy()

	s := &Server{
		config: cfg,
		logger: logger.New(config.LoggingConfig{Level: "error", Format: "text"}),
		flows:  NewFlowRegistry(),
		runner: runner,
		cleanup: func() {
		},
	}
	require.NoError(t, s.setupRoutes())
	return s
}

func newTestGraph(t *testing.T, flowID int64) *graph.FlowGraph {
	t.Helper()
	g := graph.New(flowID, t.TempDir(), graph.DefaultFlowSettings())

	a, err := g.AddNode(graph.NodePromise{Kind: graph.KindManualInput})
	require.NoError(t, err)
	b, err := g.AddNode(graph.NodePromise{Kind: graph.KindSelect})
	require.NoError(t, err)

	require.NoError(t, g.SetNodeSettings(a, map[string]interface{}{"data": []interface{}{}}, nil))
	require.NoError(t, g.SetNodeSettings(b, map[string]interface{}{"columns": []string{"a"}}, nil))
	require.NoError(t, g.Connect(a, b, graph.SlotMain, nil))
	return g
}

func TestHandleRunFlow_CompletesAndReportsStatus(t *testing.T) {
	s := newTestServer(t)
	g := newTestGraph(t, 1)
	s.flows.Put("test-flow", g)

	req := httptest.NewRequest(http.MethodPost, "/flow/run/?flow_id=1", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var record models.RunRecord
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/flow/run_status/?flow_id=1", nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		_ = json.Unmarshal(rec.Body.Bytes(), &record)
		return record.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, models.RunStatusCompleted, record.Status)
	require.NotNil(t, record.Info)
	require.True(t, record.Info.Success)
	require.Equal(t, 2, record.Info.NodesCompleted)
}

func TestHandleRunFlow_UnknownFlowReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/flow/run/?flow_id=99", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleFlowData_RoundTripsGraph(t *testing.T) {
	s := newTestServer(t)
	g := newTestGraph(t, 2)
	s.flows.Put("round-trip", g)

	req := httptest.NewRequest(http.MethodGet, "/flow_data/v2?flow_id=2", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var ff models.FlowFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ff))
	require.Equal(t, int64(2), ff.FlowfileID)
	require.Len(t, ff.Nodes, 2)
}

func TestHandleImportFlow_LoadsYAMLFile(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")
	yamlBody := `
flowfile_version: "1"
flowfile_id: 7
flowfile_name: imported
flowfile_settings:
  execution_mode: Performance
  execution_location: auto
  max_parallel_workers: 2
nodes:
  - id: 1
    type: manual_input
    setting_input:
      data: []
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/import_flow/?flow_path="+path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		FlowID int64 `json:"flow_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(7), body.FlowID)

	_, ok := s.flows.Graph(7)
	require.True(t, ok)
}

func TestHandleCancelFlow_NoActiveRunReturns404(t *testing.T) {
	s := newTestServer(t)
	g := newTestGraph(t, 3)
	s.flows.Put("cancel-test", g)

	req := httptest.NewRequest(http.MethodPost, "/flow/cancel/?flow_id=3", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
