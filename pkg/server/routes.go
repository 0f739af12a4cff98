package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/flowfile/pkg/models"
	"github.com/smilemakc/flowfile/pkg/planner"
)

// setupRoutes builds the gin engine and registers the §6 HTTP surface. This
// surface has no auth, billing or websocket-observer concerns to mount —
// those are out of scope per spec §1's non-goals — so middleware is limited
// to gin's own recovery and a request logger through s.logger.
func (s *Server) setupRoutes() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/healthz", s.handleHealth)

	flow := r.Group("/flow")
	flow.POST("/run/", s.handleRunFlow)
	flow.GET("/run_status/", s.handleRunStatus)
	flow.POST("/cancel/", s.handleCancelFlow)

	r.GET("/flow_data/v2", s.handleFlowData)
	r.GET("/import_flow/", s.handleImportFlow)

	s.router = r
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// flowIDFromQuery extracts and parses the flow_id query parameter shared by
// every /flow/* endpoint.
func flowIDFromQuery(c *gin.Context) (int64, bool) {
	raw := c.Query("flow_id")
	if raw == "" {
		respondError(c, http.StatusBadRequest, "settings_invalid", "flow_id is required")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "settings_invalid", "flow_id must be an integer")
		return 0, false
	}
	return id, true
}

// handleRunFlow starts a run for flow_id and returns immediately: 202 with
// the record's current (pending/running) state, since a flow's execution
// time is unbounded and the normative polling path is GET /flow/run_status/.
// If a run for this flow is already in flight, it returns 202 with that
// run's state rather than starting a second concurrent run over the same
// graph.
func (s *Server) handleRunFlow(c *gin.Context) {
	flowID, ok := flowIDFromQuery(c)
	if !ok {
		return
	}

	g, ok := s.flows.Graph(flowID)
	if !ok {
		respondError(c, http.StatusNotFound, "file_missing", "flow not found")
		return
	}

	if rec, ok := s.flows.RunStatus(flowID); ok && rec.Status == models.RunStatusRunning {
		c.JSON(http.StatusAccepted, rec)
		return
	}

	if err := g.RecomputeFingerprints(); err != nil {
		respondError(c, http.StatusUnprocessableEntity, "graph_invariant_violation", err.Error())
		return
	}

	plan, err := planner.Build(g, nil)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "graph_invariant_violation", err.Error())
		return
	}

	record, token, ok := s.flows.StartRun(flowID)
	if !ok {
		respondError(c, http.StatusNotFound, "file_missing", "flow not found")
		return
	}

	deadline := s.config.Server.RunDeadline
	go func() {
		info, err := s.runner.Run(context.Background(), g, plan, token, deadline)
		if err != nil {
			record.Fail(err)
			s.logger.Error("flow run failed", "flow_id", flowID, "error", err)
			return
		}
		record.Complete(info)
	}()

	c.JSON(http.StatusAccepted, record)
}

// handleRunStatus reports the most recent run's record for flow_id, whether
// still in flight or terminal.
func (s *Server) handleRunStatus(c *gin.Context) {
	flowID, ok := flowIDFromQuery(c)
	if !ok {
		return
	}
	record, ok := s.flows.RunStatus(flowID)
	if !ok {
		respondError(c, http.StatusNotFound, "file_missing", "no run recorded for this flow")
		return
	}
	status := http.StatusOK
	if record.Status == models.RunStatusRunning {
		status = http.StatusAccepted
	}
	c.JSON(status, record)
}

// handleCancelFlow signals cooperative cancellation for flow_id's in-flight
// run via its CancelToken; per §4.4 this stops scheduling new nodes but lets
// already-dispatched ones finish.
func (s *Server) handleCancelFlow(c *gin.Context) {
	flowID, ok := flowIDFromQuery(c)
	if !ok {
		return
	}
	if !s.flows.Cancel(flowID) {
		respondError(c, http.StatusNotFound, "file_missing", "no active run for this flow")
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// handleFlowData returns the flow's current node-level schema and settings,
// the shape a UI client renders, by round-tripping the live graph through
// models.FromGraph.
func (s *Server) handleFlowData(c *gin.Context) {
	flowID, ok := flowIDFromQuery(c)
	if !ok {
		return
	}
	g, ok := s.flows.Graph(flowID)
	if !ok {
		respondError(c, http.StatusNotFound, "file_missing", "flow not found")
		return
	}
	name, _ := s.flows.Name(flowID)
	c.JSON(http.StatusOK, models.FromGraph(g, "2", name))
}

// handleImportFlow loads a flow file from flow_path, detects its format
// from the file extension, registers the resulting graph into the server's
// FlowRegistry and returns the assigned flow id. Pickle (.flowfile) files
// are rejected: the legacy compatibility pass they require belongs to the
// dataframe engine this core does not implement, per spec §1's non-goal on
// defining a new dataframe engine.
func (s *Server) handleImportFlow(c *gin.Context) {
	path := c.Query("flow_path")
	if path == "" {
		respondError(c, http.StatusBadRequest, "settings_invalid", "flow_path is required")
		return
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "flowfile" {
		respondError(c, http.StatusUnprocessableEntity, "settings_invalid", "legacy .flowfile (pickle) import is not supported")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		respondError(c, http.StatusNotFound, "file_missing", err.Error())
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "file_missing", err.Error())
		return
	}

	ff, err := models.ParseFlowFile(data, format)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "settings_invalid", err.Error())
		return
	}

	g, err := ff.ToGraph(s.config.Cache.Dir)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "graph_invariant_violation", err.Error())
		return
	}
	if g.FlowID == 0 {
		g.FlowID = s.flows.NextID()
	}

	flowID := s.flows.Put(ff.FlowfileName, g)
	c.JSON(http.StatusOK, gin.H{"flow_id": flowID})
}
