package workerdispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// SubmitRequest is one task's worth of client→worker input.
type SubmitRequest struct {
	TaskID     string
	Operation  Operation
	FlowID     int64
	NodeID     int64
	Kwargs     map[string]interface{}
	Plan       [][]byte // one binary frame normally, two for fuzzy_match
	OnProgress func(percent int)
}

// Client submits tasks to the worker over the streaming protocol of §4.5.
type Client struct {
	Dialer    *Dialer
	Semaphore *Semaphore
}

// NewClient returns a Client with the spec's default back-pressure
// parameters (capacity 4, 30s acquire wait).
func NewClient() *Client {
	return &Client{Dialer: NewDialer(), Semaphore: NewSemaphore(4, 30*time.Second)}
}

// Submit dials url, runs the task to completion, and closes the connection.
func (c *Client) Submit(ctx context.Context, url string, req SubmitRequest) (*TaskResult, error) {
	release, err := c.Semaphore.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	conn, err := c.Dialer.Dial(url)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return c.SubmitOn(ctx, conn, req)
}

// SubmitOn runs the task over an already-open connection — split out from
// Submit so the frame-sequencing logic is testable against a fake wsConn.
func (c *Client) SubmitOn(ctx context.Context, conn wsConn, req SubmitRequest) (*TaskResult, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteJSON(controlFrame{Type: "cancel", TaskID: req.TaskID})
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(MetadataFrame{
		TaskID:    req.TaskID,
		Operation: req.Operation,
		FlowID:    req.FlowID,
		NodeID:    req.NodeID,
		Kwargs:    req.Kwargs,
	}); err != nil {
		return nil, fmt.Errorf("workerdispatch: write metadata frame: %w", err)
	}

	for _, plan := range req.Plan {
		if err := conn.WriteMessage(websocket.BinaryMessage, plan); err != nil {
			return nil, fmt.Errorf("workerdispatch: write plan frame: %w", err)
		}
	}

	var result *TaskResult
	awaitingPayload := false

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("workerdispatch: read frame: %w", err)
		}

		if mt == websocket.BinaryMessage {
			if !awaitingPayload || result == nil {
				return nil, fmt.Errorf("workerdispatch: unexpected binary frame")
			}
			result.Payload = data
			return result, nil
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("workerdispatch: decode frame: %w", err)
		}

		switch env.Type {
		case "progress":
			var pf progressFrame
			if err := json.Unmarshal(data, &pf); err != nil {
				return nil, fmt.Errorf("workerdispatch: decode progress frame: %w", err)
			}
			if req.OnProgress != nil {
				req.OnProgress(pf.Progress)
			}
		case "complete":
			var cf completeFrame
			if err := json.Unmarshal(data, &cf); err != nil {
				return nil, fmt.Errorf("workerdispatch: decode complete frame: %w", err)
			}
			result = &TaskResult{TaskID: req.TaskID, ResultType: cf.ResultType, FileRef: cf.FileRef}
			if cf.ResultType == "polars" && cf.HasResult {
				awaitingPayload = true
				continue
			}
			// Non-polars or no-payload results arrive as a trailing
			// result_data frame instead of a binary one.
		case "result_data":
			if result == nil {
				return nil, fmt.Errorf("workerdispatch: result_data frame before complete")
			}
			var rdf resultDataFrame
			if err := json.Unmarshal(data, &rdf); err != nil {
				return nil, fmt.Errorf("workerdispatch: decode result_data frame: %w", err)
			}
			result.Data = rdf.Data
			return result, nil
		case "error":
			var ef errorFrame
			if err := json.Unmarshal(data, &ef); err != nil {
				return nil, fmt.Errorf("workerdispatch: decode error frame: %w", err)
			}
			return nil, fmt.Errorf("worker task %s failed: %s", req.TaskID, ef.ErrorMessage)
		default:
			return nil, fmt.Errorf("workerdispatch: unknown frame type %q", env.Type)
		}
	}
}
