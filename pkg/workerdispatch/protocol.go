// Package workerdispatch implements the core's client side of the
// streaming WebSocket protocol to the out-of-process worker pool (C5): the
// frame sequence, back-pressure, and disconnect/recovery semantics of
// §4.5. The worker process itself — the dataframe materialisation it
// performs — is an external collaborator out of this package's scope.
package workerdispatch

import "errors"

// Operation identifies what the worker should do with the submitted plan.
type Operation string

const (
	OpStore                   Operation = "store"
	OpStoreSample             Operation = "store_sample"
	OpCalculateSchema         Operation = "calculate_schema"
	OpCalculateNumberOfRecords Operation = "calculate_number_of_records"
	OpFuzzyMatch              Operation = "fuzzy_match"
	OpCreateTable             Operation = "create_table"
	OpWriteOutput             Operation = "write_output"
)

// MetadataFrame is the first client→worker frame of a task, per §4.5 step 1.
type MetadataFrame struct {
	TaskID    string                 `json:"task_id"`
	Operation Operation              `json:"operation"`
	FlowID    int64                  `json:"flow_id"`
	NodeID    int64                  `json:"node_id"`
	Kwargs    map[string]interface{} `json:"kwargs,omitempty"`
}

// controlFrame is a client→worker out-of-band message; currently only used
// to propagate cancellation (§4.4/§5's "WebSocket cancel message").
type controlFrame struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

// progressFrame is a worker→client frame, coalesced to ≤~3Hz by the worker.
type progressFrame struct {
	Type     string `json:"type"`
	Progress int    `json:"progress"`
}

// completeFrame is the worker's terminal success frame.
type completeFrame struct {
	Type       string `json:"type"`
	ResultType string `json:"result_type"` // "polars" | "other"
	FileRef    string `json:"file_ref"`
	HasResult  bool   `json:"has_result"`
}

// resultDataFrame follows a completeFrame when ResultType != "polars" or
// HasResult is false.
type resultDataFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// errorFrame is the worker's terminal failure frame.
type errorFrame struct {
	Type         string `json:"type"`
	ErrorMessage string `json:"error_message"`
}

// envelope is used only to sniff the `type` discriminator before deciding
// which concrete frame to unmarshal into.
type envelope struct {
	Type string `json:"type"`
}

// ErrWorkerAtCapacity is returned when the worker's back-pressure semaphore
// rejects a submission after the 30s wait described in §4.5; the scheduler
// treats this as a node failure with ordinary retry semantics (§7).
var ErrWorkerAtCapacity = errors.New("workerdispatch: worker at capacity")

// TaskResult is what Submit returns on a completeFrame.
type TaskResult struct {
	TaskID     string
	ResultType string
	FileRef    string
	Payload    []byte      // raw bytes, set when ResultType == "polars" && HasResult
	Data       interface{} // decoded JSON, set otherwise
}
