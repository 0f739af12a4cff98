package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	NodeID     int64    `json:"node_id"`
	Code       string   `json:"code"`
	InputPaths []string `json:"input_paths"`
	OutputDir  string   `json:"output_dir"`
	Available  []string `json:"available_artifacts,omitempty"`
}

// ExecuteResponse is the body of POST /execute's reply.
type ExecuteResponse struct {
	Success            bool     `json:"success"`
	Stdout             string   `json:"stdout"`
	Stderr             string   `json:"stderr"`
	Error              string   `json:"error"`
	ExecutionTimeMS    int64    `json:"execution_time_ms"`
	ArtifactsPublished []string `json:"artifacts_published"`
	ArtifactsDeleted   []string `json:"artifacts_deleted"`
	OutputPaths        []string `json:"output_paths"`
}

// RecoveryStatus is the body of POST /recover's reply.
type RecoveryStatus struct {
	Status    string   `json:"status"`
	Mode      string   `json:"mode"`
	Recovered []string `json:"recovered"`
	Errors    []string `json:"errors"`
}

// CleanupRequest is the body of POST /cleanup.
type CleanupRequest struct {
	MaxAgeHours   *float64 `json:"max_age_hours,omitempty"`
	ArtifactNames []string `json:"artifact_names,omitempty"`
}

// CleanupResponse is the body of POST /cleanup's reply.
type CleanupResponse struct {
	RemovedCount int `json:"removed_count"`
}

// PersistenceStatus is the body of GET /persistence's reply.
type PersistenceStatus struct {
	Enabled        bool                          `json:"enabled"`
	RecoveryMode   bool                          `json:"recovery_mode"`
	PersistedCount int                           `json:"persisted_count"`
	InMemoryCount  int                           `json:"in_memory_count"`
	DiskUsageBytes int64                         `json:"disk_usage_bytes"`
	Artifacts      map[string]PersistenceArtifact `json:"artifacts"`
}

// PersistenceArtifact is one artifact's residency within PersistenceStatus.
type PersistenceArtifact struct {
	Persisted bool `json:"persisted"`
	InMemory  bool `json:"in_memory"`
}

// artifactMetadata is the shape returned by GET /artifacts.
type artifactMetadata struct {
	TypeName  string `json:"type_name"`
	Module    string `json:"module"`
	SizeBytes int64  `json:"size_bytes"`
}

// ProtocolClient speaks the core<->kernel HTTP+JSON protocol of §4.6
// against one kernel's BaseURL.
type ProtocolClient struct {
	HTTP *http.Client
}

// NewProtocolClient returns a client with a conservative default timeout;
// Execute overrides it per-call since user code may run arbitrarily long.
func NewProtocolClient() *ProtocolClient {
	return &ProtocolClient{HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// Execute runs POST /execute against k, honouring ctx cancellation (the
// kernel aborts the HTTP call; long-running user code is interrupted
// best-effort per §5).
func (c *ProtocolClient) Execute(ctx context.Context, k *Kernel, req ExecuteRequest) (*ExecuteResponse, error) {
	httpClient := *c.HTTP
	httpClient.Timeout = 0
	unbounded := &ProtocolClient{HTTP: &httpClient}
	var out ExecuteResponse
	if err := unbounded.postJSON(ctx, k.BaseURL+"/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health runs GET /health. A non-2xx or transport error reports the
// kernel as unreachable.
func (c *ProtocolClient) Health(ctx context.Context, k *Kernel) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("kernel: health check %s: %w", k.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kernel: health check %s returned %d", k.ID, resp.StatusCode)
	}
	return nil
}

// Artifacts runs GET /artifacts, returning the kernel's own view of its
// artifact index (name -> metadata), independent of the core's
// ArtifactContext tracking.
func (c *ProtocolClient) Artifacts(ctx context.Context, k *Kernel) (map[string]artifactMetadata, error) {
	var out map[string]artifactMetadata
	if err := c.getJSON(ctx, k.BaseURL+"/artifacts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Recover runs POST /recover, triggering the kernel's lazy-recovery index
// rebuild after a restart.
func (c *ProtocolClient) Recover(ctx context.Context, k *Kernel) (*RecoveryStatus, error) {
	var out RecoveryStatus
	if err := c.postJSON(ctx, k.BaseURL+"/recover", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cleanup runs POST /cleanup.
func (c *ProtocolClient) Cleanup(ctx context.Context, k *Kernel, req CleanupRequest) (*CleanupResponse, error) {
	var out CleanupResponse
	if err := c.postJSON(ctx, k.BaseURL+"/cleanup", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Persistence runs GET /persistence.
func (c *ProtocolClient) Persistence(ctx context.Context, k *Kernel) (*PersistenceStatus, error) {
	var out PersistenceStatus
	if err := c.getJSON(ctx, k.BaseURL+"/persistence", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Clear runs POST /clear, wiping the kernel's memory and disk state.
func (c *ProtocolClient) Clear(ctx context.Context, k *Kernel) error {
	return c.postJSON(ctx, k.BaseURL+"/clear", struct{}{}, nil)
}

func (c *ProtocolClient) postJSON(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("kernel: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("kernel: request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("kernel: %s returned status %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *ProtocolClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("kernel: request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("kernel: %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
