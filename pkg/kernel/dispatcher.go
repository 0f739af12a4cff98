package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/smilemakc/flowfile/pkg/fingerprint"
	"github.com/smilemakc/flowfile/pkg/graph"
	"github.com/smilemakc/flowfile/pkg/scheduler"
)

// Pool owns the set of live kernel containers for one flow run, keyed by
// kernel_id (settings["kernel_id"], defaulting to a single shared kernel
// per flow when a node does not name one).
type Pool struct {
	mu          sync.Mutex
	coordinator *Coordinator
	spec        ContainerSpec
	kernels     map[string]*Kernel
}

// NewPool returns a pool that lazily launches kernels on first use.
func NewPool(coordinator *Coordinator, spec ContainerSpec) *Pool {
	return &Pool{coordinator: coordinator, spec: spec, kernels: make(map[string]*Kernel)}
}

// Get returns the kernel for kernelID, launching a container for it if
// this is the first reference this run.
func (p *Pool) Get(ctx context.Context, kernelID string) (*Kernel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if k, ok := p.kernels[kernelID]; ok {
		return k, nil
	}
	k, err := p.coordinator.Launch(ctx, kernelID, p.spec, true, false)
	if err != nil {
		return nil, err
	}
	p.kernels[kernelID] = k
	return k, nil
}

// TeardownAll stops and removes every kernel this pool launched.
func (p *Pool) TeardownAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for id, k := range p.kernels {
		if err := p.coordinator.Teardown(ctx, k); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.kernels, id)
	}
	return firstErr
}

// Dispatcher adapts the kernel protocol to scheduler.Dispatcher for
// python_script nodes. It resolves kernel_id from node settings, computes
// the node's artifact availability set from its ancestors, runs
// POST /execute, and records what the node published/deleted in
// Artifacts.
type Dispatcher struct {
	Pool      *Pool
	Client    *ProtocolClient
	Artifacts *ArtifactContext

	// Ancestors returns node's full set of direct-or-transitive
	// predecessors, used to compute artifact availability. Supplied by
	// the caller (scheduler has the dependency graph; this package does
	// not depend on pkg/planner to avoid a cycle).
	Ancestors func(nodeID int64) []int64

	// OutputDir names the directory the kernel writes output files into;
	// defaults to filepath.Join("/tmp", "flowfile-kernel", kernelID) when
	// unset.
	OutputDir string
}

// NewDispatcher wires a Pool and ArtifactContext into a scheduler.Dispatcher.
func NewDispatcher(pool *Pool, artifacts *ArtifactContext, ancestors func(int64) []int64) *Dispatcher {
	return &Dispatcher{Pool: pool, Client: NewProtocolClient(), Artifacts: artifacts, Ancestors: ancestors}
}

// Dispatch implements scheduler.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, node *graph.Node, inputs []scheduler.Input) (fingerprint.Entry, error) {
	kernelID, _ := node.Settings["kernel_id"].(string)
	if kernelID == "" {
		kernelID = "default"
	}

	k, err := d.Pool.Get(ctx, kernelID)
	if err != nil {
		return fingerprint.Entry{}, fmt.Errorf("kernel: acquire kernel %s for node %d: %w", kernelID, node.ID, err)
	}

	var upstream []int64
	if d.Ancestors != nil {
		upstream = d.Ancestors(node.ID)
	}
	available := d.Artifacts.ComputeAvailable(node.ID, kernelID, upstream)
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}

	code, _ := node.Settings["code"].(string)
	inputPaths := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if in.Result.FilePath != "" {
			inputPaths = append(inputPaths, in.Result.FilePath)
		}
	}

	outputDir := d.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join("/tmp", "flowfile-kernel", kernelID)
	}

	resp, err := d.Client.Execute(ctx, k, ExecuteRequest{
		NodeID:     node.ID,
		Code:       code,
		InputPaths: inputPaths,
		OutputDir:  outputDir,
		Available:  names,
	})
	if err != nil {
		return fingerprint.Entry{}, fmt.Errorf("kernel: execute node %d on %s: %w", node.ID, kernelID, err)
	}
	if !resp.Success {
		return fingerprint.Entry{}, fmt.Errorf("kernel: node %d failed: %s", node.ID, resp.Error)
	}

	deletedSet := make(map[string]bool, len(resp.ArtifactsDeleted))
	for _, name := range resp.ArtifactsDeleted {
		deletedSet[name] = true
	}
	d.Artifacts.RecordDeleted(node.ID, kernelID, resp.ArtifactsDeleted)
	if len(resp.ArtifactsPublished) > 0 {
		if _, err := d.Artifacts.RecordPublished(node.ID, kernelID, resp.ArtifactsPublished, deletedSet); err != nil {
			return fingerprint.Entry{}, err
		}
	}

	entry := fingerprint.Entry{Kind: fingerprint.ResultExternalRef}
	if len(resp.OutputPaths) > 0 {
		entry.Kind = fingerprint.ResultMaterialisedTable
		entry.FilePath = resp.OutputPaths[0]
	} else {
		b, _ := json.Marshal(resp.OutputPaths)
		entry.ExternalRef = string(b)
	}
	return entry, nil
}
