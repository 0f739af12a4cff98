package kernel

import (
	"fmt"
	"sync"
	"time"
)

// ArtifactRef is a metadata reference to an artifact published by a
// python_script node. The object itself stays in the kernel container's
// own store; the core only ever sees this.
type ArtifactRef struct {
	Name         string
	SourceNodeID int64
	KernelID     string
	TypeName     string
	Module       string
	SizeBytes    int64
	CreatedAt    time.Time
}

// nodeArtifactState is one node's view of the artifact world: what it
// published, what was available to it, what it read, what it deleted.
type nodeArtifactState struct {
	published []ArtifactRef
	available map[string]ArtifactRef
	consumed  []string
	deleted   []string
}

// ErrArtifactAlreadyExists is returned by RecordPublished when a node
// republishes a name within the same run without an intervening delete.
var ErrArtifactAlreadyExists = fmt.Errorf("kernel: artifact already exists")

// ArtifactContext tracks artifact availability across the flow graph. It
// is metadata-only: actual Python objects stay inside the kernel
// container's artifact store, reached only via the HTTP protocol in
// client.go.
type ArtifactContext struct {
	mu sync.Mutex

	nodeStates map[int64]*nodeArtifactState
	kernels    map[string]map[string]ArtifactRef // kernel_id -> name -> ref

	// publisherIndex mirrors artifacts.py's reverse index: (kernel_id,
	// name) -> set of node ids that published it. Avoids an O(n) scan
	// over every node's published list on delete.
	publisherIndex map[kernelArtifactKey]map[int64]struct{}
}

type kernelArtifactKey struct {
	kernelID string
	name     string
}

// NewArtifactContext returns an empty tracker.
func NewArtifactContext() *ArtifactContext {
	return &ArtifactContext{
		nodeStates:     make(map[int64]*nodeArtifactState),
		kernels:        make(map[string]map[string]ArtifactRef),
		publisherIndex: make(map[kernelArtifactKey]map[int64]struct{}),
	}
}

func (ac *ArtifactContext) stateFor(nodeID int64) *nodeArtifactState {
	s, ok := ac.nodeStates[nodeID]
	if !ok {
		s = &nodeArtifactState{available: make(map[string]ArtifactRef)}
		ac.nodeStates[nodeID] = s
	}
	return s
}

// RecordPublished records the artifacts a node published on a kernel
// during one /execute call. withinCallDeletes holds names deleted by the
// same call, so a publish-after-delete in one call does not trip
// ErrArtifactAlreadyExists.
func (ac *ArtifactContext) RecordPublished(nodeID int64, kernelID string, names []string, withinCallDeletes map[string]bool) ([]ArtifactRef, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	state := ac.stateFor(nodeID)
	kernelMap := ac.kernels[kernelID]
	if kernelMap == nil {
		kernelMap = make(map[string]ArtifactRef)
		ac.kernels[kernelID] = kernelMap
	}

	refs := make([]ArtifactRef, 0, len(names))
	for _, name := range names {
		if _, exists := kernelMap[name]; exists && !withinCallDeletes[name] {
			return nil, fmt.Errorf("%w: node %d name %q on kernel %s", ErrArtifactAlreadyExists, nodeID, name, kernelID)
		}
		ref := ArtifactRef{Name: name, SourceNodeID: nodeID, KernelID: kernelID, CreatedAt: time.Now()}
		refs = append(refs, ref)
		state.published = append(state.published, ref)
		kernelMap[name] = ref

		key := kernelArtifactKey{kernelID, name}
		set := ac.publisherIndex[key]
		if set == nil {
			set = make(map[int64]struct{})
			ac.publisherIndex[key] = set
		}
		set[nodeID] = struct{}{}
	}
	return refs, nil
}

// RecordConsumed records that a node read the given artifact names.
func (ac *ArtifactContext) RecordConsumed(nodeID int64, names []string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	state := ac.stateFor(nodeID)
	state.consumed = append(state.consumed, names...)
}

// RecordDeleted records that a node deleted artifacts from a kernel,
// removing them from the kernel index and from the publishing nodes'
// published lists (found via the reverse index).
func (ac *ArtifactContext) RecordDeleted(nodeID int64, kernelID string, names []string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	state := ac.stateFor(nodeID)
	state.deleted = append(state.deleted, names...)

	kernelMap := ac.kernels[kernelID]
	for _, name := range names {
		if kernelMap != nil {
			delete(kernelMap, name)
		}
		key := kernelArtifactKey{kernelID, name}
		publishers := ac.publisherIndex[key]
		delete(ac.publisherIndex, key)
		for pid := range publishers {
			ps := ac.nodeStates[pid]
			if ps == nil {
				continue
			}
			kept := ps.published[:0]
			for _, r := range ps.published {
				if !(r.KernelID == kernelID && r.Name == name) {
					kept = append(kept, r)
				}
			}
			ps.published = kept
		}
	}
}

// ReExecuteClearsOwn clears only the artifacts previously published by
// nodeID on kernelID, leaving every other node's artifacts untouched, per
// §4.6's re-execution invariant. Call this before a node's retry/rerun.
func (ac *ArtifactContext) ReExecuteClearsOwn(nodeID int64, kernelID string) {
	ac.mu.Lock()
	state := ac.nodeStates[nodeID]
	var own []string
	if state != nil {
		for _, r := range state.published {
			if r.KernelID == kernelID {
				own = append(own, r.Name)
			}
		}
	}
	ac.mu.Unlock()

	if len(own) > 0 {
		ac.RecordDeleted(nodeID, kernelID, own)
	}
}

// ComputeAvailable computes the artifacts visible to nodeID: those
// published by any ancestor (direct or transitive, supplied by the
// caller as upstreamNodeIDs) on the same kernelID and not subsequently
// deleted along that path — which RecordDeleted already enforces by
// removing the entry from the publisher's own published list.
func (ac *ArtifactContext) ComputeAvailable(nodeID int64, kernelID string, upstreamNodeIDs []int64) map[string]ArtifactRef {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	available := make(map[string]ArtifactRef)
	for _, uid := range upstreamNodeIDs {
		upstream := ac.nodeStates[uid]
		if upstream == nil {
			continue
		}
		for _, ref := range upstream.published {
			if ref.KernelID == kernelID {
				available[ref.Name] = ref
			}
		}
	}
	ac.stateFor(nodeID).available = available
	return available
}

// AvailableFor returns the last-computed availability map for nodeID.
func (ac *ArtifactContext) AvailableFor(nodeID int64) map[string]ArtifactRef {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	state := ac.nodeStates[nodeID]
	if state == nil {
		return nil
	}
	out := make(map[string]ArtifactRef, len(state.available))
	for k, v := range state.available {
		out[k] = v
	}
	return out
}

// PublishedBy returns the artifacts published by nodeID.
func (ac *ArtifactContext) PublishedBy(nodeID int64) []ArtifactRef {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	state := ac.nodeStates[nodeID]
	if state == nil {
		return nil
	}
	out := make([]ArtifactRef, len(state.published))
	copy(out, state.published)
	return out
}

// ClearKernel drops all tracking for one kernel, used when a kernel
// container is torn down or recreated.
func (ac *ArtifactContext) ClearKernel(kernelID string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	for key := range ac.publisherIndex {
		if key.kernelID == kernelID {
			delete(ac.publisherIndex, key)
		}
	}
	delete(ac.kernels, kernelID)
	for _, state := range ac.nodeStates {
		kept := state.published[:0]
		for _, r := range state.published {
			if r.KernelID != kernelID {
				kept = append(kept, r)
			}
		}
		state.published = kept
		for name, ref := range state.available {
			if ref.KernelID == kernelID {
				delete(state.available, name)
			}
		}
	}
}
