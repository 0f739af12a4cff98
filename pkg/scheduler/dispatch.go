package scheduler

import (
	"context"
	"errors"

	"github.com/smilemakc/flowfile/pkg/fingerprint"
	"github.com/smilemakc/flowfile/pkg/graph"
)

// ErrKernelUnhealthy is the §7 KernelUnhealthy error class: a node requires
// the kernel backend but no Kernel dispatcher is configured.
var ErrKernelUnhealthy = errors.New("scheduler: kernel dispatcher unavailable")

// unhealthyDispatcher fails every dispatch with a fixed error, standing in
// for a backend Route could not find so executeNode never calls Dispatch on
// a nil Dispatcher.
type unhealthyDispatcher struct{ err error }

func (u unhealthyDispatcher) Dispatch(context.Context, *graph.Node, []Input) (fingerprint.Entry, error) {
	return fingerprint.Entry{}, u.err
}

// Input is one predecessor's resolved result, handed to a dispatcher so it
// can compose or materialise N's operation.
type Input struct {
	NodeID      int64
	Fingerprint string
	Result      fingerprint.Entry
}

// Dispatcher executes one node's operation out-of-process (worker pool,
// kernel) or composes it in-process (pure lazy transform) and returns the
// sealed result. Concrete transform logic lives outside the core; this
// interface is the boundary pkg/workerdispatch and pkg/kernel implement.
type Dispatcher interface {
	Dispatch(ctx context.Context, node *graph.Node, inputs []Input) (fingerprint.Entry, error)
}

// Dispatchers groups the three backends the scheduler routes to by kind.
// Any of the three may be nil; Route falls back to Worker when Lazy is
// unset, since a worker can always materialise what a lazy composer would
// have deferred.
type Dispatchers struct {
	Lazy   Dispatcher
	Worker Dispatcher
	Kernel Dispatcher
}

// Route implements §4.4 step 4's dispatch-by-kind decision: python_script
// always goes to the kernel; heavy operations and anything that must
// materialise (development mode, or cache_results=true) go to the worker
// pool; everything else composes lazily in-process.
func (d Dispatchers) Route(node *graph.Node, settings graph.FlowSettings) Dispatcher {
	switch {
	case graph.RequiresKernel(node.Kind):
		if d.Kernel == nil {
			return unhealthyDispatcher{ErrKernelUnhealthy}
		}
		return d.Kernel
	case graph.RequiresWorker(node.Kind):
		return d.Worker
	case settings.ExecutionMode == graph.ExecutionModeDevelopment || node.CacheResults:
		if d.Worker != nil {
			return d.Worker
		}
		return d.Lazy
	default:
		if d.Lazy != nil {
			return d.Lazy
		}
		return d.Worker
	}
}
