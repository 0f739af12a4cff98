package server

import (
	"github.com/docker/docker/client"

	"github.com/smilemakc/flowfile/internal/config"
	"github.com/smilemakc/flowfile/pkg/executor"
	"github.com/smilemakc/flowfile/pkg/executor/builtin"
	"github.com/smilemakc/flowfile/pkg/kernel"
	"github.com/smilemakc/flowfile/pkg/scheduler"
	"github.com/smilemakc/flowfile/pkg/workerdispatch"
)

// NewDefaultDispatchers wires the scheduler's three backends from cfg: a
// builtin-composer Lazy dispatcher that never leaves the process, a
// WorkerDispatcher talking the §4.5 WebSocket protocol, and a kernel
// Dispatcher per §4.6. The Docker daemon is not contacted here: the kernel
// backend is left nil only when the Docker client cannot be constructed
// from cfg, rather than failing server startup, since a flow with no
// python_script nodes never needs it.
func NewDefaultDispatchers(cfg *config.Config) (scheduler.Dispatchers, func(), error) {
	reg := executor.NewRegistry()
	if err := builtin.RegisterBuiltins(reg); err != nil {
		return scheduler.Dispatchers{}, func() {}, err
	}
	lazy := executor.NewLazyDispatcher(reg)

	worker := workerdispatch.NewWorkerDispatcher(cfg.Worker.URL)

	dispatchers := scheduler.Dispatchers{Lazy: lazy, Worker: worker}
	cleanup := func() {}

	docker, err := client.NewClientWithOpts(
		client.WithHost(cfg.Kernel.DockerHost),
		client.WithVersion(cfg.Kernel.DockerAPIVer),
	)
	if err == nil {
		coordinator := kernel.NewCoordinator(docker)
		pool := kernel.NewPool(coordinator, kernel.ContainerSpec{
			Image:          cfg.Kernel.DefaultImage,
			VolumeHostPath: cfg.Cache.SharedVolume,
			HealthTimeout:  cfg.Kernel.HealthTimeout,
		})
		artifacts := kernel.NewArtifactContext()
		dispatchers.Kernel = kernel.NewDispatcher(pool, artifacts, nil)
		cleanup = func() { _ = docker.Close() }
	}

	return dispatchers, cleanup, nil
}
