package kernel

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	networktypes "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// State is a kernel container's lifecycle state.
type State string

const (
	StateCreated  State = "CREATED"
	StateStarting State = "STARTING"
	StateIdle     State = "IDLE"
	StateBusy     State = "BUSY"
	StateStopped  State = "STOPPED"
	StateFailed   State = "FAILED"
)

// Kernel is the coordinator's record of one running kernel container.
type Kernel struct {
	ID          string
	State       State
	Port        int
	ContainerID string
	VolumePath  string
	OwnerUserID int64

	BaseURL string
}

// ContainerSpec configures the image and volume a kernel container is
// created from. The coordinator owns the rest (name, env, networking).
type ContainerSpec struct {
	Image          string
	Network        string
	Port           int           // container-internal port the kernel HTTP server listens on
	VolumeHostPath string        // shared-volume path bind-mounted for the artifact store
	VolumeMount    string        // mount point inside the container
	HealthTimeout  time.Duration // how long to poll /health before giving up
}

func (s ContainerSpec) withDefaults() ContainerSpec {
	if s.Port == 0 {
		s.Port = 8700
	}
	if s.VolumeMount == "" {
		s.VolumeMount = "/data"
	}
	if s.HealthTimeout == 0 {
		s.HealthTimeout = 30 * time.Second
	}
	return s
}

// Coordinator owns Docker-backed kernel container lifecycle: creation,
// start, health polling, and teardown. The host port is picked by
// freeTCPPort (a free local port) and bound explicitly to the container.
type Coordinator struct {
	docker *client.Client
}

// NewCoordinator wraps an already-configured Docker API client.
func NewCoordinator(docker *client.Client) *Coordinator {
	return &Coordinator{docker: docker}
}

// Launch creates and starts a kernel container, injecting the
// KERNEL_ID/PERSISTENCE_ENABLED/PERSISTENCE_PATH/RECOVERY_MODE
// environment variables the kernel process expects, then polls /health
// until it answers 200 or spec.HealthTimeout elapses.
func (c *Coordinator) Launch(ctx context.Context, kernelID string, spec ContainerSpec, persistenceEnabled, recoveryMode bool) (*Kernel, error) {
	spec = spec.withDefaults()

	hostPort, err := freeTCPPort()
	if err != nil {
		return nil, fmt.Errorf("kernel: allocate host port: %w", err)
	}

	env := []string{
		"KERNEL_ID=" + kernelID,
		"PERSISTENCE_ENABLED=" + strconv.FormatBool(persistenceEnabled),
		"PERSISTENCE_PATH=" + spec.VolumeMount,
		"RECOVERY_MODE=" + strconv.FormatBool(recoveryMode),
	}

	containerPort := nat.Port(fmt.Sprintf("%d/tcp", spec.Port))
	cfg := containertypes.Config{
		Image: spec.Image,
		Env:   env,
		ExposedPorts: nat.PortSet{
			containerPort: {},
		},
	}
	hostCfg := containertypes.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: {{HostIP: "127.0.0.1", HostPort: strconv.Itoa(hostPort)}},
		},
	}
	if spec.VolumeHostPath != "" {
		hostCfg.Binds = []string{spec.VolumeHostPath + ":" + spec.VolumeMount}
	}

	netCfg := &networktypes.NetworkingConfig{}
	if spec.Network != "" {
		netCfg.EndpointsConfig = map[string]*networktypes.EndpointSettings{spec.Network: {}}
	}

	name := "flowfile-kernel-" + kernelID
	resp, err := c.docker.ContainerCreate(ctx, &cfg, &hostCfg, netCfg, &ocispec.Platform{}, name)
	if err != nil {
		return nil, fmt.Errorf("kernel: create container: %w", err)
	}

	k := &Kernel{ID: kernelID, State: StateStarting, ContainerID: resp.ID, Port: hostPort, VolumePath: spec.VolumeHostPath}
	k.BaseURL = fmt.Sprintf("http://127.0.0.1:%d", hostPort)

	if err := c.docker.ContainerStart(ctx, resp.ID, containertypes.StartOptions{}); err != nil {
		k.State = StateFailed
		return k, fmt.Errorf("kernel: start container: %w", err)
	}

	if err := waitHealthy(ctx, k.BaseURL, spec.HealthTimeout); err != nil {
		k.State = StateFailed
		return k, err
	}
	k.State = StateIdle
	return k, nil
}

// Teardown stops and removes a kernel container.
func (c *Coordinator) Teardown(ctx context.Context, k *Kernel) error {
	if k.ContainerID == "" {
		return nil
	}
	timeout := 5
	if err := c.docker.ContainerStop(ctx, k.ContainerID, containertypes.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("kernel: stop container %s: %w", k.ContainerID, err)
	}
	if err := c.docker.ContainerRemove(ctx, k.ContainerID, containertypes.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("kernel: remove container %s: %w", k.ContainerID, err)
	}
	k.State = StateStopped
	return nil
}

// PullImage pulls imageRef on every call, without checking for a local
// copy first, draining the pull's progress stream without surfacing it.
func (c *Coordinator) PullImage(ctx context.Context, imageRef string) error {
	reader, err := c.docker.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("kernel: pull image %s: %w", imageRef, err)
	}
	defer reader.Close()
	buf := make([]byte, 4096)
	for {
		if _, err := reader.Read(buf); err != nil {
			break
		}
	}
	return nil
}

func waitHealthy(ctx context.Context, baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	httpClient := &http.Client{Timeout: 2 * time.Second}
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
		resp, err := httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("kernel: health check did not pass within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func freeTCPPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
