package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// dockerAPI is the slice of the Docker Engine client this package uses.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	NetworkInspect(ctx context.Context, networkID string, options network.InspectOptions) (network.Inspect, error)
	NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error
	NetworkConnect(ctx context.Context, networkID, containerID string, config *network.EndpointSettings) error
}

// DockerConfig configures the live controller.
type DockerConfig struct {
	// Network is the well-known network name tried first during resolution.
	Network string

	// KnownNodes seeds the synthetic topology if the daemon is unreachable.
	KnownNodes []string

	Logger *zap.Logger
}

// Docker drives the container runtime. The first operation that finds the
// daemon unreachable switches the controller to Synthetic Mode for the rest
// of its lifetime; the switch is never reversed.
type Docker struct {
	api     dockerAPI
	network string
	logger  *zap.Logger

	// syntheticSeed is the node set handed to the synthetic controller when
	// the daemon turns out to be unreachable.
	syntheticSeed []string

	checkOnce sync.Once
	mu        sync.RWMutex
	synthetic *Synthetic
	initErr   error
}

// NewDocker builds a controller against the local Docker daemon using the
// standard environment configuration. Client construction failure is not
// fatal: the controller starts and degrades on first use.
func NewDocker(cfg DockerConfig) *Docker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Docker{
		network: cfg.Network,
		logger:  logger,
	}
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		d.initErr = err
	} else {
		d.api = api
	}
	d.syntheticSeed = cfg.KnownNodes
	return d
}

// newDockerWithAPI is the test seam.
func newDockerWithAPI(api dockerAPI, networkName string, logger *zap.Logger) *Docker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Docker{api: api, network: networkName, logger: logger}
}

// pingTimeout bounds the one-time reachability check.
const pingTimeout = 5 * time.Second

// fallback performs the one-time reachability check and returns the
// synthetic controller if the daemon is (or was) unreachable. The check runs
// on its own context so a cancelled caller cannot poison the verdict.
func (d *Docker) fallback() *Synthetic {
	d.checkOnce.Do(func() {
		if d.api == nil {
			d.degrade(fmt.Errorf("docker client unavailable: %w", d.initErr))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		if _, err := d.api.Ping(ctx); err != nil {
			d.degrade(err)
		}
	})
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.synthetic
}

func (d *Docker) degrade(cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.synthetic != nil {
		return
	}
	d.logger.Warn("orchestrator unreachable, switching to synthetic mode permanently",
		zap.Error(cause))
	d.synthetic = NewSynthetic(d.syntheticSeed, d.network)
}

func (d *Docker) Mode() Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.synthetic != nil {
		return ModeSynthetic
	}
	return ModeLive
}

func (d *Docker) Stop(ctx context.Context, node string) error {
	if syn := d.fallback(); syn != nil {
		return syn.Stop(ctx, node)
	}
	if err := d.api.ContainerStop(ctx, node, container.StopOptions{}); err != nil {
		return fmt.Errorf("stop %s: %w", node, err)
	}
	d.logger.Info("node stopped", zap.String("node", node))
	return nil
}

func (d *Docker) Start(ctx context.Context, node string) error {
	if syn := d.fallback(); syn != nil {
		return syn.Start(ctx, node)
	}
	if err := d.api.ContainerStart(ctx, node, container.StartOptions{}); err != nil {
		return fmt.Errorf("start %s: %w", node, err)
	}
	d.logger.Info("node started", zap.String("node", node))
	return nil
}

func (d *Docker) Status(ctx context.Context, node string) (NodeStatus, error) {
	if syn := d.fallback(); syn != nil {
		return syn.Status(ctx, node)
	}
	insp, err := d.api.ContainerInspect(ctx, node)
	if err != nil {
		return NodeStatus{Node: node, State: StateUnknown}, fmt.Errorf("inspect %s: %w", node, err)
	}
	st := NodeStatus{Node: node, State: StateStopped}
	if insp.State != nil && insp.State.Running {
		st.State = StateRunning
	}
	if insp.NetworkSettings != nil {
		for name := range insp.NetworkSettings.Networks {
			st.Networks = append(st.Networks, name)
		}
	}
	return st, nil
}

func (d *Docker) Disconnect(ctx context.Context, node, networkName string) error {
	if syn := d.fallback(); syn != nil {
		return syn.Disconnect(ctx, node, networkName)
	}
	status, err := d.Status(ctx, node)
	if err != nil {
		return err
	}
	if !containsNetwork(status.Networks, networkName) {
		return nil
	}
	if err := d.api.NetworkDisconnect(ctx, networkName, node, true); err != nil {
		return fmt.Errorf("disconnect %s from %s: %w", node, networkName, err)
	}
	status, err = d.Status(ctx, node)
	if err != nil {
		return err
	}
	if containsNetwork(status.Networks, networkName) {
		return fmt.Errorf("%w: %s still lists network %s", ErrPartitionVerification, node, networkName)
	}
	d.logger.Info("node disconnected", zap.String("node", node), zap.String("network", networkName))
	return nil
}

func (d *Docker) Connect(ctx context.Context, node, networkName string) error {
	if syn := d.fallback(); syn != nil {
		return syn.Connect(ctx, node, networkName)
	}
	status, err := d.Status(ctx, node)
	if err != nil {
		return err
	}
	if containsNetwork(status.Networks, networkName) {
		return nil
	}
	if err := d.api.NetworkConnect(ctx, networkName, node, nil); err != nil {
		return fmt.Errorf("connect %s to %s: %w", node, networkName, err)
	}
	status, err = d.Status(ctx, node)
	if err != nil {
		return err
	}
	if !containsNetwork(status.Networks, networkName) {
		return fmt.Errorf("%w: %s does not list network %s after connect", ErrPartitionVerification, node, networkName)
	}
	d.logger.Info("node reconnected", zap.String("node", node), zap.String("network", networkName))
	return nil
}

func (d *Docker) Uptime(ctx context.Context, node string) (time.Duration, error) {
	if syn := d.fallback(); syn != nil {
		return syn.Uptime(ctx, node)
	}
	insp, err := d.api.ContainerInspect(ctx, node)
	if err != nil {
		return 0, fmt.Errorf("inspect %s: %w", node, err)
	}
	if insp.State == nil || insp.State.StartedAt == "" {
		return 0, fmt.Errorf("no start time recorded for %s", node)
	}
	started, err := time.Parse(time.RFC3339Nano, insp.State.StartedAt)
	if err != nil {
		return 0, fmt.Errorf("parse start time of %s: %w", node, err)
	}
	up := time.Since(started)
	if up < 0 {
		up = 0
	}
	return up, nil
}

func (d *Docker) ResolveNetwork(ctx context.Context, firstTarget string) (string, error) {
	if syn := d.fallback(); syn != nil {
		return syn.ResolveNetwork(ctx, firstTarget)
	}
	if d.network != "" {
		if _, err := d.api.NetworkInspect(ctx, d.network, network.InspectOptions{}); err == nil {
			return d.network, nil
		}
		d.logger.Warn("configured network not found, falling back to target memberships",
			zap.String("network", d.network))
	}
	status, err := d.Status(ctx, firstTarget)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetworkUnresolved, err)
	}
	if len(status.Networks) == 0 {
		return "", fmt.Errorf("%w: node %s has no network memberships", ErrNetworkUnresolved, firstTarget)
	}
	return status.Networks[0], nil
}

func containsNetwork(networks []string, name string) bool {
	for _, n := range networks {
		if n == name {
			return true
		}
	}
	return false
}
