// Package infra controls the container infrastructure the two store clusters
// run on: stopping and starting nodes, detaching them from networks, and
// reading their status. When the Docker daemon is unreachable at first use
// the controller permanently degrades to Synthetic Mode and serves plausible
// simulated values tagged as non-authoritative.
package infra

import (
	"context"
	"errors"
	"time"
)

// State is a node's run state as reported by the orchestrator.
type State int

const (
	StateUnknown State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Mode distinguishes authoritative results from simulated ones.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSynthetic Mode = "synthetic"
)

// NodeStatus is read on demand and never cached across ticks.
type NodeStatus struct {
	Node     string   `json:"node"`
	State    State    `json:"-"`
	Networks []string `json:"networks"`
}

var (
	// ErrNetworkUnresolved means neither the configured network name nor the
	// first target's memberships produced a usable network identifier.
	ErrNetworkUnresolved = errors.New("network could not be resolved")

	// ErrPartitionVerification means a disconnect/connect call returned but
	// the node's memberships do not reflect it.
	ErrPartitionVerification = errors.New("partition verification failed")
)

// Controller is the orchestrator surface the scenario runner consumes.
type Controller interface {
	Stop(ctx context.Context, node string) error
	Start(ctx context.Context, node string) error
	Status(ctx context.Context, node string) (NodeStatus, error)

	// Disconnect detaches the node from the network and verifies the node no
	// longer lists it. Idempotent: detaching an already-detached node is a
	// no-op.
	Disconnect(ctx context.Context, node, network string) error

	// Connect is the symmetric restore operation, with the same verification.
	Connect(ctx context.Context, node, network string) error

	// Uptime reports how long the node has been up since its last start.
	Uptime(ctx context.Context, node string) (time.Duration, error)

	// ResolveNetwork picks the network to partition: the configured
	// well-known name if it exists, otherwise the first network the given
	// node is a member of. Both failing returns ErrNetworkUnresolved.
	ResolveNetwork(ctx context.Context, firstTarget string) (string, error)

	// Mode reports whether results are authoritative (live) or simulated.
	Mode() Mode
}
