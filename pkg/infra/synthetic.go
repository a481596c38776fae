package infra

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

type synthNode struct {
	running   bool
	networks  map[string]bool
	startedAt time.Time
}

// Synthetic simulates the orchestrator with an in-memory node table. It
// preserves the live controller's semantics (stop/start, membership
// verification) so scenarios behave identically in both modes; values it
// produces are plausible but non-authoritative.
type Synthetic struct {
	mu      sync.Mutex
	nodes   map[string]*synthNode
	network string
	rng     *rand.Rand
}

// NewSynthetic seeds the simulated topology: every known node running and
// attached to the well-known network, with a randomized uptime.
func NewSynthetic(nodes []string, network string) *Synthetic {
	s := &Synthetic{
		nodes:   make(map[string]*synthNode),
		network: network,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, n := range nodes {
		s.nodes[n] = s.freshNode()
	}
	return s
}

func (s *Synthetic) freshNode() *synthNode {
	uptime := time.Duration(1+s.rng.Intn(72)) * time.Hour
	networks := make(map[string]bool)
	if s.network != "" {
		networks[s.network] = true
	}
	return &synthNode{
		running:   true,
		networks:  networks,
		startedAt: time.Now().Add(-uptime),
	}
}

// node auto-creates unknown nodes so the simulation stays plausible for any
// target name a caller probes.
func (s *Synthetic) node(name string) *synthNode {
	n, ok := s.nodes[name]
	if !ok {
		n = s.freshNode()
		s.nodes[name] = n
	}
	return n
}

func (s *Synthetic) Stop(ctx context.Context, node string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.node(node).running = false
	return nil
}

func (s *Synthetic) Start(ctx context.Context, node string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.node(node)
	if !n.running {
		n.running = true
		n.startedAt = time.Now()
	}
	return nil
}

func (s *Synthetic) Status(ctx context.Context, node string) (NodeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.node(node)
	st := NodeStatus{Node: node, State: StateStopped}
	if n.running {
		st.State = StateRunning
	}
	for net := range n.networks {
		st.Networks = append(st.Networks, net)
	}
	return st, nil
}

func (s *Synthetic) Disconnect(ctx context.Context, node, network string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.node(node).networks, network)
	return nil
}

func (s *Synthetic) Connect(ctx context.Context, node, network string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.node(node).networks[network] = true
	return nil
}

func (s *Synthetic) Uptime(ctx context.Context, node string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.node(node)
	if !n.running {
		return 0, fmt.Errorf("node %s is not running", node)
	}
	return time.Since(n.startedAt), nil
}

func (s *Synthetic) ResolveNetwork(ctx context.Context, firstTarget string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.network != "" {
		return s.network, nil
	}
	for net := range s.node(firstTarget).networks {
		return net, nil
	}
	return "", ErrNetworkUnresolved
}

func (s *Synthetic) Mode() Mode { return ModeSynthetic }
