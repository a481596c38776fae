package infra

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSyntheticStopStart(t *testing.T) {
	s := NewSynthetic([]string{"mongo1"}, "dbnet")
	ctx := context.Background()

	st, err := s.Status(ctx, "mongo1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.State != StateRunning {
		t.Fatalf("expected running, got %v", st.State)
	}

	if err := s.Stop(ctx, "mongo1"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	st, _ = s.Status(ctx, "mongo1")
	if st.State != StateStopped {
		t.Errorf("expected stopped, got %v", st.State)
	}
	if _, err := s.Uptime(ctx, "mongo1"); err == nil {
		t.Error("expected uptime error for stopped node")
	}

	if err := s.Start(ctx, "mongo1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	up, err := s.Uptime(ctx, "mongo1")
	if err != nil {
		t.Fatalf("Uptime failed: %v", err)
	}
	if up > time.Minute {
		t.Errorf("restarted node should have a fresh uptime, got %v", up)
	}
}

func TestSyntheticDisconnectConnect(t *testing.T) {
	s := NewSynthetic([]string{"cassandra1"}, "dbnet")
	ctx := context.Background()

	if err := s.Disconnect(ctx, "cassandra1", "dbnet"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	st, _ := s.Status(ctx, "cassandra1")
	if len(st.Networks) != 0 {
		t.Errorf("expected no memberships after disconnect, got %v", st.Networks)
	}

	if err := s.Connect(ctx, "cassandra1", "dbnet"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	st, _ = s.Status(ctx, "cassandra1")
	if len(st.Networks) != 1 || st.Networks[0] != "dbnet" {
		t.Errorf("expected [dbnet], got %v", st.Networks)
	}
}

func TestSyntheticResolveNetwork(t *testing.T) {
	s := NewSynthetic([]string{"mongo1"}, "dbnet")
	net, err := s.ResolveNetwork(context.Background(), "mongo1")
	if err != nil {
		t.Fatalf("ResolveNetwork failed: %v", err)
	}
	if net != "dbnet" {
		t.Errorf("expected dbnet, got %q", net)
	}

	// No configured network and no memberships.
	bare := NewSynthetic(nil, "")
	bare.nodes["lone"] = &synthNode{running: true, networks: map[string]bool{}}
	if _, err := bare.ResolveNetwork(context.Background(), "lone"); !errors.Is(err, ErrNetworkUnresolved) {
		t.Errorf("expected ErrNetworkUnresolved, got %v", err)
	}
}

func TestSyntheticAutoCreatesUnknownNodes(t *testing.T) {
	s := NewSynthetic(nil, "dbnet")
	st, err := s.Status(context.Background(), "mystery")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.State != StateRunning {
		t.Errorf("unknown nodes should appear running, got %v", st.State)
	}
}

func TestSyntheticMode(t *testing.T) {
	if m := NewSynthetic(nil, "").Mode(); m != ModeSynthetic {
		t.Errorf("expected synthetic mode, got %v", m)
	}
}
