package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecentRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, kind := range []string{KindFailure, KindPerformance, KindFailure} {
		err := s.AppendRun(ctx, Run{
			RunID:      string(rune('a'+i)) + "-run",
			Kind:       kind,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Success:    i != 1,
			Mode:       "synthetic",
			Summary:    map[string]any{"index": float64(i)},
		})
		if err != nil {
			t.Fatalf("AppendRun %d failed: %v", i, err)
		}
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	// Newest first.
	if runs[0].RunID != "c-run" {
		t.Errorf("expected newest run first, got %q", runs[0].RunID)
	}
	if runs[0].Summary["index"] != float64(2) {
		t.Errorf("summary round trip failed: %v", runs[0].Summary)
	}
	if runs[2].Success != true || runs[1].Success != false {
		t.Error("success flags not preserved")
	}
}

func TestRecentRunsLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.AppendRun(ctx, Run{
			RunID:      time.Now().Format("150405.000000000") + string(rune('a'+i)),
			Kind:       KindFailure,
			StartedAt:  time.Now().Add(time.Duration(i) * time.Second),
			FinishedAt: time.Now(),
			Mode:       "live",
			Summary:    map[string]any{},
		})
	}

	runs, err := s.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestAppendRunValidation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.AppendRun(ctx, Run{Kind: KindFailure}); err == nil {
		t.Error("expected error for missing run id")
	}
	if err := s.AppendRun(ctx, Run{RunID: "x", Kind: "mystery"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
