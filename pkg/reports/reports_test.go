package reports

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSaveWritesMarkdownAndJSON(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, zap.NewNop())

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	path, err := sink.Save("performance", ts,
		map[string]any{"throughput": 123.4, "errors": 0},
		Series{Name: "latency", Rows: []map[string]any{
			{"store": "mongodb", "op": "insert", "meanMs": 1.2},
			{"store": "cassandra", "op": "insert", "meanMs": 2.5},
		}},
	)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if filepath.Base(path) != "performance_20260314_092653.md" {
		t.Errorf("unexpected markdown name %q", filepath.Base(path))
	}
	md, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("markdown not written: %v", err)
	}
	for _, want := range []string{"# performance report", "throughput", "## latency", "mongodb"} {
		if !strings.Contains(string(md), want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	jsonPath := strings.TrimSuffix(path, ".md") + ".json"
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("json not written: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("json not parseable: %v", err)
	}
	if payload["report"] != "performance" {
		t.Errorf("expected report=performance, got %v", payload["report"])
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	sink := NewFileSink(dir, zap.NewNop())

	if _, err := sink.Save("failure", time.Now(), map[string]any{"mode": "synthetic"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 files, got %d", len(entries))
	}
}
