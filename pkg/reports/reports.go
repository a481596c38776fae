// Package reports persists run summaries as paired markdown and JSON files.
package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

const defaultDir = "logs/performance_reports"

// Series is one named table of rows in a report.
type Series struct {
	Name string           `json:"name"`
	Rows []map[string]any `json:"rows"`
}

// Sink persists a report and returns the path of the primary artifact.
type Sink interface {
	Save(prefix string, timestamp time.Time, summary map[string]any, series ...Series) (string, error)
}

// FileSink writes reports under a directory, one markdown file plus one JSON
// file per save.
type FileSink struct {
	dir    string
	logger *zap.Logger
}

// NewFileSink creates a sink rooted at dir, defaulting to
// logs/performance_reports relative to the working directory.
func NewFileSink(dir string, logger *zap.Logger) *FileSink {
	if dir == "" {
		dir = defaultDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{dir: dir, logger: logger}
}

// Save writes <prefix>_<timestamp>.md and .json and returns the markdown
// path.
func (s *FileSink) Save(prefix string, timestamp time.Time, summary map[string]any, series ...Series) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s", prefix, timestamp.UTC().Format("20060102_150405"))
	mdPath := filepath.Join(s.dir, base+".md")
	jsonPath := filepath.Join(s.dir, base+".json")

	md := renderMarkdown(prefix, timestamp, summary, series)
	if err := os.WriteFile(mdPath, md, 0o644); err != nil {
		return "", fmt.Errorf("failed to write markdown report: %w", err)
	}

	payload := map[string]any{
		"report":    prefix,
		"timestamp": timestamp.UTC().Format(time.RFC3339),
		"summary":   summary,
		"series":    series,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write json report: %w", err)
	}

	s.logger.Info("report saved",
		zap.String("markdown", mdPath), zap.String("json", jsonPath))
	return mdPath, nil
}

func renderMarkdown(prefix string, timestamp time.Time, summary map[string]any, series []Series) []byte {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "# %s report\n\n", prefix)
	fmt.Fprintf(buf, "Generated: %s\n\n", timestamp.UTC().Format(time.RFC3339))

	if len(summary) > 0 {
		buf.WriteString("## Summary\n\n")
		buf.WriteString("| Key | Value |\n|-----|-------|\n")
		for _, k := range sortedKeys(summary) {
			fmt.Fprintf(buf, "| %s | %v |\n", k, summary[k])
		}
		buf.WriteString("\n")
	}

	for _, ser := range series {
		fmt.Fprintf(buf, "## %s\n\n", ser.Name)
		if len(ser.Rows) == 0 {
			buf.WriteString("_no data_\n\n")
			continue
		}
		cols := sortedKeys(ser.Rows[0])
		for _, c := range cols {
			fmt.Fprintf(buf, "| %s ", c)
		}
		buf.WriteString("|\n")
		for range cols {
			buf.WriteString("|---")
		}
		buf.WriteString("|\n")
		for _, row := range ser.Rows {
			for _, c := range cols {
				fmt.Fprintf(buf, "| %v ", row[c])
			}
			buf.WriteString("|\n")
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
