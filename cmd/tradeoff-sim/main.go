// tradeoff-sim drives a running tradeoff-d: it posts a failure scenario or a
// performance benchmark described in a JSON/YAML file and prints the report.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

type runFile struct {
	// Kind selects the endpoint: "failure" or "performance".
	Kind string `json:"kind" yaml:"kind"`

	// Failure scenario fields.
	FailureType string `json:"failureType" yaml:"failureType"`
	TargetNode  string `json:"targetNode" yaml:"targetNode"`
	Duration    int    `json:"duration" yaml:"duration"`

	// Benchmark fields.
	OperationCount   int    `json:"operationCount" yaml:"operationCount"`
	BatchSize        int    `json:"batchSize" yaml:"batchSize"`
	ConsistencyLevel string `json:"consistencyLevel" yaml:"consistencyLevel"`
	TestType         string `json:"testType" yaml:"testType"`
}

func main() {
	var (
		runPath    string
		apiURL     string
		jsonOutput bool
		outputFile string
	)
	flag.StringVar(&runPath, "run", "", "Path to run description file (JSON or YAML)")
	flag.StringVar(&apiURL, "api", "http://127.0.0.1:8080", "Base URL of tradeoff-d API")
	flag.BoolVar(&jsonOutput, "json", false, "Output raw response JSON")
	flag.StringVar(&outputFile, "out", "", "Write output to file instead of stdout")
	flag.Parse()

	var run runFile
	if runPath != "" {
		data, err := os.ReadFile(runPath)
		if err != nil {
			log.Fatalf("Failed to read run file: %v", err)
		}
		if ext := filepath.Ext(runPath); ext == ".yaml" || ext == ".yml" {
			err = yaml.Unmarshal(data, &run)
		} else {
			err = json.Unmarshal(data, &run)
		}
		if err != nil {
			log.Fatalf("Failed to parse run file: %v", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "No run file provided, running default demo scenario...")
		run = runFile{
			Kind:        "failure",
			FailureType: "node",
			TargetNode:  "mongo1",
			Duration:    10,
		}
	}

	var (
		endpoint string
		payload  any
	)
	switch run.Kind {
	case "failure", "":
		endpoint = "/failure/simulate"
		payload = map[string]any{
			"failureType": run.FailureType,
			"targetNode":  run.TargetNode,
			"duration":    run.Duration,
		}
	case "performance":
		endpoint = "/performance/run"
		payload = map[string]any{
			"operationCount":   run.OperationCount,
			"batchSize":        run.BatchSize,
			"consistencyLevel": run.ConsistencyLevel,
			"testType":         run.TestType,
		}
	default:
		log.Fatalf("Unknown run kind %q (want failure or performance)", run.Kind)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("Failed to encode request: %v", err)
	}

	client := &http.Client{Timeout: 15 * time.Minute}
	resp, err := client.Post(apiURL+endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Failed to contact daemon (is tradeoff-d running?): %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Server returned %s\n%s", resp.Status, string(respBody))
	}

	writeReport(respBody, run.Kind, jsonOutput, outputFile)
}

func writeReport(respBody []byte, kind string, jsonFmt bool, filePath string) {
	var output []byte

	if jsonFmt {
		var buf bytes.Buffer
		if err := json.Indent(&buf, respBody, "", "  "); err != nil {
			output = respBody
		} else {
			output = buf.Bytes()
		}
	} else {
		var parsed struct {
			Summary           map[string]any   `json:"summary"`
			ThroughputMetrics []map[string]any `json:"throughputMetrics"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			output = respBody
		} else {
			var buf bytes.Buffer
			if kind == "" {
				kind = "failure"
			}
			fmt.Fprintf(&buf, "\n--- Run Report: %s ---\n", kind)
			for _, k := range sortedKeys(parsed.Summary) {
				fmt.Fprintf(&buf, "%-20s %v\n", k+":", parsed.Summary[k])
			}
			for _, row := range parsed.ThroughputMetrics {
				fmt.Fprintf(&buf, "store %-12v throughput=%v ops/s errors=%v\n",
					row["store"], row["throughputOpsPerSec"], row["errorCount"])
			}
			output = buf.Bytes()
		}
	}

	if filePath != "" {
		if err := os.WriteFile(filePath, output, 0o644); err != nil {
			log.Fatalf("Failed to write output file: %v", err)
		}
		return
	}
	fmt.Println(string(output))
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
