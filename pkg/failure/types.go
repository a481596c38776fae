// Package failure runs bounded failure scenarios against the store clusters:
// stop a node or partition it off the network, sample availability of both
// stores once per logical second, restore, and watch recovery.
package failure

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/infra"
)

// Kind selects the injection mechanism.
type Kind string

const (
	KindNode    Kind = "node"
	KindNetwork Kind = "network"
)

// Duration bounds in seconds for one scenario.
const (
	MinDurationSeconds = 1
	MaxDurationSeconds = 300
)

// RecoveryCeilingTicks bounds the recovery watch after a node restart.
const RecoveryCeilingTicks = 10

// Scenario describes one failure run.
type Scenario struct {
	ID              string   `json:"id"`
	Kind            Kind     `json:"failureType"`
	Targets         []string `json:"targets"`
	DurationSeconds int      `json:"duration"`
}

// Validate rejects malformed scenarios before anything is touched.
func (s Scenario) Validate() error {
	switch s.Kind {
	case KindNode, KindNetwork:
	default:
		return fmt.Errorf("unknown failure type %q", s.Kind)
	}
	if len(s.Targets) == 0 {
		return fmt.Errorf("at least one target node is required")
	}
	for _, t := range s.Targets {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("empty target node name")
		}
	}
	if s.DurationSeconds < MinDurationSeconds || s.DurationSeconds > MaxDurationSeconds {
		return fmt.Errorf("duration must be between %d and %d seconds, got %d",
			MinDurationSeconds, MaxDurationSeconds, s.DurationSeconds)
	}
	return nil
}

// Phase is the scenario state machine position.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhasePreparing     Phase = "preparing"
	PhaseInjecting     Phase = "injecting"
	PhaseMonitoring    Phase = "monitoring"
	PhaseRestoring     Phase = "restoring"
	PhaseRecoveryWatch Phase = "recovery_watch"
	PhaseCompleted     Phase = "completed"
)

// AvailabilitySample is one store's probe outcome at one monitoring tick.
type AvailabilitySample struct {
	Tick      int      `json:"tick"`
	Store     string   `json:"store"`
	Success   bool     `json:"success"`
	LatencyMs *float64 `json:"latencyMs,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// RecoverySample is one recovery-watch tick.
type RecoverySample struct {
	Tick   int  `json:"tick"`
	Online bool `json:"storeOnline"`
}

// Result is the full outcome of one scenario.
type Result struct {
	ScenarioID        string    `json:"scenarioId"`
	Kind              Kind      `json:"failureType"`
	Targets           []string  `json:"targets"`
	RequestedDuration int       `json:"requestedDuration"`
	ActualDuration    float64   `json:"actualDuration"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`

	Availability []AvailabilitySample `json:"availability"`
	Recovery     []RecoverySample     `json:"recovery,omitempty"`

	// RecoveryTimeSeconds is set for node scenarios; capped at the ceiling.
	RecoveryTimeSeconds *float64 `json:"recoveryTimeSeconds,omitempty"`
	RecoveryIncomplete  bool     `json:"recoveryIncomplete,omitempty"`

	// DataLoss is always zero. Byte-level loss detection is out of scope and
	// the field documents that limitation rather than a measurement.
	DataLoss int `json:"dataLoss"`

	// Phase is the last state-machine phase the scenario entered. It is
	// PhaseCompleted on a clean run and names the failing phase otherwise.
	Phase Phase `json:"phase"`

	Mode    infra.Mode `json:"mode"`
	Success bool       `json:"success"`
	Errors  []string   `json:"errors,omitempty"`
}

// SamplesByStore groups the availability series per store, preserving order.
func (r *Result) SamplesByStore() map[string][]AvailabilitySample {
	out := make(map[string][]AvailabilitySample)
	for _, s := range r.Availability {
		out[s.Store] = append(out[s.Store], s)
	}
	return out
}

// Downtime counts failed samples for a store, in logical seconds.
func (r *Result) Downtime(store string) int {
	n := 0
	for _, s := range r.Availability {
		if s.Store == store && !s.Success {
			n++
		}
	}
	return n
}

// StoreOf maps a node name to the store cluster it belongs to. Node names
// follow the compose convention mongo1..mongoN, cassandra1..cassandraN.
func StoreOf(node string) string {
	switch {
	case strings.HasPrefix(node, "mongo"):
		return driver.StoreMongoDB
	case strings.HasPrefix(node, "cassandra"):
		return driver.StoreCassandra
	default:
		return ""
	}
}
