package domain

import (
	"errors"
	"strings"
	"time"
)

// RunStatus is the lifecycle state of a sync run. Every status except
// RunStatusRunning is terminal.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartial, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Counters are the per-entity-kind tallies kept for a run.
type Counters struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Run is one execution of the pipeline.
type Run struct {
	ID                    string
	Source                string
	Status                RunStatus
	StartedAt             time.Time
	CompletedAt           *time.Time
	DiscoveredCollections []string
	Counters              map[EntityKind]Counters
	Errors                []string
	LatencyMs             int64
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.Source) == "" {
		return errors.New("run source is required")
	}
	if strings.TrimSpace(string(r.Status)) == "" {
		return errors.New("status is required")
	}
	return nil
}

// TotalFetched sums the fetched counter across entity kinds.
func (r Run) TotalFetched() int {
	total := 0
	for _, c := range r.Counters {
		total += c.Fetched
	}
	return total
}
