package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo"
)

// Field names one per-kind counter.
type Field int

const (
	FieldFetched Field = iota
	FieldCreated
	FieldUpdated
	FieldFailed
	FieldSkipped
)

// Tracker owns the lifecycle of one run. Counters and errors live in memory
// and are written once by Complete.
type Tracker struct {
	logger    *slog.Logger
	runs      repo.RunRepository
	maxErrors int
	now       func() time.Time

	mu         sync.Mutex
	run        domain.Run
	suppressed int
}

func NewTracker(logger *slog.Logger, runs repo.RunRepository, maxErrors int) *Tracker {
	if maxErrors < 1 {
		maxErrors = 1
	}
	return &Tracker{logger: logger, runs: runs, maxErrors: maxErrors, now: time.Now}
}

// Start persists a running row and returns its id.
func (t *Tracker) Start(ctx context.Context, source string) (string, error) {
	if t == nil || t.runs == nil {
		return "", errors.New("run tracker not initialized")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.run.ID != "" {
		return "", fmt.Errorf("run %s already started", t.run.ID)
	}
	run := domain.Run{
		ID:        uuid.NewString(),
		Source:    source,
		Status:    domain.RunStatusRunning,
		StartedAt: t.now().UTC(),
		Counters:  map[domain.EntityKind]domain.Counters{},
	}
	if err := t.runs.Create(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	t.run = run
	return run.ID, nil
}

func (t *Tracker) InitEntity(kind domain.EntityKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.run.Counters[kind]; !ok {
		t.run.Counters[kind] = domain.Counters{}
	}
}

func (t *Tracker) Increment(kind domain.EntityKind, field Field) {
	t.Add(kind, field, 1)
}

func (t *Tracker) Add(kind domain.EntityKind, field Field, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.run.Counters[kind]
	switch field {
	case FieldFetched:
		c.Fetched += n
	case FieldCreated:
		c.Created += n
	case FieldUpdated:
		c.Updated += n
	case FieldFailed:
		c.Failed += n
	case FieldSkipped:
		c.Skipped += n
	}
	t.run.Counters[kind] = c
}

// AddError appends msg to the run's error log, keeping at most maxErrors.
func (t *Tracker) AddError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.run.Errors) >= t.maxErrors {
		t.suppressed++
		return
	}
	t.run.Errors = append(t.run.Errors, msg)
}

func (t *Tracker) SetDiscovered(collections []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.DiscoveredCollections = append([]string(nil), collections...)
}

// ErrorCount includes suppressed errors.
func (t *Tracker) ErrorCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.run.Errors) + t.suppressed
}

func (t *Tracker) Counters(kind domain.EntityKind) domain.Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run.Counters[kind]
}

// Run returns a copy of the in-memory run state.
func (t *Tracker) Run() domain.Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

func (t *Tracker) copyLocked() domain.Run {
	out := t.run
	out.DiscoveredCollections = append([]string(nil), t.run.DiscoveredCollections...)
	out.Errors = append([]string(nil), t.run.Errors...)
	out.Counters = make(map[domain.EntityKind]domain.Counters, len(t.run.Counters))
	for k, v := range t.run.Counters {
		out.Counters[k] = v
	}
	return out
}

// Complete performs the single terminal write of the run.
func (t *Tracker) Complete(ctx context.Context, status domain.RunStatus) (domain.Run, error) {
	if !status.Terminal() {
		return domain.Run{}, fmt.Errorf("status %q is not terminal", status)
	}
	t.mu.Lock()
	if t.run.ID == "" {
		t.mu.Unlock()
		return domain.Run{}, errors.New("run not started")
	}
	if t.run.Status.Terminal() {
		t.mu.Unlock()
		return domain.Run{}, fmt.Errorf("run %s already %s", t.run.ID, t.run.Status)
	}
	if t.suppressed > 0 {
		t.run.Errors = append(t.run.Errors, fmt.Sprintf("%d more errors suppressed", t.suppressed))
	}
	completed := t.now().UTC()
	t.run.Status = status
	t.run.CompletedAt = &completed
	t.run.LatencyMs = completed.Sub(t.run.StartedAt).Milliseconds()
	run := t.copyLocked()
	t.mu.Unlock()

	if err := t.runs.Finish(ctx, run); err != nil {
		return run, fmt.Errorf("finish run: %w", err)
	}
	if t.logger != nil {
		t.logger.Info("run finished", "run_id", run.ID, "status", run.Status, "latency_ms", run.LatencyMs, "errors", len(run.Errors))
	}
	return run, nil
}

// DeriveStatus applies the terminal-status rule: a failed discovery or an
// empty fetch is failed, any recorded error is partial, otherwise completed.
func DeriveStatus(discoveryFailed bool, totalFetched, errorCount int) domain.RunStatus {
	switch {
	case discoveryFailed || totalFetched == 0:
		return domain.RunStatusFailed
	case errorCount > 0:
		return domain.RunStatusPartial
	default:
		return domain.RunStatusCompleted
	}
}
