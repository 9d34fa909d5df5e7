package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo"
)

const (
	insertRunQuery = `INSERT INTO sync_runs (
			id, source, status, started_at, discovered_collections, counters, errors, latency_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	// A run row is immutable once it leaves running.
	finishRunQuery = `UPDATE sync_runs SET
			status = $2,
			completed_at = $3,
			discovered_collections = $4,
			counters = $5,
			errors = $6,
			latency_ms = $7
		WHERE id = $1 AND status = 'running'`

	selectRunQuery = `SELECT id, source, status, started_at, completed_at, discovered_collections, counters, errors, latency_ms
		FROM sync_runs
		WHERE id = $1`
)

var ErrRunNotRunning = errors.New("run is not running")

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	collections, counters, errs, err := encodeRunState(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertRunQuery,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.Source),
		string(run.Status),
		normalizeTime(run.StartedAt),
		collections,
		counters,
		errs,
		run.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) Finish(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	if !run.Status.Terminal() {
		return fmt.Errorf("finish run %s: status %q is not terminal", run.ID, run.Status)
	}
	collections, counters, errs, err := encodeRunState(run)
	if err != nil {
		return err
	}
	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: run.CompletedAt.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, finishRunQuery,
		strings.TrimSpace(run.ID),
		string(run.Status),
		completedAt,
		collections,
		counters,
		errs,
		run.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrRunNotRunning)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}
	var (
		run                               domain.Run
		status                            string
		completedAt                       sql.NullTime
		collectionsJSON, countersJSON, ej []byte
	)
	row := s.db.QueryRowContext(ctx, selectRunQuery, id)
	if err := row.Scan(&run.ID, &run.Source, &status, &run.StartedAt, &completedAt, &collectionsJSON, &countersJSON, &ej, &run.LatencyMs); err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	run.Status = domain.RunStatus(status)
	run.CompletedAt = timePtr(completedAt)
	if len(collectionsJSON) > 0 {
		if err := json.Unmarshal(collectionsJSON, &run.DiscoveredCollections); err != nil {
			return domain.Run{}, fmt.Errorf("decode discovered collections: %w", err)
		}
	}
	if len(countersJSON) > 0 {
		if err := json.Unmarshal(countersJSON, &run.Counters); err != nil {
			return domain.Run{}, fmt.Errorf("decode counters: %w", err)
		}
	}
	if len(ej) > 0 {
		if err := json.Unmarshal(ej, &run.Errors); err != nil {
			return domain.Run{}, fmt.Errorf("decode errors: %w", err)
		}
	}
	return run, nil
}

func encodeRunState(run domain.Run) (collections, counters, errs []byte, err error) {
	list := run.DiscoveredCollections
	if list == nil {
		list = []string{}
	}
	if collections, err = json.Marshal(list); err != nil {
		return nil, nil, nil, fmt.Errorf("encode discovered collections: %w", err)
	}
	c := run.Counters
	if c == nil {
		c = map[domain.EntityKind]domain.Counters{}
	}
	if counters, err = json.Marshal(c); err != nil {
		return nil, nil, nil, fmt.Errorf("encode counters: %w", err)
	}
	e := run.Errors
	if e == nil {
		e = []string{}
	}
	if errs, err = json.Marshal(e); err != nil {
		return nil, nil, nil, fmt.Errorf("encode errors: %w", err)
	}
	return collections, counters, errs, nil
}

var _ repo.RunRepository = (*RunStore)(nil)
