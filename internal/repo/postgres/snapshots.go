package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo"
)

const (
	insertSnapshotQuery = `INSERT INTO raw_snapshots (
			id, run_id, entity_kind, entity_id, external_id, external_source,
			collection, payload_hash, payload, size_bytes, object_key, captured_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING`

	selectSnapshotsByRunQuery = `SELECT id, run_id, entity_kind, entity_id, external_id, external_source,
			collection, payload_hash, payload, size_bytes, object_key, captured_at
		FROM raw_snapshots
		WHERE run_id = $1 AND entity_kind = $2
		ORDER BY captured_at ASC, id ASC`
)

type SnapshotStore struct {
	db DB
}

func NewSnapshotStore(db DB) *SnapshotStore {
	if db == nil {
		return nil
	}
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Insert(ctx context.Context, snap domain.Snapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	if err := snap.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, insertSnapshotQuery,
		strings.TrimSpace(snap.ID),
		strings.TrimSpace(snap.RunID),
		string(snap.EntityKind),
		nullString(snap.EntityID),
		nullString(snap.ExternalID),
		nullString(snap.ExternalSource),
		nullString(snap.Collection),
		snap.PayloadHash,
		[]byte(snap.Payload),
		snap.SizeBytes,
		nullString(snap.ObjectKey),
		normalizeTime(snap.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) ListByRun(ctx context.Context, runID string, kind domain.EntityKind) ([]domain.Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("snapshot store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(ctx, selectSnapshotsByRunQuery, runID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		var (
			snap       domain.Snapshot
			entityKind string
			payload    []byte

			entityID, externalID, externalSource, collection, objectKey sql.NullString
		)
		if err := rows.Scan(
			&snap.ID, &snap.RunID, &entityKind, &entityID, &externalID, &externalSource,
			&collection, &snap.PayloadHash, &payload, &snap.SizeBytes, &objectKey, &snap.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.EntityKind = domain.EntityKind(entityKind)
		snap.EntityID = entityID.String
		snap.ExternalID = externalID.String
		snap.ExternalSource = externalSource.String
		snap.Collection = collection.String
		snap.ObjectKey = objectKey.String
		snap.Payload = payload
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

var _ repo.SnapshotRepository = (*SnapshotStore)(nil)
