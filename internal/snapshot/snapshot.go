// Package snapshot keeps content-hashed copies of every raw record a run
// fetched, so later backfills can replay them without the network.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/odata"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo"
	"github.com/moshelati/knesset-data-vote-sub001/internal/storage/objectstore"
)

// maxMirrorRead caps payloads read back from object storage.
const maxMirrorRead = 8 << 20

// ExternalKey identifies the upstream row a snapshot was taken from.
type ExternalKey struct {
	ID         string
	Source     string
	Collection string
}

// PayloadHash is the hex SHA-256 of the serialized record.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ObjectKey is the content-addressed mirror location of a payload.
func ObjectKey(kind domain.EntityKind, hash string) string {
	return fmt.Sprintf("snapshots/%s/%s.json", kind, hash)
}

// Store saves snapshots. Nothing it does can fail a sync: every error is
// logged and dropped.
type Store struct {
	logger *slog.Logger
	repo   repo.SnapshotRepository
	mirror objectstore.Store
	bucket string
	newID  func() string
	now    func() time.Time
}

type Option func(*Store)

// WithMirror also writes payloads to object storage under ObjectKey.
func WithMirror(store objectstore.Store, bucket string) Option {
	return func(s *Store) {
		s.mirror = store
		s.bucket = bucket
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(logger *slog.Logger, r repo.SnapshotRepository, opts ...Option) *Store {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Store{logger: logger, repo: r, newID: uuid.NewString, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save records one raw record. entityID is empty when the record did not map.
func (s *Store) Save(ctx context.Context, kind domain.EntityKind, entityID string, key ExternalKey, runID string, payload odata.Record) {
	if s == nil || s.repo == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("snapshot encode failed", "run_id", runID, "entity_kind", kind, "external_id", key.ID, "error", err)
		return
	}
	hash := PayloadHash(raw)
	snap := domain.Snapshot{
		ID:             s.newID(),
		RunID:          runID,
		EntityKind:     kind,
		EntityID:       entityID,
		ExternalID:     key.ID,
		ExternalSource: key.Source,
		Collection:     key.Collection,
		PayloadHash:    hash,
		Payload:        raw,
		SizeBytes:      int64(len(raw)),
		CapturedAt:     s.now().UTC(),
	}
	if s.mirror != nil {
		snap.ObjectKey = s.mirrorPayload(ctx, kind, hash, raw)
	}
	if err := s.repo.Insert(ctx, snap); err != nil {
		s.logger.Warn("snapshot write failed", "run_id", runID, "entity_kind", kind, "external_id", key.ID, "error", err)
	}
}

// mirrorPayload writes raw unless an object with the same hash exists and
// returns the object key, or "" when the mirror could not be written.
func (s *Store) mirrorPayload(ctx context.Context, kind domain.EntityKind, hash string, raw []byte) string {
	objectKey := ObjectKey(kind, hash)
	_, err := s.mirror.Stat(ctx, s.bucket, objectKey)
	if err == nil {
		return objectKey
	}
	if !errors.Is(err, objectstore.ErrObjectNotFound) {
		s.logger.Warn("snapshot mirror stat failed", "object_key", objectKey, "error", err)
		return ""
	}
	if err := s.mirror.Put(ctx, s.bucket, objectKey, bytes.NewReader(raw), int64(len(raw)), "application/json"); err != nil {
		s.logger.Warn("snapshot mirror write failed", "object_key", objectKey, "error", err)
		return ""
	}
	return objectKey
}

// Load returns the stored records of runID for kind in capture order. A
// snapshot without an inline payload is read from the mirror.
func (s *Store) Load(ctx context.Context, runID string, kind domain.EntityKind) ([]odata.Record, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("snapshot store not initialized")
	}
	snaps, err := s.repo.ListByRun(ctx, runID, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s snapshots: %w", kind, err)
	}
	out := make([]odata.Record, 0, len(snaps))
	for _, snap := range snaps {
		raw := []byte(snap.Payload)
		if len(raw) == 0 {
			if raw, err = s.readMirror(ctx, snap.ObjectKey); err != nil {
				return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
			}
		}
		if PayloadHash(raw) != snap.PayloadHash {
			return nil, fmt.Errorf("snapshot %s: payload hash mismatch", snap.ID)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) readMirror(ctx context.Context, objectKey string) ([]byte, error) {
	if s.mirror == nil || objectKey == "" {
		return nil, errors.New("payload is not stored inline and no mirror is configured")
	}
	body, _, err := s.mirror.Get(ctx, s.bucket, objectKey)
	if err != nil {
		return nil, fmt.Errorf("read mirror %s: %w", objectKey, err)
	}
	defer func() { _ = body.Close() }()
	return io.ReadAll(io.LimitReader(body, maxMirrorRead))
}

func decodeRecord(raw []byte) (odata.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec odata.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return rec, nil
}
