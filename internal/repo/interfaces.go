package repo

import (
	"context"
	"errors"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
)

var ErrNotFound = errors.New("not found")

// UpsertResult reports the internal id of the written row and whether the
// upsert inserted it.
type UpsertResult struct {
	ID      string
	Created bool
}

// EntityStore upserts synced entities keyed on (external_id, external_source).
// Foreign ids on the entities must already be resolved to internal ids.
type EntityStore interface {
	UpsertParty(ctx context.Context, e domain.Party) (UpsertResult, error)
	UpsertPerson(ctx context.Context, e domain.Person) (UpsertResult, error)
	UpsertMembership(ctx context.Context, e domain.Membership) (UpsertResult, error)
	UpsertBill(ctx context.Context, e domain.Bill) (UpsertResult, error)
	UpsertBillRole(ctx context.Context, e domain.BillRole) (UpsertResult, error)
	UpsertCommittee(ctx context.Context, e domain.Committee) (UpsertResult, error)
	UpsertCommitteeMembership(ctx context.Context, e domain.CommitteeMembership) (UpsertResult, error)
	UpsertGovernmentRole(ctx context.Context, e domain.GovernmentRole) (UpsertResult, error)
	UpsertVote(ctx context.Context, e domain.Vote) (UpsertResult, error)
	UpsertVoteRecord(ctx context.Context, e domain.VoteRecord) (UpsertResult, error)
}

// ExternalIDIndex lists external id → internal id for every persisted row of
// kind from source.
type ExternalIDIndex interface {
	ExternalIDs(ctx context.Context, kind domain.EntityKind, source string) (map[string]string, error)
}

// RunRepository persists run rows. Create writes the running row; Finish is
// the single terminal write.
type RunRepository interface {
	Create(ctx context.Context, run domain.Run) error
	Finish(ctx context.Context, run domain.Run) error
	Get(ctx context.Context, id string) (domain.Run, error)
}

// SnapshotRepository is append-only.
type SnapshotRepository interface {
	Insert(ctx context.Context, snap domain.Snapshot) error
	ListByRun(ctx context.Context, runID string, kind domain.EntityKind) ([]domain.Snapshot, error)
}

// ScoringReader loads the persisted inputs of the aggregation batch.
type ScoringReader interface {
	ListBills(ctx context.Context) ([]domain.Bill, error)
	ListBillRoles(ctx context.Context) ([]domain.BillRole, error)
	ListMemberships(ctx context.Context) ([]domain.Membership, error)
}

// AggregateWriter replaces the whole party_topic_aggs table.
type AggregateWriter interface {
	ReplacePartyTopicAggs(ctx context.Context, rows []domain.PartyTopicAgg) error
}
