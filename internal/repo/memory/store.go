// Package memory keeps every repository in process memory. It backs dry runs
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo"
)

type key struct {
	externalID string
	source     string
}

// table holds the rows of one entity kind keyed on (external_id, external_source).
type table[T any] struct {
	ids  map[key]string
	rows map[string]T
}

func newTable[T any]() *table[T] {
	return &table[T]{ids: map[key]string{}, rows: map[string]T{}}
}

func (t *table[T]) upsert(prov domain.Provenance, newID func() string, build func(id string) T) repo.UpsertResult {
	k := key{externalID: strings.TrimSpace(prov.ExternalID), source: strings.TrimSpace(prov.ExternalSource)}
	id, ok := t.ids[k]
	if !ok {
		id = newID()
		t.ids[k] = id
	}
	t.rows[id] = build(id)
	return repo.UpsertResult{ID: id, Created: !ok}
}

// Store implements repo.EntityStore, repo.ExternalIDIndex, repo.ScoringReader,
// repo.AggregateWriter, repo.RunRepository and repo.SnapshotRepository.
type Store struct {
	mu    sync.Mutex
	newID func() string

	parties              *table[domain.Party]
	persons              *table[domain.Person]
	memberships          *table[domain.Membership]
	bills                *table[domain.Bill]
	billRoles            *table[domain.BillRole]
	committees           *table[domain.Committee]
	committeeMemberships *table[domain.CommitteeMembership]
	governmentRoles      *table[domain.GovernmentRole]
	votes                *table[domain.Vote]
	voteRecords          *table[domain.VoteRecord]

	runs      map[string]domain.Run
	snapshots []domain.Snapshot
	aggs      []domain.PartyTopicAgg
}

func New() *Store {
	return &Store{
		newID:                uuid.NewString,
		parties:              newTable[domain.Party](),
		persons:              newTable[domain.Person](),
		memberships:          newTable[domain.Membership](),
		bills:                newTable[domain.Bill](),
		billRoles:            newTable[domain.BillRole](),
		committees:           newTable[domain.Committee](),
		committeeMemberships: newTable[domain.CommitteeMembership](),
		governmentRoles:      newTable[domain.GovernmentRole](),
		votes:                newTable[domain.Vote](),
		voteRecords:          newTable[domain.VoteRecord](),
		runs:                 map[string]domain.Run{},
	}
}

func (s *Store) UpsertParty(ctx context.Context, e domain.Party) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parties.upsert(e.Provenance, s.newID, func(id string) domain.Party { e.ID = id; return e }), nil
}

func (s *Store) UpsertPerson(ctx context.Context, e domain.Person) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persons.upsert(e.Provenance, s.newID, func(id string) domain.Person { e.ID = id; return e }), nil
}

func (s *Store) UpsertMembership(ctx context.Context, e domain.Membership) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.memberships.upsert(e.Provenance, s.newID, func(id string) domain.Membership { e.ID = id; return e })
	if e.IsCurrent {
		for id, other := range s.memberships.rows {
			if id != res.ID && other.PersonID == e.PersonID && other.KnessetNum == e.KnessetNum && other.IsCurrent {
				other.IsCurrent = false
				s.memberships.rows[id] = other
			}
		}
	}
	return res, nil
}

func (s *Store) UpsertBill(ctx context.Context, e domain.Bill) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bills.upsert(e.Provenance, s.newID, func(id string) domain.Bill { e.ID = id; return e }), nil
}

func (s *Store) UpsertBillRole(ctx context.Context, e domain.BillRole) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.billRoles.upsert(e.Provenance, s.newID, func(id string) domain.BillRole { e.ID = id; return e }), nil
}

func (s *Store) UpsertCommittee(ctx context.Context, e domain.Committee) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committees.upsert(e.Provenance, s.newID, func(id string) domain.Committee { e.ID = id; return e }), nil
}

func (s *Store) UpsertCommitteeMembership(ctx context.Context, e domain.CommitteeMembership) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committeeMemberships.upsert(e.Provenance, s.newID, func(id string) domain.CommitteeMembership { e.ID = id; return e }), nil
}

func (s *Store) UpsertGovernmentRole(ctx context.Context, e domain.GovernmentRole) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.governmentRoles.upsert(e.Provenance, s.newID, func(id string) domain.GovernmentRole { e.ID = id; return e }), nil
}

func (s *Store) UpsertVote(ctx context.Context, e domain.Vote) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes.upsert(e.Provenance, s.newID, func(id string) domain.Vote { e.ID = id; return e }), nil
}

func (s *Store) UpsertVoteRecord(ctx context.Context, e domain.VoteRecord) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voteRecords.upsert(e.Provenance, s.newID, func(id string) domain.VoteRecord { e.ID = id; return e }), nil
}

func (s *Store) ExternalIDs(ctx context.Context, kind domain.EntityKind, source string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids map[key]string
	switch kind {
	case domain.KindParty:
		ids = s.parties.ids
	case domain.KindPerson:
		ids = s.persons.ids
	case domain.KindMembership:
		ids = s.memberships.ids
	case domain.KindBill:
		ids = s.bills.ids
	case domain.KindBillRole:
		ids = s.billRoles.ids
	case domain.KindCommittee:
		ids = s.committees.ids
	case domain.KindCommitteeMembership:
		ids = s.committeeMemberships.ids
	case domain.KindGovernmentRole:
		ids = s.governmentRoles.ids
	case domain.KindVote:
		ids = s.votes.ids
	case domain.KindVoteRecord:
		ids = s.voteRecords.ids
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	out := map[string]string{}
	for k, id := range ids {
		if k.source == source {
			out[k.externalID] = id
		}
	}
	return out, nil
}

// Count returns the number of rows held for kind.
func (s *Store) Count(kind domain.EntityKind) int {
	ids, err := s.ExternalIDs(context.Background(), kind, domain.ExternalSourceKnesset)
	if err != nil {
		return 0
	}
	return len(ids)
}

func (s *Store) ListBills(ctx context.Context) ([]domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRows(s.bills), nil
}

func (s *Store) ListBillRoles(ctx context.Context) ([]domain.BillRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRows(s.billRoles), nil
}

func (s *Store) ListMemberships(ctx context.Context) ([]domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRows(s.memberships), nil
}

func (s *Store) Memberships() []domain.Membership {
	out, _ := s.ListMemberships(context.Background())
	return out
}

func sortedRows[T any](t *table[T]) []T {
	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.rows[id])
	}
	return out
}

func (s *Store) ReplacePartyTopicAggs(ctx context.Context, rows []domain.PartyTopicAgg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggs = append([]domain.PartyTopicAgg(nil), rows...)
	return nil
}

func (s *Store) PartyTopicAggs() []domain.PartyTopicAgg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PartyTopicAgg(nil), s.aggs...)
}

func (s *Store) Create(ctx context.Context, run domain.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *Store) Finish(ctx context.Context, run domain.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	if !run.Status.Terminal() {
		return fmt.Errorf("finish run %s: status %q is not terminal", run.ID, run.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.runs[run.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if current.Status != domain.RunStatusRunning {
		return fmt.Errorf("finish run %s: run is %s", run.ID, current.Status)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.Run{}, repo.ErrNotFound
	}
	return cloneRun(run), nil
}

func cloneRun(run domain.Run) domain.Run {
	out := run
	out.DiscoveredCollections = append([]string(nil), run.DiscoveredCollections...)
	out.Errors = append([]string(nil), run.Errors...)
	if run.Counters != nil {
		out.Counters = make(map[domain.EntityKind]domain.Counters, len(run.Counters))
		for k, v := range run.Counters {
			out.Counters[k] = v
		}
	}
	return out
}

func (s *Store) Insert(ctx context.Context, snap domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *Store) ListByRun(ctx context.Context, runID string, kind domain.EntityKind) ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Snapshot
	for _, snap := range s.snapshots {
		if snap.RunID == runID && snap.EntityKind == kind {
			out = append(out, snap)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out, nil
}

var (
	_ repo.EntityStore        = (*Store)(nil)
	_ repo.ExternalIDIndex    = (*Store)(nil)
	_ repo.ScoringReader      = (*Store)(nil)
	_ repo.AggregateWriter    = (*Store)(nil)
	_ repo.RunRepository      = (*Store)(nil)
	_ repo.SnapshotRepository = (*Store)(nil)
)
