package ingest

import (
	"context"
	"fmt"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/mapping"
	"github.com/moshelati/knesset-data-vote-sub001/internal/odata"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo"
)

type outcome struct {
	externalID string
	entityID   string
	created    bool
	unresolved string
	err        error
}

type keyed interface {
	ExternalKey() string
}

// syncRecord maps rec, resolves its foreign keys and upserts it. A foreign key
// missing from the index yields an unresolved outcome rather than an error.
func syncRecord[T keyed](
	ctx context.Context,
	ids *idIndex,
	kind domain.EntityKind,
	rec odata.Record,
	mapFn func(odata.Record) (T, error),
	resolve func(*T) string,
	upsert func(context.Context, T) (repo.UpsertResult, error),
) outcome {
	e, err := mapFn(rec)
	if err != nil {
		return outcome{externalID: mapping.ExternalID(kind, rec), err: err}
	}
	ext := e.ExternalKey()
	if resolve != nil {
		if missing := resolve(&e); missing != "" {
			return outcome{externalID: ext, unresolved: missing}
		}
	}
	res, err := upsert(ctx, e)
	if err != nil {
		return outcome{externalID: ext, err: err}
	}
	ids.put(kind, ext, res.ID)
	return outcome{externalID: ext, entityID: res.ID, created: res.Created}
}

func lookupFK(ids *idIndex, kind domain.EntityKind, externalID string, dst *string) string {
	id, ok := ids.get(kind, externalID)
	if !ok {
		return fmt.Sprintf("%s %s", kind, externalID)
	}
	*dst = id
	return ""
}

func (p *Pipeline) apply(ctx context.Context, ids *idIndex, kind domain.EntityKind, rec odata.Record) outcome {
	m, s := p.mapper, p.entities
	switch kind {
	case domain.KindParty:
		return syncRecord(ctx, ids, kind, rec, m.Party, nil, s.UpsertParty)
	case domain.KindPerson:
		return syncRecord(ctx, ids, kind, rec, m.Person, nil, s.UpsertPerson)
	case domain.KindMembership:
		return syncRecord(ctx, ids, kind, rec, m.Membership, func(e *domain.Membership) string {
			if miss := lookupFK(ids, domain.KindPerson, e.PersonExternalID, &e.PersonID); miss != "" {
				return miss
			}
			return lookupFK(ids, domain.KindParty, e.PartyExternalID, &e.PartyID)
		}, s.UpsertMembership)
	case domain.KindBill:
		return syncRecord(ctx, ids, kind, rec, m.Bill, nil, s.UpsertBill)
	case domain.KindBillRole:
		return syncRecord(ctx, ids, kind, rec, m.BillRole, func(e *domain.BillRole) string {
			if miss := lookupFK(ids, domain.KindBill, e.BillExternalID, &e.BillID); miss != "" {
				return miss
			}
			return lookupFK(ids, domain.KindPerson, e.PersonExternalID, &e.PersonID)
		}, s.UpsertBillRole)
	case domain.KindCommittee:
		return syncRecord(ctx, ids, kind, rec, m.Committee, nil, s.UpsertCommittee)
	case domain.KindCommitteeMembership:
		return syncRecord(ctx, ids, kind, rec, m.CommitteeMembership, func(e *domain.CommitteeMembership) string {
			if miss := lookupFK(ids, domain.KindCommittee, e.CommitteeExternalID, &e.CommitteeID); miss != "" {
				return miss
			}
			return lookupFK(ids, domain.KindPerson, e.PersonExternalID, &e.PersonID)
		}, s.UpsertCommitteeMembership)
	case domain.KindGovernmentRole:
		return syncRecord(ctx, ids, kind, rec, m.GovernmentRole, func(e *domain.GovernmentRole) string {
			return lookupFK(ids, domain.KindPerson, e.PersonExternalID, &e.PersonID)
		}, s.UpsertGovernmentRole)
	case domain.KindVote:
		return syncRecord(ctx, ids, kind, rec, m.Vote, nil, s.UpsertVote)
	case domain.KindVoteRecord:
		return syncRecord(ctx, ids, kind, rec, m.VoteRecord, func(e *domain.VoteRecord) string {
			if miss := lookupFK(ids, domain.KindVote, e.VoteExternalID, &e.VoteID); miss != "" {
				return miss
			}
			return lookupFK(ids, domain.KindPerson, e.PersonExternalID, &e.PersonID)
		}, s.UpsertVoteRecord)
	default:
		return outcome{err: fmt.Errorf("no handler for entity kind %q", kind)}
	}
}
