package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	pgplatform "github.com/moshelati/knesset-data-vote-sub001/internal/platform/postgres"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo"
)

// Every upsert returns the row id and whether the row was inserted; xmax is
// zero only for a freshly inserted tuple.
const (
	upsertPartyQuery = `INSERT INTO parties (
			id, external_id, external_source, source_url, last_seen_at,
			name, knesset_num, start_date, end_date, is_current
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (external_id, external_source) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			name = EXCLUDED.name,
			knesset_num = EXCLUDED.knesset_num,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			is_current = EXCLUDED.is_current
		RETURNING id, (xmax = 0) AS created`

	upsertPersonQuery = `INSERT INTO persons (
			id, external_id, external_source, source_url, last_seen_at,
			first_name, last_name, full_name, gender, email, is_current
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (external_id, external_source) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			full_name = EXCLUDED.full_name,
			gender = EXCLUDED.gender,
			email = EXCLUDED.email,
			is_current = EXCLUDED.is_current
		RETURNING id, (xmax = 0) AS created`

	upsertMembershipQuery = `INSERT INTO party_memberships (
			id, external_id, external_source, source_url, last_seen_at,
			person_id, party_id, knesset_num, start_date, end_date, is_current
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (external_id, external_source) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			person_id = EXCLUDED.person_id,
			party_id = EXCLUDED.party_id,
			knesset_num = EXCLUDED.knesset_num,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			is_current = EXCLUDED.is_current
		RETURNING id, (xmax = 0) AS created`

	// One active membership per person per term is kept here rather than by a
	// constraint.
	clearOtherMembershipsQuery = `UPDATE party_memberships
		SET is_current = FALSE
		WHERE person_id = $1 AND knesset_num = $2 AND id <> $3 AND is_current`

	// Serializes membership writes for one person until the transaction ends.
	lockPersonMembershipsQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

	upsertBillQuery = `INSERT INTO bills (
			id, external_id, external_source, source_url, last_seen_at,
			name, knesset_num, sub_type, status_id, stage, published_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (external_id, external_source) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			name = EXCLUDED.name,
			knesset_num = EXCLUDED.knesset_num,
			sub_type = EXCLUDED.sub_type,
			status_id = EXCLUDED.status_id,
			stage = EXCLUDED.stage,
			published_at = EXCLUDED.published_at
		RETURNING id, (xmax = 0) AS created`

	upsertBillRoleQuery = `INSERT INTO bill_roles (
			id, external_id, external_source, source_url, last_seen_at,
			bill_id, person_id, role, ordinal
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (external_id, external_source) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			bill_id = EXCLUDED.bill_id,
			person_id = EXCLUDED.person_id,
			role = EXCLUDED.role,
			ordinal = EXCLUDED.ordinal
		RETURNING id, (xmax = 0) AS created`

	upsertCommitteeQuery = `INSERT INTO committees (
			id, external_id, external_source, source_url, last_seen_at,
			name, knesset_num, category, committee_type, start_date, end_date, is_current
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (external_id, external_source) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			name = EXCLUDED.name,
			knesset_num = EXCLUDED.knesset_num,
			category = EXCLUDED.category,
			committee_type = EXCLUDED.committee_type,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			is_current = EXCLUDED.is_current
		RETURNING id, (xmax = 0) AS created`

	upsertCommitteeMembershipQuery = `INSERT INTO committee_memberships (
			id, external_id, external_source, source_url, last_seen_at,
			committee_id, person_id, duty, knesset_num, start_date, end_date, is_current
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (external_id, external_source) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			committee_id = EXCLUDED.committee_id,
			person_id = EXCLUDED.person_id,
			duty = EXCLUDED.duty,
			knesset_num = EXCLUDED.knesset_num,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			is_current = EXCLUDED.is_current
		RETURNING id, (xmax = 0) AS created`

	upsertGovernmentRoleQuery = `INSERT INTO government_roles (
			id, external_id, external_source, source_url, last_seen_at,
			person_id, position_id, position_label, ministry, government_num,
			start_date, end_date, is_current
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (external_id, external_source) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			person_id = EXCLUDED.person_id,
			position_id = EXCLUDED.position_id,
			position_label = EXCLUDED.position_label,
			ministry = EXCLUDED.ministry,
			government_num = EXCLUDED.government_num,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			is_current = EXCLUDED.is_current
		RETURNING id, (xmax = 0) AS created`

	upsertVoteQuery = `INSERT INTO votes (
			id, external_id, external_source, source_url, last_seen_at,
			knesset_num, title, voted_at, yes_count, no_count, abstain_count,
			outcome, outcome_source
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (external_id, external_source) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			knesset_num = EXCLUDED.knesset_num,
			title = EXCLUDED.title,
			voted_at = EXCLUDED.voted_at,
			yes_count = EXCLUDED.yes_count,
			no_count = EXCLUDED.no_count,
			abstain_count = EXCLUDED.abstain_count,
			outcome = EXCLUDED.outcome,
			outcome_source = EXCLUDED.outcome_source
		RETURNING id, (xmax = 0) AS created`

	upsertVoteRecordQuery = `INSERT INTO vote_records (
			id, external_id, external_source, source_url, last_seen_at,
			vote_id, person_id, ballot_code, position
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (external_id, external_source) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = EXCLUDED.last_seen_at,
			vote_id = EXCLUDED.vote_id,
			person_id = EXCLUDED.person_id,
			ballot_code = EXCLUDED.ballot_code,
			position = EXCLUDED.position
		RETURNING id, (xmax = 0) AS created`
)

// EntityStore implements repo.EntityStore, repo.ExternalIDIndex and
// repo.ScoringReader.
type EntityStore struct {
	db    DB
	newID func() string
}

func NewEntityStore(db DB) *EntityStore {
	if db == nil {
		return nil
	}
	return &EntityStore{db: db, newID: uuid.NewString}
}

func (s *EntityStore) upsert(ctx context.Context, what string, query string, prov domain.Provenance, args ...any) (repo.UpsertResult, error) {
	if s == nil || s.db == nil {
		return repo.UpsertResult{}, fmt.Errorf("entity store not initialized")
	}
	return s.upsertOn(ctx, s.db, what, query, prov, args...)
}

func (s *EntityStore) upsertOn(ctx context.Context, db DB, what string, query string, prov domain.Provenance, args ...any) (repo.UpsertResult, error) {
	if err := prov.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	full := make([]any, 0, len(args)+5)
	full = append(full,
		s.newID(),
		strings.TrimSpace(prov.ExternalID),
		strings.TrimSpace(prov.ExternalSource),
		nullString(prov.SourceURL),
		normalizeTime(prov.LastSeenAt),
	)
	full = append(full, args...)

	var out repo.UpsertResult
	if err := db.QueryRowContext(ctx, query, full...).Scan(&out.ID, &out.Created); err != nil {
		return repo.UpsertResult{}, fmt.Errorf("upsert %s %s: %w", what, prov.ExternalID, err)
	}
	return out, nil
}

func (s *EntityStore) UpsertParty(ctx context.Context, e domain.Party) (repo.UpsertResult, error) {
	return s.upsert(ctx, "party", upsertPartyQuery, e.Provenance,
		e.Name, e.KnessetNum, nullTime(e.Start), nullTime(e.End), e.IsCurrent)
}

func (s *EntityStore) UpsertPerson(ctx context.Context, e domain.Person) (repo.UpsertResult, error) {
	return s.upsert(ctx, "person", upsertPersonQuery, e.Provenance,
		nullString(e.FirstName), nullString(e.LastName), e.FullName, nullString(e.Gender), nullString(e.Email), e.IsCurrent)
}

// UpsertMembership writes the membership and, when it is current, clears
// is_current on the person's other memberships in the same term. Both
// statements run in one transaction holding a per-person advisory lock. A store
// bound to an existing transaction runs them inside it.
func (s *EntityStore) UpsertMembership(ctx context.Context, e domain.Membership) (repo.UpsertResult, error) {
	if s == nil || s.db == nil {
		return repo.UpsertResult{}, fmt.Errorf("entity store not initialized")
	}
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	var res repo.UpsertResult
	write := func(tx DB) error {
		if _, err := tx.ExecContext(ctx, lockPersonMembershipsQuery, e.PersonID); err != nil {
			return fmt.Errorf("lock memberships of %s: %w", e.PersonID, err)
		}
		out, err := s.upsertOn(ctx, tx, "membership", upsertMembershipQuery, e.Provenance,
			e.PersonID, e.PartyID, e.KnessetNum, nullTime(e.Start), nullTime(e.End), e.IsCurrent)
		if err != nil {
			return err
		}
		if e.IsCurrent {
			if _, err := tx.ExecContext(ctx, clearOtherMembershipsQuery, e.PersonID, e.KnessetNum, out.ID); err != nil {
				return fmt.Errorf("clear other memberships: %w", err)
			}
		}
		res = out
		return nil
	}

	db, ok := s.db.(*sql.DB)
	if !ok {
		if err := write(s.db); err != nil {
			return repo.UpsertResult{}, err
		}
		return res, nil
	}
	if err := pgplatform.InTx(ctx, db, func(tx *sql.Tx) error { return write(tx) }); err != nil {
		return repo.UpsertResult{}, err
	}
	return res, nil
}

func (s *EntityStore) UpsertBill(ctx context.Context, e domain.Bill) (repo.UpsertResult, error) {
	return s.upsert(ctx, "bill", upsertBillQuery, e.Provenance,
		e.Name, e.KnessetNum, nullString(e.SubType), e.StatusID, string(e.Stage), nullTime(e.Start))
}

func (s *EntityStore) UpsertBillRole(ctx context.Context, e domain.BillRole) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	return s.upsert(ctx, "bill role", upsertBillRoleQuery, e.Provenance,
		e.BillID, e.PersonID, string(e.Role), e.Ordinal)
}

func (s *EntityStore) UpsertCommittee(ctx context.Context, e domain.Committee) (repo.UpsertResult, error) {
	return s.upsert(ctx, "committee", upsertCommitteeQuery, e.Provenance,
		e.Name, e.KnessetNum, nullString(e.Category), nullString(e.CommitteeType), nullTime(e.Start), nullTime(e.End), e.IsCurrent)
}

func (s *EntityStore) UpsertCommitteeMembership(ctx context.Context, e domain.CommitteeMembership) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	return s.upsert(ctx, "committee membership", upsertCommitteeMembershipQuery, e.Provenance,
		e.CommitteeID, e.PersonID, nullString(e.Duty), e.KnessetNum, nullTime(e.Start), nullTime(e.End), e.IsCurrent)
}

func (s *EntityStore) UpsertGovernmentRole(ctx context.Context, e domain.GovernmentRole) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	return s.upsert(ctx, "government role", upsertGovernmentRoleQuery, e.Provenance,
		e.PersonID, e.PositionID, e.PositionLabel, nullString(e.Ministry), e.GovernmentNum, nullTime(e.Start), nullTime(e.End), e.IsCurrent)
}

func (s *EntityStore) UpsertVote(ctx context.Context, e domain.Vote) (repo.UpsertResult, error) {
	return s.upsert(ctx, "vote", upsertVoteQuery, e.Provenance,
		e.KnessetNum, e.Title, nullTime(e.VotedAt), e.YesCount, e.NoCount, e.AbstainCount, string(e.Outcome), string(e.OutcomeSource))
}

func (s *EntityStore) UpsertVoteRecord(ctx context.Context, e domain.VoteRecord) (repo.UpsertResult, error) {
	if err := e.Validate(); err != nil {
		return repo.UpsertResult{}, err
	}
	return s.upsert(ctx, "vote record", upsertVoteRecordQuery, e.Provenance,
		e.VoteID, e.PersonID, e.BallotCode, string(e.Position))
}

func (s *EntityStore) ExternalIDs(ctx context.Context, kind domain.EntityKind, source string) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("entity store not initialized")
	}
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT external_id, id FROM `+table+` WHERE external_source = $1`, source)
	if err != nil {
		return nil, fmt.Errorf("list %s external ids: %w", kind, err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var externalID, id string
		if err := rows.Scan(&externalID, &id); err != nil {
			return nil, fmt.Errorf("scan %s external id: %w", kind, err)
		}
		out[externalID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s external ids: %w", kind, err)
	}
	return out, nil
}
