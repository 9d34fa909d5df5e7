package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	pgplatform "github.com/moshelati/knesset-data-vote-sub001/internal/platform/postgres"
)

const (
	selectBillsQuery = `SELECT id, external_id, external_source, name, knesset_num, status_id, stage, published_at
		FROM bills`
	selectBillRolesQuery = `SELECT id, external_id, external_source, bill_id, person_id, role
		FROM bill_roles`
	selectMembershipsQuery = `SELECT id, external_id, external_source, person_id, party_id, knesset_num, start_date, end_date, is_current
		FROM party_memberships`
	deletePartyTopicAggsQuery = `DELETE FROM party_topic_aggs`
	insertPartyTopicAggQuery  = `INSERT INTO party_topic_aggs (
			party_id, topic, raw_score, bill_count, normalized_score, computed_at
		) VALUES ($1,$2,$3,$4,$5,$6)`
)

func (s *EntityStore) ListBills(ctx context.Context) ([]domain.Bill, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("entity store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, selectBillsQuery)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var out []domain.Bill
	for rows.Next() {
		var (
			b         domain.Bill
			stage     string
			published sql.NullTime
		)
		if err := rows.Scan(&b.ID, &b.ExternalID, &b.ExternalSource, &b.Name, &b.KnessetNum, &b.StatusID, &stage, &published); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		b.Stage = domain.BillStage(stage)
		b.Start = timePtr(published)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}
	return out, nil
}

func (s *EntityStore) ListBillRoles(ctx context.Context) ([]domain.BillRole, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("entity store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, selectBillRolesQuery)
	if err != nil {
		return nil, fmt.Errorf("list bill roles: %w", err)
	}
	defer rows.Close()

	var out []domain.BillRole
	for rows.Next() {
		var (
			r    domain.BillRole
			role string
		)
		if err := rows.Scan(&r.ID, &r.ExternalID, &r.ExternalSource, &r.BillID, &r.PersonID, &role); err != nil {
			return nil, fmt.Errorf("scan bill role: %w", err)
		}
		r.Role = domain.BillRoleKind(role)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bill roles: %w", err)
	}
	return out, nil
}

func (s *EntityStore) ListMemberships(ctx context.Context) ([]domain.Membership, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("entity store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, selectMembershipsQuery)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []domain.Membership
	for rows.Next() {
		var (
			m          domain.Membership
			start, end sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.ExternalID, &m.ExternalSource, &m.PersonID, &m.PartyID, &m.KnessetNum, &start, &end, &m.IsCurrent); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Start = timePtr(start)
		m.End = timePtr(end)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return out, nil
}

// AggregateStore rewrites party_topic_aggs.
type AggregateStore struct {
	db *sql.DB
}

func NewAggregateStore(db *sql.DB) *AggregateStore {
	if db == nil {
		return nil
	}
	return &AggregateStore{db: db}
}

// ReplacePartyTopicAggs deletes every row and inserts rows in one transaction.
func (s *AggregateStore) ReplacePartyTopicAggs(ctx context.Context, rows []domain.PartyTopicAgg) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("aggregate store not initialized")
	}
	return pgplatform.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deletePartyTopicAggsQuery); err != nil {
			return fmt.Errorf("clear party topic aggs: %w", err)
		}
		for _, row := range rows {
			if _, err := tx.ExecContext(ctx, insertPartyTopicAggQuery,
				row.PartyID, row.Topic, row.RawScore, row.BillCount, row.NormalizedScore, normalizeTime(row.ComputedAt),
			); err != nil {
				return fmt.Errorf("insert party topic agg %s/%s: %w", row.PartyID, row.Topic, err)
			}
		}
		return nil
	})
}
