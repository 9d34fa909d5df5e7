package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo"
)

// Compute accumulates RoleMultiplier(PointsForStage) per (party, topic). A
// member's party is the membership covering the bill's date, else their
// current membership; roles with no resolvable party or topic are ignored.
func Compute(bills []domain.Bill, roles []domain.BillRole, memberships []domain.Membership, classifier *Classifier, now time.Time) []domain.PartyTopicAgg {
	billsByID := make(map[string]domain.Bill, len(bills))
	for _, b := range bills {
		billsByID[b.ID] = b
	}
	byPerson := map[string][]domain.Membership{}
	for _, m := range memberships {
		byPerson[m.PersonID] = append(byPerson[m.PersonID], m)
	}

	type cell struct {
		raw   float64
		bills map[string]bool
	}
	cells := map[[2]string]*cell{}
	for _, role := range roles {
		bill, ok := billsByID[role.BillID]
		if !ok {
			continue
		}
		topics := classifier.Classify(bill.Name)
		if len(topics) == 0 {
			continue
		}
		partyID, ok := partyFor(byPerson[role.PersonID], bill.Start)
		if !ok {
			continue
		}
		points := RoleMultiplier(PointsForStage(string(bill.Stage)), string(role.Role))
		for _, topic := range topics {
			k := [2]string{partyID, topic}
			c := cells[k]
			if c == nil {
				c = &cell{bills: map[string]bool{}}
				cells[k] = c
			}
			c.raw += points
			c.bills[bill.ID] = true
		}
	}

	rows := make([]domain.PartyTopicAgg, 0, len(cells))
	for k, c := range cells {
		rows = append(rows, domain.PartyTopicAgg{
			PartyID:    k[0],
			Topic:      k[1],
			RawScore:   c.raw,
			BillCount:  len(c.bills),
			ComputedAt: now.UTC(),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PartyID != rows[j].PartyID {
			return rows[i].PartyID < rows[j].PartyID
		}
		return rows[i].Topic < rows[j].Topic
	})

	normalized := Normalize(rows, classifier.Keys())
	for i := range rows {
		rows[i].NormalizedScore = normalized[rows[i].PartyID][rows[i].Topic]
	}
	return rows
}

func partyFor(memberships []domain.Membership, at *time.Time) (string, bool) {
	if at != nil {
		var best *domain.Membership
		for i := range memberships {
			m := &memberships[i]
			if !m.Covers(*at) {
				continue
			}
			if best == nil || startOf(m).After(startOf(best)) {
				best = m
			}
		}
		if best != nil {
			return best.PartyID, true
		}
	}
	for _, m := range memberships {
		if m.IsCurrent {
			return m.PartyID, true
		}
	}
	return "", false
}

func startOf(m *domain.Membership) time.Time {
	if m.Start == nil {
		return time.Time{}
	}
	return *m.Start
}

// Engine runs the aggregation batch against persisted entities.
type Engine struct {
	logger     *slog.Logger
	reader     repo.ScoringReader
	writer     repo.AggregateWriter
	classifier *Classifier
	now        func() time.Time
}

func NewEngine(logger *slog.Logger, reader repo.ScoringReader, writer repo.AggregateWriter, classifier *Classifier) (*Engine, error) {
	switch {
	case reader == nil:
		return nil, errors.New("scoring reader is required")
	case writer == nil:
		return nil, errors.New("aggregate writer is required")
	case classifier == nil:
		return nil, errors.New("classifier is required")
	}
	return &Engine{logger: logger, reader: reader, writer: writer, classifier: classifier, now: time.Now}, nil
}

// Run recomputes party_topic_aggs wholesale.
func (e *Engine) Run(ctx context.Context) ([]domain.PartyTopicAgg, error) {
	bills, err := e.reader.ListBills(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bills: %w", err)
	}
	roles, err := e.reader.ListBillRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bill roles: %w", err)
	}
	memberships, err := e.reader.ListMemberships(ctx)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}

	rows := Compute(bills, roles, memberships, e.classifier, e.now())
	if err := e.writer.ReplacePartyTopicAggs(ctx, rows); err != nil {
		return nil, fmt.Errorf("write party topic aggs: %w", err)
	}
	if e.logger != nil {
		e.logger.Info("aggregation finished",
			"bills", len(bills),
			"bill_roles", len(roles),
			"memberships", len(memberships),
			"rows", len(rows),
		)
	}
	return rows, nil
}
