package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
)

type fakeReader struct {
	bills       []domain.Bill
	roles       []domain.BillRole
	memberships []domain.Membership
	err         error
}

func (f *fakeReader) ListBills(context.Context) ([]domain.Bill, error) { return f.bills, f.err }
func (f *fakeReader) ListBillRoles(context.Context) ([]domain.BillRole, error) {
	return f.roles, nil
}
func (f *fakeReader) ListMemberships(context.Context) ([]domain.Membership, error) {
	return f.memberships, nil
}

type fakeWriter struct {
	rows  []domain.PartyTopicAgg
	calls int
	err   error
}

func (f *fakeWriter) ReplacePartyTopicAggs(_ context.Context, rows []domain.PartyTopicAgg) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.rows = rows
	return nil
}

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier([]Topic{
		{Key: "health", Keywords: []string{"בריאות"}},
		{Key: "economy", Keywords: []string{"תקציב"}},
	})
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	return c
}

func fixture() *fakeReader {
	return &fakeReader{
		bills: []domain.Bill{
			{ID: "b1", Name: "חוק בריאות הציבור", Stage: domain.BillStagePassed, Period: domain.Period{Start: day("2020-06-01")}},
			{ID: "b2", Name: "חוק בריאות הנפש", Stage: domain.BillStageSubmitted, Period: domain.Period{Start: day("2023-06-01")}},
			{ID: "b3", Name: "חוק התקציב", Stage: domain.BillStageFirstReading},
			{ID: "b4", Name: "חוק שעות עבודה", Stage: domain.BillStagePassed},
		},
		roles: []domain.BillRole{
			{BillID: "b1", PersonID: "p1", Role: domain.BillRoleInitiator},
			{BillID: "b1", PersonID: "p2", Role: domain.BillRoleCosponsor},
			{BillID: "b2", PersonID: "p1", Role: domain.BillRoleInitiator},
			{BillID: "b3", PersonID: "p2", Role: domain.BillRoleInitiator},
			{BillID: "b4", PersonID: "p1", Role: domain.BillRoleInitiator},
			{BillID: "missing", PersonID: "p1", Role: domain.BillRoleInitiator},
			{BillID: "b1", PersonID: "p3", Role: domain.BillRoleInitiator},
		},
		memberships: []domain.Membership{
			// p1 moved from party A to party B in 2022.
			{PersonID: "p1", PartyID: "A", Period: domain.Period{Start: day("2019-01-01"), End: day("2021-12-31")}},
			{PersonID: "p1", PartyID: "B", Period: domain.Period{Start: day("2022-01-01")}, IsCurrent: true},
			{PersonID: "p2", PartyID: "B", IsCurrent: true},
		},
	}
}

func TestComputeAttributesByBillDate(t *testing.T) {
	reader := fixture()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := Compute(reader.bills, reader.roles, reader.memberships, testClassifier(t), now)

	type key struct{ party, topic string }
	got := map[key]domain.PartyTopicAgg{}
	for _, r := range rows {
		got[key{r.PartyID, r.Topic}] = r
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %+v", rows)
	}

	// A: b1 initiator (5). B: b1 cosponsor (2.5) + b2 initiator (1).
	a := got[key{"A", "health"}]
	if a.RawScore != 5 || a.BillCount != 1 {
		t.Fatalf("unexpected A/health row: %+v", a)
	}
	b := got[key{"B", "health"}]
	if b.RawScore != 3.5 || b.BillCount != 2 {
		t.Fatalf("unexpected B/health row: %+v", b)
	}
	if a.NormalizedScore != 1 || b.NormalizedScore != 0 {
		t.Fatalf("unexpected normalized scores: A=%v B=%v", a.NormalizedScore, b.NormalizedScore)
	}
	econ := got[key{"B", "economy"}]
	if econ.RawScore != 2 || econ.NormalizedScore != 1 {
		t.Fatalf("unexpected B/economy row: %+v", econ)
	}
	if !a.ComputedAt.Equal(now) {
		t.Fatalf("expected computed_at %v, got %v", now, a.ComputedAt)
	}
}

func TestEngineRunReplacesAggregates(t *testing.T) {
	writer := &fakeWriter{}
	engine, err := NewEngine(nil, fixture(), writer, testClassifier(t))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	rows, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if writer.calls != 1 || len(writer.rows) != len(rows) || len(rows) != 3 {
		t.Fatalf("expected one replace with 3 rows, got calls=%d rows=%d", writer.calls, len(writer.rows))
	}
}

func TestEngineRunErrors(t *testing.T) {
	readErr := errors.New("db down")
	engine, _ := NewEngine(nil, &fakeReader{err: readErr}, &fakeWriter{}, testClassifier(t))
	if _, err := engine.Run(context.Background()); !errors.Is(err, readErr) {
		t.Fatalf("expected read error, got %v", err)
	}

	writeErr := errors.New("tx aborted")
	engine, _ = NewEngine(nil, fixture(), &fakeWriter{err: writeErr}, testClassifier(t))
	if _, err := engine.Run(context.Background()); !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestNewEngineRequiresDeps(t *testing.T) {
	c := testClassifier(t)
	if _, err := NewEngine(nil, nil, &fakeWriter{}, c); err == nil {
		t.Fatalf("expected error without reader")
	}
	if _, err := NewEngine(nil, &fakeReader{}, nil, c); err == nil {
		t.Fatalf("expected error without writer")
	}
	if _, err := NewEngine(nil, &fakeReader{}, &fakeWriter{}, nil); err == nil {
		t.Fatalf("expected error without classifier")
	}
}
