package ingest

import (
	"testing"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
)

func TestDefaultPlanIsValid(t *testing.T) {
	plan := DefaultPlan()
	if err := ValidatePlan(plan); err != nil {
		t.Fatalf("ValidatePlan() err=%v", err)
	}
	order := map[domain.EntityKind]int{}
	for i, st := range plan {
		order[st.Kind] = i
	}
	if order[domain.KindParty] > order[domain.KindPerson] || order[domain.KindPerson] > order[domain.KindBill] || order[domain.KindBill] > order[domain.KindVote] {
		t.Fatalf("stages out of dependency order: %v", order)
	}
}

func TestValidatePlanRejectsForwardDependency(t *testing.T) {
	plan := []Stage{
		{Kind: domain.KindMembership, Candidates: []string{"x"}, DependsOn: []domain.EntityKind{domain.KindParty}},
		{Kind: domain.KindParty, Candidates: []string{"y"}},
	}
	if err := ValidatePlan(plan); err == nil {
		t.Fatalf("ValidatePlan() expected error for forward dependency")
	}
	if err := ValidatePlan([]Stage{{Kind: domain.KindParty}}); err == nil {
		t.Fatalf("ValidatePlan() expected error for missing candidates")
	}
	dup := []Stage{{Kind: domain.KindParty, Candidates: []string{"a"}}, {Kind: domain.KindParty, Candidates: []string{"b"}}}
	if err := ValidatePlan(dup); err == nil {
		t.Fatalf("ValidatePlan() expected error for duplicate stage")
	}
}

func TestCatalogOverridesCandidates(t *testing.T) {
	catalog, err := ParseCatalog([]byte("party:\n  - KNS_FactionV2\n  - KNS_Faction\nvote: [KNS_PlenumVote]\n"))
	if err != nil {
		t.Fatalf("ParseCatalog() err=%v", err)
	}
	plan, err := catalog.Apply(DefaultPlan())
	if err != nil {
		t.Fatalf("Apply() err=%v", err)
	}
	for _, st := range plan {
		switch st.Kind {
		case domain.KindParty:
			if len(st.Candidates) != 2 || st.Candidates[0] != "KNS_FactionV2" {
				t.Fatalf("party candidates=%v", st.Candidates)
			}
		case domain.KindVote:
			if len(st.Candidates) != 1 || st.Candidates[0] != "KNS_PlenumVote" {
				t.Fatalf("vote candidates=%v", st.Candidates)
			}
		}
	}
	if DefaultPlan()[0].Candidates[0] != "KNS_Faction" {
		t.Fatalf("Apply must not mutate the default plan")
	}

	unknown, err := ParseCatalog([]byte("lobbyist: [KNS_Lobbyist]\n"))
	if err != nil {
		t.Fatalf("ParseCatalog() err=%v", err)
	}
	if _, err := unknown.Apply(DefaultPlan()); err == nil {
		t.Fatalf("Apply() expected error for unknown stage")
	}
	if _, err := ParseCatalog([]byte("party: []\n")); err == nil {
		t.Fatalf("ParseCatalog() expected error for empty list")
	}
}
