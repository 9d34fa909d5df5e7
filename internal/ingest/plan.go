package ingest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/mapping"
	"github.com/moshelati/knesset-data-vote-sub001/internal/odata"
)

// Stage syncs one entity kind from the first live collection among its
// candidates.
type Stage struct {
	Kind       domain.EntityKind
	Candidates []string
	Query      odata.Query
	DependsOn  []domain.EntityKind
}

// DefaultPlan lists the stages in dependency order.
func DefaultPlan() []Stage {
	return []Stage{
		{
			Kind:       domain.KindParty,
			Candidates: []string{mapping.SetFaction, "Faction", "KNS_Factions"},
			Query:      odata.Query{OrderBy: "FactionID asc"},
		},
		{
			Kind:       domain.KindPerson,
			Candidates: []string{mapping.SetPerson, "Person", "KNS_Persons"},
			Query:      odata.Query{OrderBy: "PersonID asc"},
		},
		{
			Kind:       domain.KindMembership,
			Candidates: []string{mapping.SetPersonToPosition, "PersonToPosition"},
			Query:      odata.Query{Filter: "FactionID ne null", OrderBy: "PersonToPositionID asc"},
			DependsOn:  []domain.EntityKind{domain.KindParty, domain.KindPerson},
		},
		{
			Kind:       domain.KindBill,
			Candidates: []string{mapping.SetBill, "Bill", "KNS_Bills"},
			Query:      odata.Query{OrderBy: "BillID asc"},
		},
		{
			Kind:       domain.KindBillRole,
			Candidates: []string{mapping.SetBillInitiator, "BillInitiator"},
			Query:      odata.Query{OrderBy: "BillInitiatorID asc"},
			DependsOn:  []domain.EntityKind{domain.KindBill, domain.KindPerson},
		},
		{
			Kind:       domain.KindCommittee,
			Candidates: []string{mapping.SetCommittee, "Committee", "KNS_Committees"},
			Query:      odata.Query{OrderBy: "CommitteeID asc"},
		},
		{
			Kind:       domain.KindCommitteeMembership,
			Candidates: []string{mapping.SetPersonToPosition, "PersonToPosition"},
			Query:      odata.Query{Filter: "CommitteeID ne null", OrderBy: "PersonToPositionID asc"},
			DependsOn:  []domain.EntityKind{domain.KindCommittee, domain.KindPerson},
		},
		{
			Kind:       domain.KindGovernmentRole,
			Candidates: []string{mapping.SetPersonToPosition, "PersonToPosition"},
			Query:      odata.Query{Filter: "GovMinistryID ne null", OrderBy: "PersonToPositionID asc"},
			DependsOn:  []domain.EntityKind{domain.KindPerson},
		},
		{
			Kind:       domain.KindVote,
			Candidates: []string{mapping.SetVoteHeader, "View_vote_rslts_hdr_approved", "KNS_PlenumVote"},
			Query:      odata.Query{OrderBy: "vote_id asc"},
		},
		{
			Kind:       domain.KindVoteRecord,
			Candidates: []string{mapping.SetVoteRecord, "vote_rslts_kmmbr", "KNS_PlenumVoteResult"},
			Query:      odata.Query{OrderBy: "vote_id asc"},
			DependsOn:  []domain.EntityKind{domain.KindVote, domain.KindPerson},
		},
	}
}

// ValidatePlan rejects duplicate stages and dependencies on stages that are
// unknown or scheduled later.
func ValidatePlan(stages []Stage) error {
	if len(stages) == 0 {
		return errors.New("plan has no stages")
	}
	seen := map[domain.EntityKind]bool{}
	for i, st := range stages {
		if strings.TrimSpace(string(st.Kind)) == "" {
			return fmt.Errorf("stage %d has no entity kind", i)
		}
		if seen[st.Kind] {
			return fmt.Errorf("stage %s is declared twice", st.Kind)
		}
		if len(st.Candidates) == 0 {
			return fmt.Errorf("stage %s has no candidate collections", st.Kind)
		}
		for _, dep := range st.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("stage %s depends on %s, which does not run before it", st.Kind, dep)
			}
		}
		seen[st.Kind] = true
	}
	return nil
}

// Catalog overrides stage candidates: entity kind → ordered collection names.
type Catalog map[domain.EntityKind][]string

func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read collections file: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var doc map[string][]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse collections file: %w", err)
	}
	out := Catalog{}
	for kind, names := range doc {
		clean := make([]string, 0, len(names))
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				clean = append(clean, n)
			}
		}
		if len(clean) == 0 {
			return nil, fmt.Errorf("collections file: stage %s has no names", kind)
		}
		out[domain.EntityKind(strings.TrimSpace(kind))] = clean
	}
	return out, nil
}

// Apply returns a copy of stages with candidates replaced where the catalog
// names the stage. Unknown stage names are an error.
func (c Catalog) Apply(stages []Stage) ([]Stage, error) {
	out := make([]Stage, len(stages))
	copy(out, stages)
	known := map[domain.EntityKind]int{}
	for i, st := range out {
		known[st.Kind] = i
	}
	for kind, names := range c {
		i, ok := known[kind]
		if !ok {
			return nil, fmt.Errorf("collections file names unknown stage %q", kind)
		}
		out[i].Candidates = append([]string(nil), names...)
	}
	return out, nil
}
