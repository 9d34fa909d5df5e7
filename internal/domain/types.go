package domain

import (
	"errors"
	"strings"
	"time"
)

// EntityKind names one category of synced records.
type EntityKind string

const (
	KindParty               EntityKind = "party"
	KindPerson              EntityKind = "person"
	KindMembership          EntityKind = "membership"
	KindBill                EntityKind = "bill"
	KindBillRole            EntityKind = "bill_role"
	KindCommittee           EntityKind = "committee"
	KindCommitteeMembership EntityKind = "committee_membership"
	KindGovernmentRole      EntityKind = "government_role"
	KindVote                EntityKind = "vote"
	KindVoteRecord          EntityKind = "vote_record"
)

// ExternalSourceKnesset tags records fetched from the Knesset OData service.
const ExternalSourceKnesset = "knesset_odata"

// UnknownName is stored when no name field is present on a record.
const UnknownName = "Unknown"

// Provenance is carried by every synced entity. (ExternalID, ExternalSource)
// is the upsert key; internal ids are not stable across re-seeding.
type Provenance struct {
	ExternalID     string
	ExternalSource string
	SourceURL      string
	LastSeenAt     time.Time
}

// ExternalKey returns the upstream identifier; every entity embedding
// Provenance exposes it.
func (p Provenance) ExternalKey() string {
	return p.ExternalID
}

func (p Provenance) Validate() error {
	if strings.TrimSpace(p.ExternalID) == "" {
		return errors.New("external id is required")
	}
	if strings.TrimSpace(p.ExternalSource) == "" {
		return errors.New("external source is required")
	}
	return nil
}

// Period is a validity window; a nil End means open-ended.
type Period struct {
	Start *time.Time
	End   *time.Time
}

// Covers reports whether t falls inside the period.
func (p Period) Covers(t time.Time) bool {
	if p.Start != nil && t.Before(*p.Start) {
		return false
	}
	if p.End != nil && t.After(*p.End) {
		return false
	}
	return true
}
