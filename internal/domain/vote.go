package domain

import (
	"errors"
	"strings"
	"time"
)

// VotePosition is how one member cast a ballot.
type VotePosition string

const (
	VotePositionYes        VotePosition = "yes"
	VotePositionNo         VotePosition = "no"
	VotePositionAbstain    VotePosition = "abstain"
	VotePositionDidNotVote VotePosition = "did_not_vote"
)

type VoteOutcome string

const (
	VoteOutcomePassed   VoteOutcome = "passed"
	VoteOutcomeRejected VoteOutcome = "rejected"
	VoteOutcomeUnknown  VoteOutcome = "unknown"
)

// OutcomeSource records how an outcome was derived. Label-derived outcomes
// come from free-text keyword matching and are low confidence.
type OutcomeSource string

const (
	OutcomeSourceTally  OutcomeSource = "tally"
	OutcomeSourceLabels OutcomeSource = "labels"
	OutcomeSourceNone   OutcomeSource = "none"
)

type Vote struct {
	ID string
	Provenance
	KnessetNum    int
	Title         string
	VotedAt       *time.Time
	YesCount      int
	NoCount       int
	AbstainCount  int
	Outcome       VoteOutcome
	OutcomeSource OutcomeSource
}

// VoteRecord is one member's ballot on one vote.
type VoteRecord struct {
	ID string
	Provenance
	VoteExternalID   string
	PersonExternalID string
	VoteID           string
	PersonID         string
	BallotCode       int
	Position         VotePosition
}

func (v Vote) Validate() error {
	return v.Provenance.Validate()
}

func (r VoteRecord) Validate() error {
	if err := r.Provenance.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.VoteID) == "" || strings.TrimSpace(r.PersonID) == "" {
		return errors.New("vote record requires vote and person ids")
	}
	return nil
}
