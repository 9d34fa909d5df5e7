package domain

import (
	"errors"
	"strings"
)

type Party struct {
	ID string
	Provenance
	Name       string
	KnessetNum int
	Period
	IsCurrent bool
}

// Person is a Knesset member ("MK") or minister.
type Person struct {
	ID string
	Provenance
	FirstName string
	LastName  string
	FullName  string
	Gender    string
	Email     string
	IsCurrent bool
}

// Membership ties a person to a party for a Knesset term.
type Membership struct {
	ID string
	Provenance
	PersonExternalID string
	PartyExternalID  string
	PersonID         string
	PartyID          string
	KnessetNum       int
	Period
	IsCurrent bool
}

type Bill struct {
	ID string
	Provenance
	Name       string
	KnessetNum int
	SubType    string
	StatusID   int
	Stage      BillStage
	Period
}

// BillRoleKind is the part a person played on a bill.
type BillRoleKind string

const (
	BillRoleInitiator BillRoleKind = "initiator"
	BillRoleCosponsor BillRoleKind = "cosponsor"
)

type BillRole struct {
	ID string
	Provenance
	BillExternalID   string
	PersonExternalID string
	BillID           string
	PersonID         string
	Role             BillRoleKind
	Ordinal          int
}

type Committee struct {
	ID string
	Provenance
	Name          string
	KnessetNum    int
	Category      string
	CommitteeType string
	Period
	IsCurrent bool
}

type CommitteeMembership struct {
	ID string
	Provenance
	CommitteeExternalID string
	PersonExternalID    string
	CommitteeID         string
	PersonID            string
	Duty                string
	KnessetNum          int
	Period
	IsCurrent bool
}

type GovernmentRole struct {
	ID string
	Provenance
	PersonExternalID string
	PersonID         string
	PositionID       int
	PositionLabel    string
	Ministry         string
	GovernmentNum    int
	Period
	IsCurrent bool
}

func (e Party) Validate() error {
	return e.Provenance.Validate()
}

func (e Person) Validate() error {
	return e.Provenance.Validate()
}

func (e Membership) Validate() error {
	if err := e.Provenance.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.PersonID) == "" || strings.TrimSpace(e.PartyID) == "" {
		return errors.New("membership requires person and party ids")
	}
	return nil
}

func (e Bill) Validate() error {
	return e.Provenance.Validate()
}

func (e BillRole) Validate() error {
	if err := e.Provenance.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.BillID) == "" || strings.TrimSpace(e.PersonID) == "" {
		return errors.New("bill role requires bill and person ids")
	}
	switch e.Role {
	case BillRoleInitiator, BillRoleCosponsor:
	default:
		return errors.New("bill role kind is invalid")
	}
	return nil
}

func (e Committee) Validate() error {
	return e.Provenance.Validate()
}

func (e CommitteeMembership) Validate() error {
	if err := e.Provenance.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.CommitteeID) == "" || strings.TrimSpace(e.PersonID) == "" {
		return errors.New("committee membership requires committee and person ids")
	}
	return nil
}

func (e GovernmentRole) Validate() error {
	if err := e.Provenance.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.PersonID) == "" {
		return errors.New("government role requires person id")
	}
	return nil
}
