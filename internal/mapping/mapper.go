package mapping

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/odata"
)

// Canonical entity-set names used in source URLs. The set a stage actually
// reads from may be spelled differently; provenance links use these.
const (
	SetFaction          = "KNS_Faction"
	SetPerson           = "KNS_Person"
	SetPersonToPosition = "KNS_PersonToPosition"
	SetBill             = "KNS_Bill"
	SetBillInitiator    = "KNS_BillInitiator"
	SetCommittee        = "KNS_Committee"
	SetVoteHeader       = "View_vote_rslts_hdr_Approved"
	SetVoteRecord       = "vote_rslts_kmmbr_shadow"
)

// Field alternatives, most specific spelling first.
var (
	partyIDKeys        = []string{"FactionID", "FactionId", "faction_id", "Id", "ID", "id"}
	personIDKeys       = []string{"PersonID", "PersonId", "person_id", "mk_individual_id", "kmmbr_id", "MkId"}
	positionRowIDKeys  = []string{"PersonToPositionID", "PersonToPositionId", "person_to_position_id", "Id", "ID", "id"}
	billIDKeys         = []string{"BillID", "BillId", "bill_id", "Id", "ID", "id"}
	billInitiatorKeys  = []string{"BillInitiatorID", "BillInitiatorId", "bill_initiator_id", "Id", "ID", "id"}
	committeeIDKeys    = []string{"CommitteeID", "CommitteeId", "committee_id", "Id", "ID", "id"}
	voteIDKeys         = []string{"vote_id", "VoteID", "VoteId", "Id", "ID", "id"}
	voteRecordVoteKeys = []string{"vote_id", "VoteID", "VoteId"}
	voteRecordMKKeys   = []string{"kmmbr_id", "PersonID", "PersonId", "MkId", "mk_id"}

	knessetNumKeys = []string{"KnessetNum", "knesset_num", "KnessetNumber"}
	startKeys      = []string{"StartDate", "start_date", "StartDateTime"}
	endKeys        = []string{"FinishDate", "EndDate", "finish_date", "end_date"}
	currentKeys    = []string{"IsCurrent", "is_current", "IsActive"}
)

// Mapper turns raw records into entities. It holds no per-record state and is
// safe for concurrent use.
type Mapper struct {
	baseURL string
	now     func() time.Time
}

func New(baseURL string) *Mapper {
	return &Mapper{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), now: time.Now}
}

// WithClock returns a copy of m stamping last_seen_at from now.
func (m *Mapper) WithClock(now func() time.Time) *Mapper {
	out := *m
	out.now = now
	return &out
}

// SourceURL builds the provenance link <base>/<set>(<id>).
func (m *Mapper) SourceURL(set, id string) string {
	return m.baseURL + "/" + set + "(" + url.PathEscape(id) + ")"
}

func (m *Mapper) provenance(set, id string) domain.Provenance {
	return domain.Provenance{
		ExternalID:     id,
		ExternalSource: domain.ExternalSourceKnesset,
		SourceURL:      m.SourceURL(set, id),
		LastSeenAt:     m.now().UTC(),
	}
}

func period(rec odata.Record) domain.Period {
	start, _ := timestamp(rec, startKeys)
	end, _ := timestamp(rec, endKeys)
	return domain.Period{Start: start, End: end}
}

func (m *Mapper) Party(rec odata.Record) (domain.Party, error) {
	id, err := requireIdentifier(rec, "party id", partyIDKeys)
	if err != nil {
		return domain.Party{}, err
	}
	return domain.Party{
		Provenance: m.provenance(SetFaction, id),
		Name:       textOr(rec, []string{"Name", "FactionName", "faction_name", "name"}, domain.UnknownName),
		KnessetNum: integerOr(rec, knessetNumKeys, 0),
		Period:     period(rec),
		IsCurrent:  isCurrent(rec, currentKeys, endKeys),
	}, nil
}

func (m *Mapper) Person(rec odata.Record) (domain.Person, error) {
	id, err := requireIdentifier(rec, "person id", personIDKeys)
	if err != nil {
		return domain.Person{}, err
	}
	first, _ := text(rec, []string{"FirstName", "first_name", "mk_individual_first_name"})
	last, _ := text(rec, []string{"LastName", "last_name", "mk_individual_name"})
	full, ok := text(rec, []string{"FullName", "full_name", "Name"})
	if !ok {
		full = strings.TrimSpace(first + " " + last)
	}
	if full == "" {
		full = domain.UnknownName
	}
	return domain.Person{
		Provenance: m.provenance(SetPerson, id),
		FirstName:  first,
		LastName:   last,
		FullName:   full,
		Gender:     textOr(rec, []string{"GenderDesc", "gender_desc", "Gender"}, ""),
		Email:      textOr(rec, []string{"Email", "email"}, ""),
		IsCurrent:  isCurrent(rec, currentKeys, endKeys),
	}, nil
}

// Membership maps a person-to-position row carrying a faction id.
func (m *Mapper) Membership(rec odata.Record) (domain.Membership, error) {
	id, err := requireIdentifier(rec, "membership id", positionRowIDKeys)
	if err != nil {
		return domain.Membership{}, err
	}
	personID, err := requireIdentifier(rec, "membership person id", personIDKeys)
	if err != nil {
		return domain.Membership{}, err
	}
	partyID, err := requireIdentifier(rec, "membership faction id", []string{"FactionID", "FactionId", "faction_id"})
	if err != nil {
		return domain.Membership{}, err
	}
	return domain.Membership{
		Provenance:       m.provenance(SetPersonToPosition, id),
		PersonExternalID: personID,
		PartyExternalID:  partyID,
		KnessetNum:       integerOr(rec, knessetNumKeys, 0),
		Period:           period(rec),
		IsCurrent:        isCurrent(rec, currentKeys, endKeys),
	}, nil
}

func (m *Mapper) Bill(rec odata.Record) (domain.Bill, error) {
	id, err := requireIdentifier(rec, "bill id", billIDKeys)
	if err != nil {
		return domain.Bill{}, err
	}
	statusID := integerOr(rec, []string{"StatusID", "StatusId", "status_id"}, 0)
	publishedAt, _ := timestamp(rec, []string{"PublicationDate", "publication_date", "LastUpdatedDate"})
	return domain.Bill{
		Provenance: m.provenance(SetBill, id),
		Name:       textOr(rec, []string{"Name", "name", "BillName"}, domain.UnknownName),
		KnessetNum: integerOr(rec, knessetNumKeys, 0),
		SubType:    textOr(rec, []string{"SubTypeDesc", "sub_type_desc", "SubType"}, ""),
		StatusID:   statusID,
		Stage:      StageForStatus(statusID),
		Period:     domain.Period{Start: publishedAt},
	}, nil
}

// BillRole maps a bill-initiator row. Rows flagged as non-initiators are
// cosponsors.
func (m *Mapper) BillRole(rec odata.Record) (domain.BillRole, error) {
	id, err := requireIdentifier(rec, "bill initiator id", billInitiatorKeys)
	if err != nil {
		return domain.BillRole{}, err
	}
	billID, err := requireIdentifier(rec, "bill initiator bill id", []string{"BillID", "BillId", "bill_id"})
	if err != nil {
		return domain.BillRole{}, err
	}
	personID, err := requireIdentifier(rec, "bill initiator person id", personIDKeys)
	if err != nil {
		return domain.BillRole{}, err
	}
	role := domain.BillRoleInitiator
	if initiator, ok := boolean(rec, []string{"IsInitiator", "is_initiator"}); ok && !initiator {
		role = domain.BillRoleCosponsor
	}
	return domain.BillRole{
		Provenance:       m.provenance(SetBillInitiator, id),
		BillExternalID:   billID,
		PersonExternalID: personID,
		Role:             role,
		Ordinal:          integerOr(rec, []string{"Ordinal", "ordinal"}, 0),
	}, nil
}

func (m *Mapper) Committee(rec odata.Record) (domain.Committee, error) {
	id, err := requireIdentifier(rec, "committee id", committeeIDKeys)
	if err != nil {
		return domain.Committee{}, err
	}
	return domain.Committee{
		Provenance:    m.provenance(SetCommittee, id),
		Name:          textOr(rec, []string{"Name", "CommitteeName", "committee_name", "name"}, domain.UnknownName),
		KnessetNum:    integerOr(rec, knessetNumKeys, 0),
		Category:      textOr(rec, []string{"CategoryDesc", "category_desc"}, ""),
		CommitteeType: textOr(rec, []string{"CommitteeTypeDesc", "committee_type_desc"}, ""),
		Period:        period(rec),
		IsCurrent:     isCurrent(rec, currentKeys, endKeys),
	}, nil
}

// CommitteeMembership maps a person-to-position row carrying a committee id.
func (m *Mapper) CommitteeMembership(rec odata.Record) (domain.CommitteeMembership, error) {
	id, err := requireIdentifier(rec, "committee membership id", positionRowIDKeys)
	if err != nil {
		return domain.CommitteeMembership{}, err
	}
	personID, err := requireIdentifier(rec, "committee membership person id", personIDKeys)
	if err != nil {
		return domain.CommitteeMembership{}, err
	}
	committeeID, err := requireIdentifier(rec, "committee membership committee id", []string{"CommitteeID", "CommitteeId", "committee_id"})
	if err != nil {
		return domain.CommitteeMembership{}, err
	}
	return domain.CommitteeMembership{
		Provenance:          m.provenance(SetPersonToPosition, id),
		CommitteeExternalID: committeeID,
		PersonExternalID:    personID,
		Duty:                textOr(rec, []string{"DutyDesc", "duty_desc"}, ""),
		KnessetNum:          integerOr(rec, knessetNumKeys, 0),
		Period:              period(rec),
		IsCurrent:           isCurrent(rec, currentKeys, endKeys),
	}, nil
}

// GovernmentRole maps a person-to-position row carrying a ministry.
func (m *Mapper) GovernmentRole(rec odata.Record) (domain.GovernmentRole, error) {
	id, err := requireIdentifier(rec, "government role id", positionRowIDKeys)
	if err != nil {
		return domain.GovernmentRole{}, err
	}
	personID, err := requireIdentifier(rec, "government role person id", personIDKeys)
	if err != nil {
		return domain.GovernmentRole{}, err
	}
	positionID := integerOr(rec, []string{"PositionID", "PositionId", "position_id"}, 0)
	return domain.GovernmentRole{
		Provenance:       m.provenance(SetPersonToPosition, id),
		PersonExternalID: personID,
		PositionID:       positionID,
		PositionLabel:    PositionLabel(positionID),
		Ministry:         textOr(rec, []string{"GovMinistryName", "gov_ministry_name", "MinistryName"}, ""),
		GovernmentNum:    integerOr(rec, []string{"GovernmentNum", "government_num"}, 0),
		Period:           period(rec),
		IsCurrent:        isCurrent(rec, currentKeys, endKeys),
	}, nil
}

func (m *Mapper) Vote(rec odata.Record) (domain.Vote, error) {
	id, err := requireIdentifier(rec, "vote id", voteIDKeys)
	if err != nil {
		return domain.Vote{}, err
	}
	var tally Tally
	tally.Yes, tally.HasYes = integer(rec, []string{"total_for", "TotalFor", "ForCount"})
	tally.No, tally.HasNo = integer(rec, []string{"total_against", "TotalAgainst", "AgainstCount"})
	abstain := integerOr(rec, []string{"total_abstain", "TotalAbstain", "AbstainCount"}, 0)

	labelA, _ := text(rec, []string{"for_option_desc", "ForOptionDesc", "accepted_text"})
	labelB, _ := text(rec, []string{"against_option_desc", "AgainstOptionDesc", "vote_result_desc"})
	outcome, source := DeriveOutcome(tally, labelA, labelB)

	votedAt, _ := timestamp(rec, []string{"vote_date", "VoteDate", "VoteDateTime"})
	return domain.Vote{
		Provenance:    m.provenance(SetVoteHeader, id),
		KnessetNum:    integerOr(rec, knessetNumKeys, 0),
		Title:         textOr(rec, []string{"vote_item_dscr", "sess_item_dscr", "VoteTitle", "Title"}, domain.UnknownName),
		VotedAt:       votedAt,
		YesCount:      tally.Yes,
		NoCount:       tally.No,
		AbstainCount:  abstain,
		Outcome:       outcome,
		OutcomeSource: source,
	}, nil
}

// VoteRecord maps one member's ballot. Its external id is "<vote>:<person>".
func (m *Mapper) VoteRecord(rec odata.Record) (domain.VoteRecord, error) {
	voteID, err := requireIdentifier(rec, "vote record vote id", voteRecordVoteKeys)
	if err != nil {
		return domain.VoteRecord{}, err
	}
	personID, err := requireIdentifier(rec, "vote record member id", voteRecordMKKeys)
	if err != nil {
		return domain.VoteRecord{}, err
	}
	code := integerOr(rec, []string{"vote_result", "VoteResult", "ResultCode", "result_code"}, 0)
	prov := m.provenance(SetVoteRecord, VoteRecordKey(voteID, personID))
	prov.SourceURL = m.baseURL + "/" + SetVoteRecord + "(vote_id=" + url.PathEscape(voteID) + ",kmmbr_id=" + url.PathEscape(personID) + ")"
	return domain.VoteRecord{
		Provenance:       prov,
		VoteExternalID:   voteID,
		PersonExternalID: personID,
		BallotCode:       code,
		Position:         BallotPosition(code),
	}, nil
}

func VoteRecordKey(voteID, personID string) string {
	return voteID + ":" + personID
}

// ExternalID resolves only the identifier a record would be keyed on for
// kind. It is used to tag snapshots of records that failed to map.
func ExternalID(kind domain.EntityKind, rec odata.Record) string {
	var keys []string
	switch kind {
	case domain.KindParty:
		keys = partyIDKeys
	case domain.KindPerson:
		keys = personIDKeys
	case domain.KindMembership, domain.KindCommitteeMembership, domain.KindGovernmentRole:
		keys = positionRowIDKeys
	case domain.KindBill:
		keys = billIDKeys
	case domain.KindBillRole:
		keys = billInitiatorKeys
	case domain.KindCommittee:
		keys = committeeIDKeys
	case domain.KindVote:
		keys = voteIDKeys
	case domain.KindVoteRecord:
		v, okV := identifier(rec, voteRecordVoteKeys)
		p, okP := identifier(rec, voteRecordMKKeys)
		if okV && okP {
			return VoteRecordKey(v, p)
		}
		return ""
	}
	id, _ := identifier(rec, keys)
	return id
}

// IsMissingIdentifier reports whether err came from an unresolvable key.
func IsMissingIdentifier(err error) bool {
	return errors.Is(err, ErrMissingIdentifier)
}
