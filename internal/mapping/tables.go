package mapping

import (
	"strconv"
	"strings"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
)

// Ballot codes used by the plenum voting system.
const (
	BallotYes       = 1
	BallotNo        = 2
	BallotAbstain   = 3
	BallotManualYes = 4
)

// BallotPosition maps a ballot code to a position. Unknown codes are
// did-not-vote.
func BallotPosition(code int) domain.VotePosition {
	switch code {
	case BallotYes, BallotManualYes:
		return domain.VotePositionYes
	case BallotNo:
		return domain.VotePositionNo
	case BallotAbstain:
		return domain.VotePositionAbstain
	default:
		return domain.VotePositionDidNotVote
	}
}

// Tally holds the optional yes/no counts of a vote.
type Tally struct {
	Yes, No       int
	HasYes, HasNo bool
}

// Hebrew keywords for ballot-option labels. Reject terms are checked first
// since "לא התקבל" contains "התקבל".
var (
	passKeywords   = []string{"התקבל", "התקבלה", "אושר", "אושרה", "נתקבל", "נתקבלה"}
	rejectKeywords = []string{"לא התקבל", "לא אושר", "נדחה", "נדחתה", "נדחו"}
)

// DeriveOutcome prefers tallies. Without both counts it falls back to keyword
// matching on the two option labels; that path is approximate and is reported
// as OutcomeSourceLabels.
func DeriveOutcome(t Tally, labelA, labelB string) (domain.VoteOutcome, domain.OutcomeSource) {
	if t.HasYes && t.HasNo {
		switch {
		case t.Yes > t.No:
			return domain.VoteOutcomePassed, domain.OutcomeSourceTally
		case t.No > t.Yes:
			return domain.VoteOutcomeRejected, domain.OutcomeSourceTally
		default:
			return domain.VoteOutcomeUnknown, domain.OutcomeSourceTally
		}
	}

	a, b := cleanText(labelA), cleanText(labelB)
	if a == b {
		return domain.VoteOutcomeUnknown, domain.OutcomeSourceNone
	}
	for _, label := range []string{a, b} {
		if label == "" {
			continue
		}
		if containsAny(label, rejectKeywords) {
			return domain.VoteOutcomeRejected, domain.OutcomeSourceLabels
		}
		if containsAny(label, passKeywords) {
			return domain.VoteOutcomePassed, domain.OutcomeSourceLabels
		}
	}
	return domain.VoteOutcomeUnknown, domain.OutcomeSourceNone
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

var positionLabels = map[int]string{
	31:  "Deputy Prime Minister",
	39:  "Minister",
	40:  "Minister without Portfolio",
	41:  "Acting Minister",
	45:  "Prime Minister",
	50:  "Deputy Minister",
	51:  "Acting Prime Minister",
	57:  "Minister (Knesset liaison)",
	59:  "Deputy Minister (acting)",
	285: "Alternate Prime Minister",
}

// PositionLabel maps a government position id to a label, falling back to
// "position <id>".
func PositionLabel(id int) string {
	if label, ok := positionLabels[id]; ok {
		return label
	}
	return "position " + strconv.Itoa(id)
}

var billStages = map[int]domain.BillStage{
	101: domain.BillStageDraft,
	104: domain.BillStageSubmitted,
	106: domain.BillStageSubmitted,
	108: domain.BillStageCommitteeReview,
	109: domain.BillStageCommitteeReview,
	111: domain.BillStageSubmitted,
	113: domain.BillStageCommitteeReview,
	114: domain.BillStageSecondThirdReading,
	115: domain.BillStageSecondThirdReading,
	117: domain.BillStageSecondThirdReading,
	118: domain.BillStagePassed,
	120: domain.BillStageFirstReading,
	122: domain.BillStageWithdrawn,
	124: domain.BillStageWithdrawn,
	126: domain.BillStageWithdrawn,
	130: domain.BillStageFirstReading,
	131: domain.BillStageCommitteeReview,
	140: domain.BillStageFirstReading,
	141: domain.BillStageFirstReading,
	142: domain.BillStageCommitteeReview,
	143: domain.BillStageDraft,
	150: domain.BillStageSubmitted,
	158: domain.BillStageSubmitted,
	161: domain.BillStageSecondThirdReading,
	162: domain.BillStageExpired,
	165: domain.BillStageRejected,
	167: domain.BillStageCommitteeReview,
	169: domain.BillStageRejected,
	175: domain.BillStageCommitteeReview,
	176: domain.BillStageFirstReading,
	177: domain.BillStageRejected,
	178: domain.BillStageFirstReading,
	179: domain.BillStageExpired,
}

// StageForStatus maps a bill status id to a lifecycle stage.
func StageForStatus(statusID int) domain.BillStage {
	if stage, ok := billStages[statusID]; ok {
		return stage
	}
	return domain.BillStageUnknown
}
