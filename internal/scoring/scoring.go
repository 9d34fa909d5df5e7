// Package scoring derives per-party, per-topic legislative activity scores
// from persisted bills, bill roles and party memberships.
package scoring

import (
	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
)

// PointsForStage is the value of a bill at a lifecycle stage.
func PointsForStage(stage string) int {
	switch domain.BillStage(stage) {
	case domain.BillStagePassed:
		return 5
	case domain.BillStageSecondThirdReading:
		return 3
	case domain.BillStageCommitteeReview, domain.BillStageFirstReading:
		return 2
	case domain.BillStageSubmitted:
		return 1
	default:
		return 0
	}
}

// RoleMultiplier scales points by the part a member played: initiators keep
// them, cosponsors get half, any other role nothing.
func RoleMultiplier(points int, role string) float64 {
	switch domain.BillRoleKind(role) {
	case domain.BillRoleInitiator:
		return float64(points)
	case domain.BillRoleCosponsor:
		return float64(points) * 0.5
	default:
		return 0
	}
}

// Normalize rescales raw scores per topic into [0,1]. Topics outside
// topicKeys are dropped. When every party shares one value for a topic the
// result is 0 for a shared zero and 1 otherwise.
func Normalize(rows []domain.PartyTopicAgg, topicKeys []string) map[string]map[string]float64 {
	allowed := make(map[string]bool, len(topicKeys))
	for _, k := range topicKeys {
		allowed[k] = true
	}

	type bounds struct {
		min, max float64
		seen     bool
	}
	byTopic := map[string]*bounds{}
	for _, r := range rows {
		if !allowed[r.Topic] {
			continue
		}
		b := byTopic[r.Topic]
		if b == nil {
			b = &bounds{}
			byTopic[r.Topic] = b
		}
		if !b.seen || r.RawScore < b.min {
			b.min = r.RawScore
		}
		if !b.seen || r.RawScore > b.max {
			b.max = r.RawScore
		}
		b.seen = true
	}

	out := map[string]map[string]float64{}
	for _, r := range rows {
		b := byTopic[r.Topic]
		if b == nil {
			continue
		}
		var score float64
		switch {
		case b.max == b.min && b.max == 0:
			score = 0
		case b.max == b.min:
			score = 1
		default:
			score = (r.RawScore - b.min) / (b.max - b.min)
		}
		if out[r.PartyID] == nil {
			out[r.PartyID] = map[string]float64{}
		}
		out[r.PartyID][r.Topic] = score
	}
	return out
}
