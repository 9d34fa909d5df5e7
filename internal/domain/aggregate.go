package domain

import "time"

// PartyTopicAgg is one (party, topic) scoring row. It is recomputed wholesale
// by the aggregation batch.
type PartyTopicAgg struct {
	PartyID         string
	Topic           string
	RawScore        float64
	BillCount       int
	NormalizedScore float64
	ComputedAt      time.Time
}
