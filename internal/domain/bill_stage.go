package domain

// BillStage is the normalized lifecycle stage of a bill.
type BillStage string

const (
	BillStageDraft              BillStage = "draft"
	BillStageSubmitted          BillStage = "submitted"
	BillStageFirstReading       BillStage = "first_reading"
	BillStageCommitteeReview    BillStage = "committee_review"
	BillStageSecondThirdReading BillStage = "second_third_reading"
	BillStagePassed             BillStage = "passed"
	BillStageRejected           BillStage = "rejected"
	BillStageWithdrawn          BillStage = "withdrawn"
	BillStageExpired            BillStage = "expired"
	BillStageUnknown            BillStage = "unknown"
)
