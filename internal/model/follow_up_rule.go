package model

import "time"

// Follow-up rule conditions, checked against the initial send's tracking
// state at scheduling time.
const (
	ConditionSentAnyway = "sent_anyway"
	ConditionNotOpened  = "not_opened_within_delay"
	ConditionNotClicked = "not_clicked_within_delay"
)

// FollowUpRule is static per-campaign configuration. Rules fire in
// ascending delay order, ties broken by id (creation order); they carry
// no per-contact state.
type FollowUpRule struct {
	ID              int       `db:"id" json:"id"`
	CampaignID      int       `db:"campaign_id" json:"campaign_id"`
	SubjectTemplate string    `db:"subject_template" json:"subject_template"`
	BodyTemplate    string    `db:"body_template" json:"body_template"`
	DelayDays       int       `db:"delay_days" json:"delay_days"`
	Condition       string    `db:"condition" json:"condition"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ConditionMet reports whether the rule's condition passes for an initial
// send with the given tracking state.
func (r *FollowUpRule) ConditionMet(initial *SentEmail) bool {
	switch r.Condition {
	case ConditionNotOpened:
		return initial.OpenedAt == nil
	case ConditionNotClicked:
		return initial.ClickedAt == nil
	default:
		return true
	}
}
