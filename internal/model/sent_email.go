package model

import "time"

const (
	SentEmailStatusSent   = "sent"
	SentEmailStatusFailed = "failed"
)

// SentEmail records one delivery to one contact. Rows are immutable once
// created except for the open/click tracking columns, which only the
// tracking handler touches. TriggeredByRuleID nil marks the initial send.
type SentEmail struct {
	ID                int        `db:"id" json:"id"`
	CampaignID        int        `db:"campaign_id" json:"campaign_id"`
	ContactID         int        `db:"contact_id" json:"contact_id"`
	TriggeredByRuleID *int       `db:"triggered_by_rule_id" json:"triggered_by_rule_id,omitempty"`
	Subject           string     `db:"subject" json:"subject"`
	Body              string     `db:"body" json:"body"`
	Status            string     `db:"status" json:"status"`
	TrackingPixelID   string     `db:"tracking_pixel_id" json:"tracking_pixel_id"`
	SentAt            time.Time  `db:"sent_at" json:"sent_at"`
	OpenedAt          *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	LastOpenedAt      *time.Time `db:"last_opened_at" json:"last_opened_at,omitempty"`
	FirstOpenedIP     string     `db:"first_opened_ip" json:"first_opened_ip,omitempty"`
	OpenCount         int        `db:"open_count" json:"open_count"`
	ClickedAt         *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`
}

// IsInitial reports whether this row is the contact's initial send rather
// than a follow-up.
func (s *SentEmail) IsInitial() bool {
	return s.TriggeredByRuleID == nil
}
