package model

import "time"

// FollowUpJob pairs one contact with one follow-up rule. Jobs are derived
// by the scheduler on demand and never persisted; a job is due once DueAt
// has passed and no SentEmail exists for the (contact, rule) pair.
// RuleID nil means the initial send for the contact.
type FollowUpJob struct {
	CampaignID int       `json:"campaign_id"`
	ContactID  int       `json:"contact_id"`
	RuleID     *int      `json:"rule_id,omitempty"`
	DueAt      time.Time `json:"due_at"`
}
