package model

import "time"

// EmailTemplate holds subject and body text with {{fieldName}} merge
// placeholders. A campaign has at most one primary initial template at a
// time; finalizing a new one supersedes the prior, which is kept with
// is_primary=false for audit.
type EmailTemplate struct {
	ID              int       `db:"id" json:"id"`
	CampaignID      int       `db:"campaign_id" json:"campaign_id"`
	Name            string    `db:"name" json:"name"`
	SubjectTemplate string    `db:"subject_template" json:"subject_template"`
	BodyTemplate    string    `db:"body_template" json:"body_template"`
	UserPrompt      string    `db:"user_prompt" json:"user_prompt,omitempty"`
	IsFollowUp      bool      `db:"is_follow_up" json:"is_follow_up"`
	IsPrimary       bool      `db:"is_primary" json:"is_primary"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
