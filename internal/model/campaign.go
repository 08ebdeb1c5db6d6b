package model

import "time"

// Campaign statuses. sending and completed are set only by the dispatch
// engine's completion check; paused is reachable from any non-terminal state.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusSending   = "sending"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)

type Campaign struct {
	ID          int        `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Dispatchable reports whether the campaign may contribute due jobs or
// accept sends.
func (c *Campaign) Dispatchable() bool {
	return c.Status == CampaignStatusActive || c.Status == CampaignStatusSending
}
