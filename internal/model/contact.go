package model

import "time"

// Contact belongs to exactly one campaign. Custom attributes are the
// open-ended merge-field source; keys are unique per contact. Contacts are
// immutable after import except for soft deletion.
type Contact struct {
	ID           int               `db:"id" json:"id"`
	CampaignID   int               `db:"campaign_id" json:"campaign_id"`
	FirstName    string            `db:"first_name" json:"first_name"`
	LastName     string            `db:"last_name" json:"last_name"`
	Email        string            `db:"email" json:"email"`
	CompanyName  string            `db:"company_name" json:"company_name"`
	CustomFields map[string]string `db:"-" json:"custom_fields,omitempty"`
	Deleted      bool              `db:"deleted" json:"-"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}

func (c *Contact) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
