package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one exchange in a style-negotiation conversation.
type Turn struct {
	ID             int       `db:"id" json:"id"`
	ConversationID int       `db:"conversation_id" json:"-"`
	Role           string    `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Conversation is the append-only chat that gets reduced into an email
// template. Once finalized no further turns may be appended.
type Conversation struct {
	ID         int       `db:"id" json:"id"`
	CampaignID int       `db:"campaign_id" json:"campaign_id"`
	Finalized  bool      `db:"finalized" json:"finalized"`
	Turns      []Turn    `db:"-" json:"turns"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
