package repository

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/model"
)

type ConversationRepositoryInterface interface {
	Create(ctx context.Context, campaignID int) (*model.Conversation, error)
	GetByID(ctx context.Context, id int) (*model.Conversation, error)
	AppendTurn(ctx context.Context, conversationID int, role, content string) (*model.Turn, error)
	MarkFinalized(ctx context.Context, conversationID int) error
}

type ConversationRepository struct {
	DB *sql.DB
}

func (r *ConversationRepository) Create(ctx context.Context, campaignID int) (*model.Conversation, error) {
	conv := &model.Conversation{
		CampaignID: campaignID,
		CreatedAt:  time.Now().UTC(),
		Turns:      []model.Turn{},
	}
	query := `
		INSERT INTO conversations (campaign_id, created_at)
		VALUES ($1, $2)
		RETURNING id
	`
	if err := r.DB.QueryRowContext(ctx, query, campaignID, conv.CreatedAt).Scan(&conv.ID); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id int) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, campaign_id, finalized, created_at FROM conversations WHERE id=$1`, id,
	).Scan(&conv.ID, &conv.CampaignID, &conv.Finalized, &conv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("conversation", id)
		}
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM conversation_turns WHERE conversation_id=$1 ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conv.Turns = []model.Turn{}
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		conv.Turns = append(conv.Turns, t)
	}
	return &conv, rows.Err()
}

func (r *ConversationRepository) AppendTurn(ctx context.Context, conversationID int, role, content string) (*model.Turn, error) {
	t := &model.Turn{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	query := `
		INSERT INTO conversation_turns (conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.DB.QueryRowContext(ctx, query, conversationID, role, content, t.CreatedAt).Scan(&t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *ConversationRepository) MarkFinalized(ctx context.Context, conversationID int) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE conversations SET finalized=TRUE WHERE id=$1`, conversationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFound("conversation", conversationID)
	}
	return nil
}

var _ ConversationRepositoryInterface = (*ConversationRepository)(nil)
