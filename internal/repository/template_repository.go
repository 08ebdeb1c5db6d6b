package repository

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.EmailTemplate, error)
	GetPrimary(ctx context.Context, campaignID int) (*model.EmailTemplate, error)
	// InsertPrimary demotes the campaign's current primary initial
	// template and inserts t as the new primary, in one transaction.
	// Superseded rows are kept for audit.
	InsertPrimary(ctx context.Context, t *model.EmailTemplate) error
}

type TemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, campaign_id, name, subject_template, body_template, user_prompt, is_follow_up, is_primary, created_at`

func (r *TemplateRepository) GetByID(ctx context.Context, id int) (*model.EmailTemplate, error) {
	var t model.EmailTemplate
	err := r.DB.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE id=$1`, id,
	).Scan(&t.ID, &t.CampaignID, &t.Name, &t.SubjectTemplate, &t.BodyTemplate,
		&t.UserPrompt, &t.IsFollowUp, &t.IsPrimary, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("email template", id)
		}
		return nil, err
	}
	return &t, nil
}

// GetPrimary resolves the campaign's current initial template.
func (r *TemplateRepository) GetPrimary(ctx context.Context, campaignID int) (*model.EmailTemplate, error) {
	var t model.EmailTemplate
	err := r.DB.QueryRowContext(ctx, `
		SELECT `+templateColumns+` FROM email_templates
		WHERE campaign_id=$1 AND is_primary AND NOT is_follow_up
	`, campaignID).Scan(&t.ID, &t.CampaignID, &t.Name, &t.SubjectTemplate, &t.BodyTemplate,
		&t.UserPrompt, &t.IsFollowUp, &t.IsPrimary, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("primary template for campaign", campaignID)
		}
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) InsertPrimary(ctx context.Context, t *model.EmailTemplate) error {
	t.CreatedAt = time.Now().UTC()
	t.IsPrimary = true
	t.IsFollowUp = false

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE email_templates SET is_primary=FALSE
		WHERE campaign_id=$1 AND is_primary AND NOT is_follow_up
	`, t.CampaignID)
	if err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO email_templates
			(campaign_id, name, subject_template, body_template, user_prompt, is_follow_up, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, t.CampaignID, t.Name, t.SubjectTemplate, t.BodyTemplate, t.UserPrompt,
		t.IsFollowUp, t.IsPrimary, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
