package repository

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/model"
)

type FollowUpRuleRepositoryInterface interface {
	Create(ctx context.Context, rule *model.FollowUpRule) error
	GetByID(ctx context.Context, id int) (*model.FollowUpRule, error)
	// ListActiveByCampaign returns active rules in firing order:
	// ascending delay, ties broken by creation order.
	ListActiveByCampaign(ctx context.Context, campaignID int) ([]*model.FollowUpRule, error)
}

type FollowUpRuleRepository struct {
	DB *sql.DB
}

func (r *FollowUpRuleRepository) Create(ctx context.Context, rule *model.FollowUpRule) error {
	rule.CreatedAt = time.Now().UTC()
	if rule.Condition == "" {
		rule.Condition = model.ConditionSentAnyway
	}
	query := `
		INSERT INTO follow_up_rules
			(campaign_id, subject_template, body_template, delay_days, condition, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		rule.CampaignID, rule.SubjectTemplate, rule.BodyTemplate,
		rule.DelayDays, rule.Condition, rule.IsActive, rule.CreatedAt,
	).Scan(&rule.ID)
}

func (r *FollowUpRuleRepository) GetByID(ctx context.Context, id int) (*model.FollowUpRule, error) {
	var rule model.FollowUpRule
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, campaign_id, subject_template, body_template, delay_days, condition, is_active, created_at
		FROM follow_up_rules WHERE id=$1
	`, id).Scan(&rule.ID, &rule.CampaignID, &rule.SubjectTemplate, &rule.BodyTemplate,
		&rule.DelayDays, &rule.Condition, &rule.IsActive, &rule.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("follow-up rule", id)
		}
		return nil, err
	}
	return &rule, nil
}

func (r *FollowUpRuleRepository) ListActiveByCampaign(ctx context.Context, campaignID int) ([]*model.FollowUpRule, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, campaign_id, subject_template, body_template, delay_days, condition, is_active, created_at
		FROM follow_up_rules
		WHERE campaign_id=$1 AND is_active
		ORDER BY delay_days, id
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*model.FollowUpRule{}
	for rows.Next() {
		rule := &model.FollowUpRule{}
		if err := rows.Scan(&rule.ID, &rule.CampaignID, &rule.SubjectTemplate, &rule.BodyTemplate,
			&rule.DelayDays, &rule.Condition, &rule.IsActive, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

var _ FollowUpRuleRepositoryInterface = (*FollowUpRuleRepository)(nil)
