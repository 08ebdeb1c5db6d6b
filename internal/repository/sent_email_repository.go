package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/model"
)

type SentEmailRepositoryInterface interface {
	// Create inserts the send record. Losing the race against another
	// dispatcher for the same (contact, rule) pair returns
	// apperrors.ErrDispatchConflict; the partial unique indexes make the
	// first writer win.
	Create(ctx context.Context, s *model.SentEmail) error
	GetInitialSend(ctx context.Context, campaignID, contactID int) (*model.SentEmail, error)
	ExistsForRule(ctx context.Context, contactID, ruleID int) (bool, error)
	// RecordOpen applies one open event atomically. Returns false when no
	// row matches the pixel id.
	RecordOpen(ctx context.Context, trackingPixelID, ip string, at time.Time) (bool, error)
	// CountOutstanding reports how many (contact, rule) sends plus
	// initial sends the campaign still owes.
	CountOutstanding(ctx context.Context, campaignID int) (int, error)
}

type SentEmailRepository struct {
	DB *sql.DB
}

const uniqueViolation = "23505"

func (r *SentEmailRepository) Create(ctx context.Context, s *model.SentEmail) error {
	query := `
		INSERT INTO sent_emails
			(campaign_id, contact_id, triggered_by_rule_id, subject, body, status, tracking_pixel_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		s.CampaignID, s.ContactID, s.TriggeredByRuleID,
		s.Subject, s.Body, s.Status, s.TrackingPixelID, s.SentAt,
	).Scan(&s.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return apperrors.ErrDispatchConflict
		}
		return err
	}
	return nil
}

const sentEmailColumns = `id, campaign_id, contact_id, triggered_by_rule_id, subject, body, status,
		tracking_pixel_id, sent_at, opened_at, last_opened_at, first_opened_ip, open_count, clicked_at`

func scanSentEmail(row *sql.Row) (*model.SentEmail, error) {
	var s model.SentEmail
	err := row.Scan(&s.ID, &s.CampaignID, &s.ContactID, &s.TriggeredByRuleID,
		&s.Subject, &s.Body, &s.Status, &s.TrackingPixelID, &s.SentAt,
		&s.OpenedAt, &s.LastOpenedAt, &s.FirstOpenedIP, &s.OpenCount, &s.ClickedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetInitialSend returns the contact's initial (non-follow-up) send, or
// nil when none exists yet.
func (r *SentEmailRepository) GetInitialSend(ctx context.Context, campaignID, contactID int) (*model.SentEmail, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+sentEmailColumns+` FROM sent_emails
		WHERE campaign_id=$1 AND contact_id=$2 AND triggered_by_rule_id IS NULL AND status=$3
	`, campaignID, contactID, model.SentEmailStatusSent)
	s, err := scanSentEmail(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SentEmailRepository) ExistsForRule(ctx context.Context, contactID, ruleID int) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sent_emails WHERE contact_id=$1 AND triggered_by_rule_id=$2
		)
	`, contactID, ruleID).Scan(&exists)
	return exists, err
}

func (r *SentEmailRepository) RecordOpen(ctx context.Context, trackingPixelID, ip string, at time.Time) (bool, error) {
	// Single statement so first-open fields and the counter cannot
	// diverge under concurrent pixel hits.
	res, err := r.DB.ExecContext(ctx, `
		UPDATE sent_emails SET
			open_count = open_count + 1,
			last_opened_at = $2,
			opened_at = COALESCE(opened_at, $2),
			first_opened_ip = CASE WHEN first_opened_ip = '' THEN $3 ELSE first_opened_ip END
		WHERE tracking_pixel_id = $1
	`, trackingPixelID, at, ip)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountOutstanding counts missing initial sends plus missing
// (contact, active rule) follow-ups. Zero means the campaign is exhausted
// and can be marked completed.
func (r *SentEmailRepository) CountOutstanding(ctx context.Context, campaignID int) (int, error) {
	var missingInitial, missingFollowUps int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM contacts c
		WHERE c.campaign_id=$1 AND NOT c.deleted
		AND NOT EXISTS (
			SELECT 1 FROM sent_emails s
			WHERE s.contact_id=c.id AND s.triggered_by_rule_id IS NULL
		)
	`, campaignID).Scan(&missingInitial)
	if err != nil {
		return 0, err
	}

	// Pairs whose rule condition was voided by an open or click are not
	// owed; opens and clicks are monotonic, so the void is permanent.
	err = r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM contacts c
		JOIN sent_emails ini
			ON ini.contact_id=c.id AND ini.triggered_by_rule_id IS NULL
		CROSS JOIN follow_up_rules fr
		WHERE c.campaign_id=$1 AND NOT c.deleted
		AND fr.campaign_id=$1 AND fr.is_active
		AND NOT EXISTS (
			SELECT 1 FROM sent_emails s
			WHERE s.contact_id=c.id AND s.triggered_by_rule_id=fr.id
		)
		AND (fr.condition = 'sent_anyway'
			OR (fr.condition = 'not_opened_within_delay' AND ini.opened_at IS NULL)
			OR (fr.condition = 'not_clicked_within_delay' AND ini.clicked_at IS NULL))
	`, campaignID).Scan(&missingFollowUps)
	if err != nil {
		return 0, err
	}

	return missingInitial + missingFollowUps, nil
}

var _ SentEmailRepositoryInterface = (*SentEmailRepository)(nil)
