package repository

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/model"
)

type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *model.Contact) error
	GetByID(ctx context.Context, id int) (*model.Contact, error)
	ListByCampaign(ctx context.Context, campaignID int) ([]*model.Contact, error)
	SoftDelete(ctx context.Context, id int) error
}

type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	c.CreatedAt = time.Now().UTC()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO contacts (campaign_id, first_name, last_name, email, company_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		c.CampaignID, c.FirstName, c.LastName, c.Email, c.CompanyName, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return err
	}

	for name, value := range c.CustomFields {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO contact_custom_fields (contact_id, name, value) VALUES ($1, $2, $3)`,
			c.ID, name, value,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *ContactRepository) GetByID(ctx context.Context, id int) (*model.Contact, error) {
	query := `
		SELECT id, campaign_id, first_name, last_name, email, company_name, deleted, created_at
		FROM contacts WHERE id=$1
	`
	var c model.Contact
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.CampaignID, &c.FirstName, &c.LastName, &c.Email, &c.CompanyName, &c.Deleted, &c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("contact", id)
		}
		return nil, err
	}
	if err := r.loadCustomFields(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByCampaign returns non-deleted contacts for a campaign, custom
// fields included.
func (r *ContactRepository) ListByCampaign(ctx context.Context, campaignID int) ([]*model.Contact, error) {
	query := `
		SELECT id, campaign_id, first_name, last_name, email, company_name, deleted, created_at
		FROM contacts WHERE campaign_id=$1 AND NOT deleted ORDER BY id
	`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []*model.Contact{}
	for rows.Next() {
		c := &model.Contact{}
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.FirstName, &c.LastName, &c.Email, &c.CompanyName, &c.Deleted, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range contacts {
		if err := r.loadCustomFields(ctx, c); err != nil {
			return nil, err
		}
	}
	return contacts, nil
}

func (r *ContactRepository) SoftDelete(ctx context.Context, id int) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE contacts SET deleted=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFound("contact", id)
	}
	return nil
}

func (r *ContactRepository) loadCustomFields(ctx context.Context, c *model.Contact) error {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT name, value FROM contact_custom_fields WHERE contact_id=$1`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	c.CustomFields = map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return err
		}
		c.CustomFields[name] = value
	}
	return rows.Err()
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
