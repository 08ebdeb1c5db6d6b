package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/mail"
	"github.com/vedanschi/pebble-outreach/internal/model"
	"github.com/vedanschi/pebble-outreach/internal/repository"
)

// DispatchService executes due jobs: render, deliver, record. The
// SentEmail insert is the only write, so a job either completes fully or
// leaves no trace; the uniqueness indexes make the first writer win when
// dispatchers race.
type DispatchService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	RuleRepo     repository.FollowUpRuleRepositoryInterface
	SentRepo     repository.SentEmailRepositoryInterface
	Transport    mail.Transport
	// TrackingBaseURL is the externally reachable prefix for the open
	// tracking endpoint.
	TrackingBaseURL string
	Clock           func() time.Time
	Logger          *zap.Logger
}

func (s *DispatchService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// Dispatch sends one job and records the SentEmail. Returns (nil, nil)
// when the job is skipped: campaign paused or completed since scheduling,
// or contact soft-deleted. A lost race returns ErrDispatchConflict, which
// callers treat as already-handled. Transport failures leave the job
// eligible for the next sweep.
func (s *DispatchService) Dispatch(ctx context.Context, job model.FollowUpJob) (*model.SentEmail, error) {
	// Pause is honored at dispatch time, not only at scheduling time, so
	// a campaign paused mid-sweep stops producing sends.
	campaign, err := s.CampaignRepo.GetByID(ctx, job.CampaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Dispatchable() {
		s.Logger.Info("skipping job for non-dispatchable campaign",
			zap.Int("campaign_id", job.CampaignID),
			zap.String("status", campaign.Status),
		)
		return nil, nil
	}

	contact, err := s.ContactRepo.GetByID(ctx, job.ContactID)
	if err != nil {
		return nil, err
	}
	if contact.Deleted {
		return nil, nil
	}

	// Cheap pre-check so a job another dispatcher already handled does
	// not produce a duplicate delivery. The insert below remains the
	// authoritative guard.
	if job.RuleID != nil {
		sent, err := s.SentRepo.ExistsForRule(ctx, contact.ID, *job.RuleID)
		if err != nil {
			return nil, err
		}
		if sent {
			return nil, apperrors.ErrDispatchConflict
		}
	} else {
		initial, err := s.SentRepo.GetInitialSend(ctx, campaign.ID, contact.ID)
		if err != nil {
			return nil, err
		}
		if initial != nil {
			return nil, apperrors.ErrDispatchConflict
		}
	}

	subjectTmpl, bodyTmpl, err := s.resolveTemplates(ctx, job)
	if err != nil {
		return nil, err
	}

	rendered := Render(subjectTmpl, bodyTmpl, contact)
	if len(rendered.MissingFields) > 0 {
		s.Logger.Warn("rendering left fields empty",
			zap.Int("contact_id", contact.ID),
			zap.Strings("missing_fields", rendered.MissingFields),
		)
	}

	pixelID := strings.ReplaceAll(uuid.NewString(), "-", "")
	body := rendered.Body + "\n" + TrackingPixelHTML(s.TrackingBaseURL, pixelID)

	if err := s.Transport.Send(ctx, contact.Email, rendered.Subject, body); err != nil {
		if !apperrors.IsTransport(err) {
			err = apperrors.NewTransportError("send", err)
		}
		s.Logger.Error("transport failure, job stays pending",
			zap.Int("contact_id", contact.ID),
			zap.Error(err),
		)
		return nil, err
	}

	sent := &model.SentEmail{
		CampaignID:        campaign.ID,
		ContactID:         contact.ID,
		TriggeredByRuleID: job.RuleID,
		Subject:           rendered.Subject,
		Body:              body,
		Status:            model.SentEmailStatusSent,
		TrackingPixelID:   pixelID,
		SentAt:            s.now().UTC(),
	}
	if err := s.SentRepo.Create(ctx, sent); err != nil {
		if err == apperrors.ErrDispatchConflict {
			// The email went out but another dispatcher recorded the
			// pair first. Bookkeeping-wise this job is done.
			s.Logger.Warn("lost dispatch race after transport success",
				zap.Int("contact_id", contact.ID),
			)
			return nil, apperrors.ErrDispatchConflict
		}
		return nil, err
	}

	s.Logger.Info("dispatched",
		zap.Int("sent_email_id", sent.ID),
		zap.Int("campaign_id", sent.CampaignID),
		zap.Int("contact_id", sent.ContactID),
		zap.Bool("follow_up", !sent.IsInitial()),
	)
	return sent, nil
}

func (s *DispatchService) resolveTemplates(ctx context.Context, job model.FollowUpJob) (subject, body string, err error) {
	if job.RuleID != nil {
		rule, err := s.RuleRepo.GetByID(ctx, *job.RuleID)
		if err != nil {
			return "", "", err
		}
		return rule.SubjectTemplate, rule.BodyTemplate, nil
	}
	tmpl, err := s.TemplateRepo.GetPrimary(ctx, job.CampaignID)
	if err != nil {
		return "", "", fmt.Errorf("resolve initial template: %w", err)
	}
	return tmpl.SubjectTemplate, tmpl.BodyTemplate, nil
}

// RecordOpen correlates a tracking pixel hit back to its SentEmail.
// Unknown pixel ids are a no-op, never an error: clients, proxies and
// prefetchers replay pixel URLs freely.
func (s *DispatchService) RecordOpen(ctx context.Context, trackingPixelID, ip string) error {
	found, err := s.SentRepo.RecordOpen(ctx, trackingPixelID, ip, s.now().UTC())
	if err != nil {
		return err
	}
	if !found {
		s.Logger.Debug("open event for unknown pixel id",
			zap.String("tracking_pixel_id", trackingPixelID),
		)
	}
	return nil
}
