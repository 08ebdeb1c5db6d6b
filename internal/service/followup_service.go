package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vedanschi/pebble-outreach/internal/model"
	"github.com/vedanschi/pebble-outreach/internal/repository"
)

// FollowUpService computes which sends are due. It is the sole scheduling
// decision point: the query is read-only and idempotent, so sweeps may
// poll it arbitrarily often; claiming happens in dispatch, backed by the
// uniqueness indexes.
type FollowUpService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	RuleRepo     repository.FollowUpRuleRepositoryInterface
	SentRepo     repository.SentEmailRepositoryInterface
	// MaxJobAge bounds retries of permanently failing follow-ups: a job
	// whose due time is older than this is no longer offered. Zero means
	// unbounded.
	MaxJobAge time.Duration
	Logger    *zap.Logger
}

// DueJobs returns every job due at now across dispatchable campaigns.
// Paused and completed campaigns contribute nothing. Within one contact
// the follow-up chain is strict: a rule is only offered once every earlier
// rule has either been sent or had its condition permanently voided, so at
// most one job per contact appears in any result.
func (s *FollowUpService) DueJobs(ctx context.Context, now time.Time) ([]model.FollowUpJob, error) {
	campaigns, err := s.CampaignRepo.ListDispatchable(ctx)
	if err != nil {
		return nil, err
	}

	jobs := []model.FollowUpJob{}
	for _, campaign := range campaigns {
		rules, err := s.RuleRepo.ListActiveByCampaign(ctx, campaign.ID)
		if err != nil {
			return nil, err
		}
		contacts, err := s.ContactRepo.ListByCampaign(ctx, campaign.ID)
		if err != nil {
			return nil, err
		}

		for _, contact := range contacts {
			job, err := s.nextJobForContact(ctx, campaign, contact, rules, now)
			if err != nil {
				return nil, err
			}
			if job != nil {
				jobs = append(jobs, *job)
			}
		}
	}
	return jobs, nil
}

func (s *FollowUpService) nextJobForContact(
	ctx context.Context,
	campaign *model.Campaign,
	contact *model.Contact,
	rules []*model.FollowUpRule,
	now time.Time,
) (*model.FollowUpJob, error) {
	initial, err := s.SentRepo.GetInitialSend(ctx, campaign.ID, contact.ID)
	if err != nil {
		return nil, err
	}

	if initial == nil {
		if campaign.Status != model.CampaignStatusSending {
			return nil, nil
		}
		// The initial send is owed from the moment the campaign entered
		// sending, so its due time anchors there and the max-age bound
		// applies the same way it does to follow-ups. A previously
		// failed transport lands here again on the next sweep until
		// the bound expires.
		dueAt := now
		if campaign.UpdatedAt != nil {
			dueAt = *campaign.UpdatedAt
		}
		if s.MaxJobAge > 0 && now.Sub(dueAt) > s.MaxJobAge {
			s.Logger.Warn("dropping stale initial send job",
				zap.Int("campaign_id", campaign.ID),
				zap.Int("contact_id", contact.ID),
				zap.Time("due_at", dueAt),
			)
			return nil, nil
		}
		return &model.FollowUpJob{CampaignID: campaign.ID, ContactID: contact.ID, DueAt: dueAt}, nil
	}

	for _, rule := range rules {
		sent, err := s.SentRepo.ExistsForRule(ctx, contact.ID, rule.ID)
		if err != nil {
			return nil, err
		}
		if sent {
			continue
		}
		if !rule.ConditionMet(initial) {
			// Opens and clicks are monotonic, so a voided condition
			// never fires again; the chain advances past it.
			continue
		}

		dueAt := initial.SentAt.Add(time.Duration(rule.DelayDays) * 24 * time.Hour)
		if dueAt.After(now) {
			return nil, nil
		}
		if s.MaxJobAge > 0 && now.Sub(dueAt) > s.MaxJobAge {
			// Expired: stop retrying this pair and let the chain advance.
			s.Logger.Warn("dropping stale follow-up job",
				zap.Int("contact_id", contact.ID),
				zap.Int("rule_id", rule.ID),
				zap.Time("due_at", dueAt),
			)
			continue
		}

		ruleID := rule.ID
		return &model.FollowUpJob{
			CampaignID: campaign.ID,
			ContactID:  contact.ID,
			RuleID:     &ruleID,
			DueAt:      dueAt,
		}, nil
	}
	return nil, nil
}
