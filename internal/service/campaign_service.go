package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/model"
	"github.com/vedanschi/pebble-outreach/internal/repository"
)

// CampaignService owns campaign lifecycle transitions. Status is the only
// mutation path on a campaign; sending and completed are entered through
// TriggerSend and CheckCompletion respectively.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	SentRepo     repository.SentEmailRepositoryInterface
	Logger       *zap.Logger
}

func (s *CampaignService) CreateCampaign(ctx context.Context, name, description string) (*model.Campaign, error) {
	c := &model.Campaign{
		Name:        name,
		Description: description,
		Status:      model.CampaignStatusDraft,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id int) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(ctx, id)
}

// Activate moves a draft or paused campaign into active.
func (s *CampaignService) Activate(ctx context.Context, id int) error {
	return s.transition(ctx, id, model.CampaignStatusActive,
		model.CampaignStatusDraft, model.CampaignStatusPaused)
}

// Pause stops scheduling and dispatch for the campaign. Allowed from any
// non-terminal state.
func (s *CampaignService) Pause(ctx context.Context, id int) error {
	return s.transition(ctx, id, model.CampaignStatusPaused,
		model.CampaignStatusDraft, model.CampaignStatusActive, model.CampaignStatusSending)
}

// TriggerSend starts the send: the campaign enters sending and the sweep
// begins owing initial sends to its contacts.
func (s *CampaignService) TriggerSend(ctx context.Context, id int) error {
	return s.transition(ctx, id, model.CampaignStatusSending, model.CampaignStatusActive)
}

func (s *CampaignService) transition(ctx context.Context, id int, to string, from ...string) error {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	for _, f := range from {
		if c.Status == f {
			return s.CampaignRepo.UpdateStatus(ctx, id, to)
		}
	}
	return fmt.Errorf("%w: campaign %d cannot move from %s to %s",
		apperrors.ErrInvalidState, id, c.Status, to)
}

// CheckCompletion flips a sending campaign to completed once every contact
// has received the initial email and exhausted the follow-up chain.
// Returns whether the campaign completed.
func (s *CampaignService) CheckCompletion(ctx context.Context, id int) (bool, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if c.Status != model.CampaignStatusSending {
		return false, nil
	}

	outstanding, err := s.SentRepo.CountOutstanding(ctx, id)
	if err != nil {
		return false, err
	}
	if outstanding > 0 {
		return false, nil
	}

	if err := s.CampaignRepo.UpdateStatus(ctx, id, model.CampaignStatusCompleted); err != nil {
		return false, err
	}
	s.Logger.Info("campaign completed", zap.Int("campaign_id", id))
	return true, nil
}
