package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/model"
)

func newCampaignService(store *memStore) *CampaignService {
	return &CampaignService{
		CampaignRepo: &memCampaignRepo{store: store},
		SentRepo:     &memSentRepo{store: store},
		Logger:       zap.NewNop(),
	}
}

func TestCampaignLifecycleTransitions(t *testing.T) {
	store := newMemStore()
	svc := newCampaignService(store)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, "launch", "design partner outreach")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusDraft, c.Status)

	// draft cannot go straight to sending.
	err = svc.TriggerSend(ctx, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	require.NoError(t, svc.Activate(ctx, c.ID))
	require.NoError(t, svc.TriggerSend(ctx, c.ID))

	got, err := svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusSending, got.Status)

	// sending can be paused, then resumed through active.
	require.NoError(t, svc.Pause(ctx, c.ID))
	require.NoError(t, svc.Activate(ctx, c.ID))

	// activating an already active campaign is a state error.
	err = svc.Activate(ctx, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestCampaignTransitionUnknownID(t *testing.T) {
	svc := newCampaignService(newMemStore())
	err := svc.Activate(context.Background(), 99)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCheckCompletionOnlyAppliesToSending(t *testing.T) {
	store := newMemStore()
	svc := newCampaignService(store)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, "launch", "")
	require.NoError(t, err)

	// A draft campaign with zero outstanding work never completes.
	done, err := svc.CheckCompletion(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCheckCompletionWaitsForChainThenCompletes(t *testing.T) {
	store := newMemStore()
	svc := newCampaignService(store)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, "launch", "")
	require.NoError(t, err)
	require.NoError(t, svc.Activate(ctx, c.ID))
	require.NoError(t, svc.TriggerSend(ctx, c.ID))

	contactRepo := &memContactRepo{store: store}
	contact := &model.Contact{CampaignID: c.ID, Email: "ava@example.com"}
	require.NoError(t, contactRepo.Create(ctx, contact))

	ruleRepo := &memRuleRepo{store: store}
	rule := &model.FollowUpRule{CampaignID: c.ID, DelayDays: 3, IsActive: true}
	require.NoError(t, ruleRepo.Create(ctx, rule))

	// Initial send still owed.
	done, err := svc.CheckCompletion(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, done)

	sentRepo := &memSentRepo{store: store}
	require.NoError(t, sentRepo.Create(ctx, &model.SentEmail{
		CampaignID: c.ID, ContactID: contact.ID,
		Status: model.SentEmailStatusSent, TrackingPixelID: "p1",
	}))

	// Follow-up still owed.
	done, err = svc.CheckCompletion(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, done)

	ruleID := rule.ID
	require.NoError(t, sentRepo.Create(ctx, &model.SentEmail{
		CampaignID: c.ID, ContactID: contact.ID, TriggeredByRuleID: &ruleID,
		Status: model.SentEmailStatusSent, TrackingPixelID: "p2",
	}))

	done, err = svc.CheckCompletion(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, done)

	got, err := svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, got.Status)
}

func TestCheckCompletionVoidedConditionDoesNotBlock(t *testing.T) {
	store := newMemStore()
	svc := newCampaignService(store)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, "launch", "")
	require.NoError(t, err)
	require.NoError(t, svc.Activate(ctx, c.ID))
	require.NoError(t, svc.TriggerSend(ctx, c.ID))

	contactRepo := &memContactRepo{store: store}
	contact := &model.Contact{CampaignID: c.ID, Email: "ava@example.com"}
	require.NoError(t, contactRepo.Create(ctx, contact))

	ruleRepo := &memRuleRepo{store: store}
	rule := &model.FollowUpRule{
		CampaignID: c.ID, DelayDays: 3, IsActive: true,
		Condition: model.ConditionNotOpened,
	}
	require.NoError(t, ruleRepo.Create(ctx, rule))

	sentRepo := &memSentRepo{store: store}
	require.NoError(t, sentRepo.Create(ctx, &model.SentEmail{
		CampaignID: c.ID, ContactID: contact.ID,
		Status: model.SentEmailStatusSent, TrackingPixelID: "p1",
	}))

	// The contact opened the initial send, voiding the only rule; the
	// campaign owes nothing more.
	found, err := sentRepo.RecordOpen(ctx, "p1", "198.51.100.7", schedBase)
	require.NoError(t, err)
	require.True(t, found)

	done, err := svc.CheckCompletion(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, done)
}
