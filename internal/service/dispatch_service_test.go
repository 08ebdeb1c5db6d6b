package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/model"
)

type dispatchFixture struct {
	store     *memStore
	svc       *DispatchService
	transport *fakeTransport
	campaign  *model.Campaign
	contact   *model.Contact
	rule      *model.FollowUpRule
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	store := newMemStore()
	ctx := context.Background()

	campaignRepo := &memCampaignRepo{store: store}
	contactRepo := &memContactRepo{store: store}
	templateRepo := &memTemplateRepo{store: store}
	ruleRepo := &memRuleRepo{store: store}

	campaign := &model.Campaign{Name: "dispatch fixture", Status: model.CampaignStatusSending}
	require.NoError(t, campaignRepo.Create(ctx, campaign))

	contact := &model.Contact{
		CampaignID:  campaign.ID,
		FirstName:   "Ava",
		LastName:    "Stone",
		Email:       "ava@example.com",
		CompanyName: "Stonebridge Labs",
	}
	require.NoError(t, contactRepo.Create(ctx, contact))

	require.NoError(t, templateRepo.InsertPrimary(ctx, &model.EmailTemplate{
		CampaignID:      campaign.ID,
		Name:            "primary",
		SubjectTemplate: "Hello {{firstName}}",
		BodyTemplate:    "Hi {{firstName}}, greetings from us to {{companyName}}.",
	}))

	rule := &model.FollowUpRule{
		CampaignID:      campaign.ID,
		SubjectTemplate: "Re: hello {{firstName}}",
		BodyTemplate:    "Bumping this, {{firstName}}.",
		DelayDays:       3,
		IsActive:        true,
	}
	require.NoError(t, ruleRepo.Create(ctx, rule))

	transport := &fakeTransport{}
	return &dispatchFixture{
		store:     store,
		transport: transport,
		campaign:  campaign,
		contact:   contact,
		rule:      rule,
		svc: &DispatchService{
			CampaignRepo:    campaignRepo,
			ContactRepo:     contactRepo,
			TemplateRepo:    templateRepo,
			RuleRepo:        ruleRepo,
			SentRepo:        &memSentRepo{store: store},
			Transport:       transport,
			TrackingBaseURL: "https://outreach.example.com",
			Clock:           func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) },
			Logger:          zap.NewNop(),
		},
	}
}

func (f *dispatchFixture) initialJob() model.FollowUpJob {
	return model.FollowUpJob{CampaignID: f.campaign.ID, ContactID: f.contact.ID}
}

func TestDispatchInitialSend(t *testing.T) {
	f := newDispatchFixture(t)

	sent, err := f.svc.Dispatch(context.Background(), f.initialJob())
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.True(t, sent.IsInitial())
	assert.Equal(t, "Hello Ava", sent.Subject)
	assert.NotEmpty(t, sent.TrackingPixelID)
	assert.NotContains(t, sent.TrackingPixelID, "-")

	deliveries := f.transport.deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "ava@example.com", deliveries[0].To)
	assert.Contains(t, deliveries[0].Body, "Hi Ava, greetings from us to Stonebridge Labs.")
	assert.Contains(t, deliveries[0].Body, "/track/open/"+sent.TrackingPixelID+".png")
}

func TestDispatchFollowUpUsesRuleTemplates(t *testing.T) {
	f := newDispatchFixture(t)
	_, err := f.svc.Dispatch(context.Background(), f.initialJob())
	require.NoError(t, err)

	ruleID := f.rule.ID
	sent, err := f.svc.Dispatch(context.Background(), model.FollowUpJob{
		CampaignID: f.campaign.ID,
		ContactID:  f.contact.ID,
		RuleID:     &ruleID,
	})
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.False(t, sent.IsInitial())
	assert.Equal(t, "Re: hello Ava", sent.Subject)
}

func TestDispatchSecondAttemptConflicts(t *testing.T) {
	f := newDispatchFixture(t)

	_, err := f.svc.Dispatch(context.Background(), f.initialJob())
	require.NoError(t, err)

	_, err = f.svc.Dispatch(context.Background(), f.initialJob())
	assert.ErrorIs(t, err, apperrors.ErrDispatchConflict)
	assert.Len(t, f.transport.deliveries(), 1)
}

func TestDispatchConcurrentRaceRecordsExactlyOne(t *testing.T) {
	f := newDispatchFixture(t)
	job := f.initialJob()

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Dispatch(context.Background(), job)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperrors.ErrDispatchConflict):
		default:
			t.Fatalf("unexpected dispatch error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	f.store.mu.Lock()
	rows := len(f.store.sent)
	f.store.mu.Unlock()
	assert.Equal(t, 1, rows)
}

func TestDispatchTransportFailureLeavesNoTrace(t *testing.T) {
	f := newDispatchFixture(t)
	f.transport.failNext = errors.New("connection refused")

	_, err := f.svc.Dispatch(context.Background(), f.initialJob())
	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))

	// Nothing was recorded, so the next sweep offers the job again.
	initial, err := f.svc.SentRepo.GetInitialSend(context.Background(), f.campaign.ID, f.contact.ID)
	require.NoError(t, err)
	assert.Nil(t, initial)

	sent, err := f.svc.Dispatch(context.Background(), f.initialJob())
	require.NoError(t, err)
	assert.NotNil(t, sent)
}

func TestDispatchSkipsPausedCampaign(t *testing.T) {
	f := newDispatchFixture(t)
	require.NoError(t, f.svc.CampaignRepo.UpdateStatus(context.Background(), f.campaign.ID, model.CampaignStatusPaused))

	sent, err := f.svc.Dispatch(context.Background(), f.initialJob())
	require.NoError(t, err)
	assert.Nil(t, sent)
	assert.Empty(t, f.transport.deliveries())
}

func TestDispatchSkipsDeletedContact(t *testing.T) {
	f := newDispatchFixture(t)
	require.NoError(t, f.svc.ContactRepo.SoftDelete(context.Background(), f.contact.ID))

	sent, err := f.svc.Dispatch(context.Background(), f.initialJob())
	require.NoError(t, err)
	assert.Nil(t, sent)
	assert.Empty(t, f.transport.deliveries())
}

func TestRecordOpenSetsFirstOpenOnceAndCounts(t *testing.T) {
	f := newDispatchFixture(t)
	sent, err := f.svc.Dispatch(context.Background(), f.initialJob())
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, f.svc.RecordOpen(context.Background(), sent.TrackingPixelID, "198.51.100.7"))
	}
	require.NoError(t, f.svc.RecordOpen(context.Background(), sent.TrackingPixelID, "203.0.113.4"))

	got, err := f.svc.SentRepo.GetInitialSend(context.Background(), f.campaign.ID, f.contact.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.OpenCount)
	require.NotNil(t, got.OpenedAt)
	assert.Equal(t, "198.51.100.7", got.FirstOpenedIP)
	require.NotNil(t, got.LastOpenedAt)
}

func TestRecordOpenUnknownPixelIsNoop(t *testing.T) {
	f := newDispatchFixture(t)
	assert.NoError(t, f.svc.RecordOpen(context.Background(), "doesnotexist", "198.51.100.7"))
}
