package service

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/llm"
	"github.com/vedanschi/pebble-outreach/internal/model"
)

// memStore backs the in-memory repository fakes. The mutex mirrors the
// database's serialization so the dispatch race tests are meaningful.
type memStore struct {
	mu            sync.Mutex
	nextID        int
	campaigns     map[int]*model.Campaign
	contacts      map[int]*model.Contact
	conversations map[int]*model.Conversation
	templates     map[int]*model.EmailTemplate
	rules         map[int]*model.FollowUpRule
	sent          []*model.SentEmail
}

func newMemStore() *memStore {
	return &memStore{
		campaigns:     map[int]*model.Campaign{},
		contacts:      map[int]*model.Contact{},
		conversations: map[int]*model.Conversation{},
		templates:     map[int]*model.EmailTemplate{},
		rules:         map[int]*model.FollowUpRule{},
	}
}

// id must be called with mu held.
func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

type memCampaignRepo struct{ store *memStore }

func (r *memCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c.ID = r.store.id()
	r.store.campaigns[c.ID] = c
	return nil
}

func (r *memCampaignRepo) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.campaigns[id]
	if !ok {
		return nil, apperrors.NewNotFound("campaign", id)
	}
	cp := *c
	return &cp, nil
}

func (r *memCampaignRepo) UpdateStatus(_ context.Context, campaignID int, status string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.campaigns[campaignID]
	if !ok {
		return apperrors.NewNotFound("campaign", campaignID)
	}
	c.Status = status
	now := time.Now().UTC()
	c.UpdatedAt = &now
	return nil
}

func (r *memCampaignRepo) ListDispatchable(_ context.Context) ([]*model.Campaign, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range r.store.campaigns {
		if c.Dispatchable() {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memContactRepo struct{ store *memStore }

func (r *memContactRepo) Create(_ context.Context, c *model.Contact) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c.ID = r.store.id()
	r.store.contacts[c.ID] = c
	return nil
}

func (r *memContactRepo) GetByID(_ context.Context, id int) (*model.Contact, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.contacts[id]
	if !ok {
		return nil, apperrors.NewNotFound("contact", id)
	}
	cp := *c
	return &cp, nil
}

func (r *memContactRepo) ListByCampaign(_ context.Context, campaignID int) ([]*model.Contact, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*model.Contact{}
	for _, c := range r.store.contacts {
		if c.CampaignID == campaignID && !c.Deleted {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memContactRepo) SoftDelete(_ context.Context, id int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.contacts[id]
	if !ok {
		return apperrors.NewNotFound("contact", id)
	}
	c.Deleted = true
	return nil
}

type memConversationRepo struct{ store *memStore }

func (r *memConversationRepo) Create(_ context.Context, campaignID int) (*model.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	conv := &model.Conversation{ID: r.store.id(), CampaignID: campaignID}
	r.store.conversations[conv.ID] = conv
	cp := *conv
	return &cp, nil
}

func (r *memConversationRepo) GetByID(_ context.Context, id int) (*model.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	conv, ok := r.store.conversations[id]
	if !ok {
		return nil, apperrors.NewNotFound("conversation", id)
	}
	cp := *conv
	cp.Turns = append([]model.Turn{}, conv.Turns...)
	return &cp, nil
}

func (r *memConversationRepo) AppendTurn(_ context.Context, conversationID int, role, content string) (*model.Turn, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	conv, ok := r.store.conversations[conversationID]
	if !ok {
		return nil, apperrors.NewNotFound("conversation", conversationID)
	}
	turn := model.Turn{ID: r.store.id(), ConversationID: conversationID, Role: role, Content: content}
	conv.Turns = append(conv.Turns, turn)
	return &turn, nil
}

func (r *memConversationRepo) MarkFinalized(_ context.Context, conversationID int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	conv, ok := r.store.conversations[conversationID]
	if !ok {
		return apperrors.NewNotFound("conversation", conversationID)
	}
	conv.Finalized = true
	return nil
}

type memTemplateRepo struct{ store *memStore }

func (r *memTemplateRepo) GetByID(_ context.Context, id int) (*model.EmailTemplate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.templates[id]
	if !ok {
		return nil, apperrors.NewNotFound("template", id)
	}
	cp := *t
	return &cp, nil
}

func (r *memTemplateRepo) GetPrimary(_ context.Context, campaignID int) (*model.EmailTemplate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, t := range r.store.templates {
		if t.CampaignID == campaignID && t.IsPrimary && !t.IsFollowUp {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("primary template for campaign", campaignID)
}

func (r *memTemplateRepo) InsertPrimary(_ context.Context, t *model.EmailTemplate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.templates {
		if existing.CampaignID == t.CampaignID && existing.IsPrimary && !existing.IsFollowUp {
			existing.IsPrimary = false
		}
	}
	t.ID = r.store.id()
	t.IsPrimary = true
	cp := *t
	r.store.templates[t.ID] = &cp
	return nil
}

type memRuleRepo struct{ store *memStore }

func (r *memRuleRepo) Create(_ context.Context, rule *model.FollowUpRule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rule.ID = r.store.id()
	if rule.Condition == "" {
		rule.Condition = model.ConditionSentAnyway
	}
	r.store.rules[rule.ID] = rule
	return nil
}

func (r *memRuleRepo) GetByID(_ context.Context, id int) (*model.FollowUpRule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rule, ok := r.store.rules[id]
	if !ok {
		return nil, apperrors.NewNotFound("follow-up rule", id)
	}
	cp := *rule
	return &cp, nil
}

func (r *memRuleRepo) ListActiveByCampaign(_ context.Context, campaignID int) ([]*model.FollowUpRule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*model.FollowUpRule{}
	for _, rule := range r.store.rules {
		if rule.CampaignID == campaignID && rule.IsActive {
			cp := *rule
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DelayDays != out[j].DelayDays {
			return out[i].DelayDays < out[j].DelayDays
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type memSentRepo struct{ store *memStore }

func (r *memSentRepo) Create(_ context.Context, s *model.SentEmail) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.sent {
		if existing.ContactID != s.ContactID {
			continue
		}
		if s.TriggeredByRuleID == nil && existing.TriggeredByRuleID == nil &&
			existing.CampaignID == s.CampaignID {
			return apperrors.ErrDispatchConflict
		}
		if s.TriggeredByRuleID != nil && existing.TriggeredByRuleID != nil &&
			*existing.TriggeredByRuleID == *s.TriggeredByRuleID {
			return apperrors.ErrDispatchConflict
		}
	}
	s.ID = r.store.id()
	cp := *s
	r.store.sent = append(r.store.sent, &cp)
	return nil
}

func (r *memSentRepo) GetInitialSend(_ context.Context, campaignID, contactID int) (*model.SentEmail, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.sent {
		if s.CampaignID == campaignID && s.ContactID == contactID &&
			s.TriggeredByRuleID == nil && s.Status == model.SentEmailStatusSent {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memSentRepo) ExistsForRule(_ context.Context, contactID, ruleID int) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.sent {
		if s.ContactID == contactID && s.TriggeredByRuleID != nil && *s.TriggeredByRuleID == ruleID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memSentRepo) RecordOpen(_ context.Context, trackingPixelID, ip string, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.sent {
		if s.TrackingPixelID != trackingPixelID {
			continue
		}
		s.OpenCount++
		t := at
		s.LastOpenedAt = &t
		if s.OpenedAt == nil {
			s.OpenedAt = &t
		}
		if s.FirstOpenedIP == "" {
			s.FirstOpenedIP = ip
		}
		return true, nil
	}
	return false, nil
}

func (r *memSentRepo) CountOutstanding(_ context.Context, campaignID int) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, c := range r.store.contacts {
		if c.CampaignID != campaignID || c.Deleted {
			continue
		}
		var initial *model.SentEmail
		for _, s := range r.store.sent {
			if s.CampaignID == campaignID && s.ContactID == c.ID &&
				s.TriggeredByRuleID == nil && s.Status == model.SentEmailStatusSent {
				initial = s
				break
			}
		}
		if initial == nil {
			count++
			continue
		}
		for _, rule := range r.store.rules {
			if rule.CampaignID != campaignID || !rule.IsActive {
				continue
			}
			if !rule.ConditionMet(initial) {
				continue
			}
			sent := false
			for _, s := range r.store.sent {
				if s.ContactID == c.ID && s.TriggeredByRuleID != nil && *s.TriggeredByRuleID == rule.ID {
					sent = true
					break
				}
			}
			if !sent {
				count++
			}
		}
	}
	return count, nil
}

// fakeGenerator scripts the generation capability turn by turn.
type fakeGenerator struct {
	mu        sync.Mutex
	drafts    []*llm.Draft
	draftErrs []error
	calls     int
	prompts   []string
	chatReply string
	chatErr   error
}

func (g *fakeGenerator) Generate(_ context.Context, systemPrompt string, _ []llm.Turn) (*llm.Draft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	g.prompts = append(g.prompts, systemPrompt)
	var err error
	if i < len(g.draftErrs) {
		err = g.draftErrs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(g.drafts) {
		return g.drafts[i], nil
	}
	return &llm.Draft{Subject: "Hello {{firstName}}", Body: "Hi {{firstName}}, checking in."}, nil
}

func (g *fakeGenerator) Chat(_ context.Context, _ string, _ []llm.Turn) (string, error) {
	if g.chatErr != nil {
		return "", g.chatErr
	}
	if g.chatReply != "" {
		return g.chatReply, nil
	}
	return "How formal should the tone be?", nil
}

// fakeTransport records deliveries and can be scripted to fail.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []fakeDelivery
	failNext error
}

type fakeDelivery struct {
	To      string
	Subject string
	Body    string
}

func (t *fakeTransport) Send(_ context.Context, to, subject, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext != nil {
		err := t.failNext
		t.failNext = nil
		return err
	}
	t.sent = append(t.sent, fakeDelivery{To: to, Subject: subject, Body: body})
	return nil
}

func (t *fakeTransport) deliveries() []fakeDelivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]fakeDelivery{}, t.sent...)
}
