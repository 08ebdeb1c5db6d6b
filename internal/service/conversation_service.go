package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/llm"
	"github.com/vedanschi/pebble-outreach/internal/model"
	"github.com/vedanschi/pebble-outreach/internal/repository"
)

// ConversationService is the conversation reducer: it drives the style
// negotiation chat and reduces a finished conversation into the campaign's
// primary email template.
type ConversationService struct {
	ConversationRepo repository.ConversationRepositoryInterface
	TemplateRepo     repository.TemplateRepositoryInterface
	Generator        llm.Generator
	Logger           *zap.Logger
}

// Start opens a new negotiation conversation for a campaign.
func (s *ConversationService) Start(ctx context.Context, campaignID int) (*model.Conversation, error) {
	return s.ConversationRepo.Create(ctx, campaignID)
}

// AppendTurn appends one turn. Finalized conversations are frozen; any
// further append is a caller bug.
func (s *ConversationService) AppendTurn(ctx context.Context, conversationID int, role, content string) (*model.Turn, error) {
	if role != model.RoleUser && role != model.RoleAssistant {
		return nil, fmt.Errorf("%w: unknown role %q", apperrors.ErrInvalidState, role)
	}
	conv, err := s.ConversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Finalized {
		return nil, fmt.Errorf("%w: conversation %d is finalized", apperrors.ErrInvalidState, conversationID)
	}
	return s.ConversationRepo.AppendTurn(ctx, conversationID, role, content)
}

// Reply obtains the assistant's next turn from the generation capability,
// then appends the user's message and the reply as a pair.
func (s *ConversationService) Reply(ctx context.Context, conversationID int, userContent string) (string, error) {
	conv, err := s.ConversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if conv.Finalized {
		return "", fmt.Errorf("%w: conversation %d is finalized", apperrors.ErrInvalidState, conversationID)
	}

	turns := toLLMTurns(conv.Turns)
	turns = append(turns, llm.Turn{Role: model.RoleUser, Content: userContent})

	reply, err := s.Generator.Chat(ctx, llm.ChatSystemPrompt, turns)
	if err != nil {
		return "", err
	}

	// Both turns are persisted only after a successful generation, so a
	// failed call leaves no dangling user turn and a retried Reply does
	// not store the message twice.
	if _, err := s.ConversationRepo.AppendTurn(ctx, conversationID, model.RoleUser, userContent); err != nil {
		return "", err
	}
	if _, err := s.ConversationRepo.AppendTurn(ctx, conversationID, model.RoleAssistant, reply); err != nil {
		return "", err
	}
	return reply, nil
}

// Finalize reduces the conversation into an email template, supersedes the
// campaign's prior primary template and freezes the conversation.
func (s *ConversationService) Finalize(ctx context.Context, conversationID int) (*model.EmailTemplate, error) {
	conv, err := s.ConversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Finalized {
		return nil, fmt.Errorf("%w: conversation %d already finalized", apperrors.ErrInvalidState, conversationID)
	}
	if len(conv.Turns) < 2 || !hasRole(conv.Turns, model.RoleUser) || !hasRole(conv.Turns, model.RoleAssistant) {
		return nil, fmt.Errorf("%w: at least one user and one assistant turn required before finalizing",
			apperrors.ErrInsufficientContext)
	}

	draft, err := s.generateValidated(ctx, toLLMTurns(conv.Turns))
	if err != nil {
		return nil, err
	}

	prompt := lastUserPrompt(conv.Turns)
	tmpl := &model.EmailTemplate{
		CampaignID:      conv.CampaignID,
		Name:            templateName(conv.CampaignID, prompt),
		SubjectTemplate: strings.TrimSpace(draft.Subject),
		BodyTemplate:    strings.TrimSpace(draft.Body),
		UserPrompt:      prompt,
	}
	if err := s.TemplateRepo.InsertPrimary(ctx, tmpl); err != nil {
		return nil, err
	}
	if err := s.ConversationRepo.MarkFinalized(ctx, conversationID); err != nil {
		return nil, err
	}

	s.Logger.Info("conversation finalized into template",
		zap.Int("conversation_id", conversationID),
		zap.Int("campaign_id", conv.CampaignID),
		zap.Int("template_id", tmpl.ID),
	)
	return tmpl, nil
}

// generateValidated calls the generation capability and validates its
// output. A malformed draft triggers exactly one retry with the failure
// described in the prompt; a second failure surfaces GenerationInvalid.
// Capability outages are surfaced immediately without retry.
func (s *ConversationService) generateValidated(ctx context.Context, turns []llm.Turn) (*llm.Draft, error) {
	draft, err := s.Generator.Generate(ctx, llm.FinalizeSystemPrompt, turns)
	if err == nil {
		err = validateDraft(draft)
		if err == nil {
			return draft, nil
		}
	}
	if errors.Is(err, apperrors.ErrGenerationUnavailable) {
		return nil, err
	}

	s.Logger.Warn("generation output rejected, retrying once", zap.Error(err))
	augmented := llm.FinalizeSystemPrompt + fmt.Sprintf(
		"\n\nYour previous response was rejected: %v. Correct the problem and respond again with valid JSON.", err)

	draft, retryErr := s.Generator.Generate(ctx, augmented, turns)
	if retryErr == nil {
		retryErr = validateDraft(draft)
		if retryErr == nil {
			return draft, nil
		}
	}
	if errors.Is(retryErr, apperrors.ErrGenerationUnavailable) {
		return nil, retryErr
	}
	return nil, fmt.Errorf("%w: %v", apperrors.ErrGenerationInvalid, retryErr)
}

func validateDraft(d *llm.Draft) error {
	if strings.TrimSpace(d.Subject) == "" {
		return errors.New("subject is empty")
	}
	if strings.TrimSpace(d.Body) == "" {
		return errors.New("body is empty")
	}
	if err := ValidatePlaceholders(d.Subject); err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	if err := ValidatePlaceholders(d.Body); err != nil {
		return fmt.Errorf("body: %w", err)
	}
	return nil
}

func toLLMTurns(turns []model.Turn) []llm.Turn {
	out := make([]llm.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Turn{Role: t.Role, Content: t.Content})
	}
	return out
}

func hasRole(turns []model.Turn, role string) bool {
	for _, t := range turns {
		if t.Role == role {
			return true
		}
	}
	return false
}

func lastUserPrompt(turns []model.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == model.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

func templateName(campaignID int, prompt string) string {
	if len(prompt) > 30 {
		prompt = prompt[:30] + "..."
	}
	return fmt.Sprintf("Finalized style - campaign %d - %s", campaignID, prompt)
}
