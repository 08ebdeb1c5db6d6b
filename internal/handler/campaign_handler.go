package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/vedanschi/pebble-outreach/internal/errors"
	"github.com/vedanschi/pebble-outreach/internal/model"
	"github.com/vedanschi/pebble-outreach/internal/repository"
	"github.com/vedanschi/pebble-outreach/internal/service"
)

// CampaignHandler is the thin REST surface over the core services.
// Handlers decode, delegate and encode; business rules live in the
// services.
type CampaignHandler struct {
	Campaigns     *service.CampaignService
	Conversations *service.ConversationService
	ContactRepo   repository.ContactRepositoryInterface
	RuleRepo      repository.FollowUpRuleRepositoryInterface
	TemplateRepo  repository.TemplateRepositoryInterface
	Logger        *zap.Logger
}

func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := h.Campaigns.CreateCampaign(r.Context(), body.Name, body.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := urlID(r, "id")
	campaign, err := h.Campaigns.GetCampaign(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) ActivateCampaign(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.Campaigns.Activate)
}

func (h *CampaignHandler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.Campaigns.Pause)
}

func (h *CampaignHandler) SendCampaign(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.Campaigns.TriggerSend)
}

func (h *CampaignHandler) statusTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int) error) {
	id := urlID(r, "id")
	if err := fn(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	campaign, err := h.Campaigns.GetCampaign(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FirstName    string            `json:"first_name"`
		LastName     string            `json:"last_name"`
		Email        string            `json:"email"`
		CompanyName  string            `json:"company_name"`
		CustomFields map[string]string `json:"custom_fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	contact := &model.Contact{
		CampaignID:   urlID(r, "id"),
		FirstName:    body.FirstName,
		LastName:     body.LastName,
		Email:        body.Email,
		CompanyName:  body.CompanyName,
		CustomFields: body.CustomFields,
	}
	if err := h.ContactRepo.Create(r.Context(), contact); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (h *CampaignHandler) AddFollowUpRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SubjectTemplate string `json:"subject_template"`
		BodyTemplate    string `json:"body_template"`
		DelayDays       int    `json:"delay_days"`
		Condition       string `json:"condition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.DelayDays < 0 {
		http.Error(w, "delay_days must be >= 0", http.StatusBadRequest)
		return
	}

	rule := &model.FollowUpRule{
		CampaignID:      urlID(r, "id"),
		SubjectTemplate: body.SubjectTemplate,
		BodyTemplate:    body.BodyTemplate,
		DelayDays:       body.DelayDays,
		Condition:       body.Condition,
		IsActive:        true,
	}
	if err := h.RuleRepo.Create(r.Context(), rule); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// PersonalizedPreview renders the campaign's primary template for one
// contact without persisting anything.
func (h *CampaignHandler) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactID int `json:"contact_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	tmpl, err := h.TemplateRepo.GetPrimary(r.Context(), urlID(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	contact, err := h.ContactRepo.GetByID(r.Context(), body.ContactID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	rendered := service.RenderTemplate(tmpl, contact)
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":        rendered.Subject,
		"body":           rendered.Body,
		"missing_fields": rendered.MissingFields,
	})
}

func (h *CampaignHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.Conversations.Start(r.Context(), urlID(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *CampaignHandler) ChatMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	reply, err := h.Conversations.Reply(r.Context(), urlID(r, "conversationID"), body.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (h *CampaignHandler) FinalizeConversation(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.Conversations.Finalize(r.Context(), urlID(r, "conversationID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

func (h *CampaignHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrInsufficientContext):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrGenerationUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrGenerationInvalid):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func urlID(r *http.Request, name string) int {
	id, _ := strconv.Atoi(chi.URLParam(r, name))
	return id
}
