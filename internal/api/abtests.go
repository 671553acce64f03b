package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/engine"
)

// ABTestHandler exposes the A/B test lifecycle endpoints.
type ABTestHandler struct {
	manager *engine.ABTestManager
}

func NewABTestHandler(m *engine.ABTestManager) *ABTestHandler {
	return &ABTestHandler{manager: m}
}

// Send queues the test phase of an A/B campaign: a sampled slice of
// pending recipients split across the configured variants.
func (h *ABTestHandler) Send(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	result, err := h.manager.QueueABTestCampaign(r.Context(), campaignID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, result)
}

type sendWinnerRequest struct {
	WinnerVariantID string `json:"winner_variant_id"`
}

// SendWinner records the winning variant and queues its content for every
// recipient the test phase skipped.
func (h *ABTestHandler) SendWinner(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	var req sendWinnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WinnerVariantID == "" {
		respondError(w, http.StatusBadRequest, "winner_variant_id is required")
		return
	}

	result, err := h.manager.SendToRemainingRecipients(r.Context(), campaignID, req.WinnerVariantID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, result)
}

// AutoWinner picks the best performing variant by engagement rate and rolls
// it out to the remaining recipients in one step.
func (h *ABTestHandler) AutoWinner(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	winner, err := h.manager.AutoSelectWinner(r.Context(), campaignID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	result, err := h.manager.SendToRemainingRecipients(r.Context(), campaignID, winner.ID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"winner_variant_id": winner.ID,
		"queued_count":      result.QueuedCount,
		"success":           result.Success,
	})
}

func (h *ABTestHandler) Results(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	results, err := h.manager.Results(r.Context(), campaignID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *ABTestHandler) HasTest(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	has, err := h.manager.HasTest(r.Context(), campaignID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"has_test": has})
}

type recordEventRequest struct {
	RecipientID string `json:"recipient_id"`
	Event       string `json:"event"`
}

var validEvents = map[domain.ABTestEvent]bool{
	domain.ABEventSent:      true,
	domain.ABEventOpened:    true,
	domain.ABEventClicked:   true,
	domain.ABEventBounced:   true,
	domain.ABEventConverted: true,
}

func (h *ABTestHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	event := domain.ABTestEvent(req.Event)
	if !validEvents[event] {
		respondError(w, http.StatusBadRequest, "unknown event type")
		return
	}

	if err := h.manager.RecordEvent(r.Context(), req.RecipientID, event); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
