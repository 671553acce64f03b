package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/engine"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/store"
)

// CampaignHandler forwards campaign dispatch and control operations.
type CampaignHandler struct {
	dispatcher *engine.Dispatcher
	control    *engine.ControlPlane
	store      *store.PostgresStore
	queue      *queue.Queue
}

func NewCampaignHandler(d *engine.Dispatcher, cp *engine.ControlPlane, s *store.PostgresStore, q *queue.Queue) *CampaignHandler {
	return &CampaignHandler{dispatcher: d, control: cp, store: s, queue: q}
}

type sendCampaignRequest struct {
	Priority     int        `json:"priority"`
	BatchSize    int        `json:"batch_size"`
	BatchDelayMs int64      `json:"delay_between_batches_ms"`
	SMTPConfigID string     `json:"smtp_config_id"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
}

func (h *CampaignHandler) Send(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "campaignID")

	var req sendCampaignRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	res, err := h.dispatcher.QueueCampaign(r.Context(), id, domain.SendOptions{
		Priority:     req.Priority,
		BatchSize:    req.BatchSize,
		BatchDelay:   time.Duration(req.BatchDelayMs) * time.Millisecond,
		SMTPConfigID: req.SMTPConfigID,
		ScheduledAt:  req.ScheduledAt,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, res)
}

func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	ok, err := h.control.PauseCampaign(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	ok, err := h.control.ResumeCampaign(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (h *CampaignHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.control.CancelCampaign(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *CampaignHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	res, err := h.control.RetryFailedRecipients(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type campaignQueueStatus struct {
	Status         domain.CampaignStatus `json:"status"`
	Paused         bool                  `json:"paused"`
	RecipientCount int                   `json:"recipient_count"`
	SentCount      int                   `json:"sent_count"`
	FailedCount    int                   `json:"failed_count"`
}

// QueueStatus reports one campaign's position in the dispatch pipeline.
func (h *CampaignHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "campaignID")

	c, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load campaign")
		return
	}
	if c == nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}

	paused, err := h.queue.IsPaused(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read pause flag")
		return
	}

	respondJSON(w, http.StatusOK, campaignQueueStatus{
		Status:         c.Status,
		Paused:         paused,
		RecipientCount: c.RecipientCount,
		SentCount:      c.SentCount,
		FailedCount:    c.FailedCount,
	})
}
