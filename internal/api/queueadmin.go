package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/health"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/worker"
)

// QueueHandler exposes the privileged queue operations.
type QueueHandler struct {
	monitor *health.Monitor
	poller  *worker.Poller
}

func NewQueueHandler(m *health.Monitor, p *worker.Poller) *QueueHandler {
	return &QueueHandler{monitor: m, poller: p}
}

func (h *QueueHandler) Health(w http.ResponseWriter, r *http.Request) {
	snapshot := h.monitor.QueueHealth(r.Context())
	status := http.StatusOK
	if !snapshot.Healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, snapshot)
}

func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	snapshot := h.monitor.QueueHealth(r.Context())
	respondJSON(w, http.StatusOK, snapshot.Stats)
}

func (h *QueueHandler) BrokerHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.monitor.BrokerHealth(r.Context()))
}

func (h *QueueHandler) WorkerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.monitor.WorkerStatus())
}

func (h *QueueHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.poller.Pause()
	respondJSON(w, http.StatusOK, h.monitor.WorkerStatus())
}

func (h *QueueHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.poller.Resume()
	respondJSON(w, http.StatusOK, h.monitor.WorkerStatus())
}

type cleanQueueRequest struct {
	GracePeriodMs int64  `json:"grace_period_ms"`
	Limit         int64  `json:"limit"`
	Status        string `json:"status"`
}

type cleanQueueResponse struct {
	RemovedJobIDs []string `json:"removed_job_ids"`
}

func (h *QueueHandler) Clean(w http.ResponseWriter, r *http.Request) {
	var req cleanQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 1000
	}

	removed, err := h.monitor.CleanQueue(r.Context(),
		time.Duration(req.GracePeriodMs)*time.Millisecond, req.Limit, queue.State(req.Status))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if removed == nil {
		removed = []string{}
	}
	respondJSON(w, http.StatusOK, cleanQueueResponse{RemovedJobIDs: removed})
}
