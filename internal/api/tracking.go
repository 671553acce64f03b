package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
)

// trackingPixel is a 1x1 transparent GIF served on open tracking hits.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingStore advances a recipient through the engagement funnel keyed by
// the opaque tracking id embedded in the rendered message.
type TrackingStore interface {
	AdvanceRecipientFunnel(ctx context.Context, trackingID string, next domain.RecipientStatus) (*domain.Recipient, bool, error)
}

// ABRecorder mirrors the engine's event recording surface.
type ABRecorder interface {
	RecordEvent(ctx context.Context, recipientID string, event domain.ABTestEvent) error
}

// TrackingHandler serves the open pixel, click redirect, and unsubscribe
// endpoints that recipients hit from within delivered mail.
type TrackingHandler struct {
	store    TrackingStore
	abEvents ABRecorder
	logger   *slog.Logger
}

func NewTrackingHandler(store TrackingStore, abEvents ABRecorder, logger *slog.Logger) *TrackingHandler {
	return &TrackingHandler{store: store, abEvents: abEvents, logger: logger}
}

// Open records an open event and always serves the pixel, even when the
// tracking id is unknown. Mail clients retry images; a 404 here leaks
// delivery state to nobody's benefit.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	h.advance(r, trackingID, domain.RecipientOpened, domain.ABEventOpened)

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(trackingPixel)
}

// Click records a click event and redirects to the target URL carried in
// the "url" query parameter.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	h.advance(r, trackingID, domain.RecipientClicked, domain.ABEventClicked)

	target := r.URL.Query().Get("url")
	if target == "" {
		respondError(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *TrackingHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	rec, _, err := h.store.AdvanceRecipientFunnel(r.Context(), trackingID, domain.RecipientUnsubscribed)
	if err != nil {
		h.logger.Error("unsubscribe failed", "tracking_id", trackingID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "unknown tracking id")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("<html><body><p>You have been unsubscribed.</p></body></html>"))
}

// advance moves the recipient funnel forward and feeds the variant counter.
// The counter only moves when the funnel did: a re-fetched pixel or a
// repeat click on an already-counted recipient records nothing.
func (h *TrackingHandler) advance(r *http.Request, trackingID string, next domain.RecipientStatus, event domain.ABTestEvent) {
	rec, advanced, err := h.store.AdvanceRecipientFunnel(r.Context(), trackingID, next)
	if err != nil {
		h.logger.Error("tracking update failed", "tracking_id", trackingID, "status", next, "error", err)
		return
	}
	if rec == nil || !advanced {
		return
	}
	if err := h.abEvents.RecordEvent(r.Context(), rec.ID, event); err != nil {
		h.logger.Error("variant event failed", "recipient_id", rec.ID, "event", event, "error", err)
	}
}
