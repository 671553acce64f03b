package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/engine"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/health"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/metrics"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/store"
	ws "github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/websocket"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/worker"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(
	pgStore *store.PostgresStore,
	q *queue.Queue,
	dispatcher *engine.Dispatcher,
	control *engine.ControlPlane,
	abTests *engine.ABTestManager,
	monitor *health.Monitor,
	poller *worker.Poller,
	hub *ws.Hub,
	m *metrics.Metrics,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	// Handlers
	campaignHandler := NewCampaignHandler(dispatcher, control, pgStore, q)
	abHandler := NewABTestHandler(abTests)
	queueHandler := NewQueueHandler(monitor, poller)
	trackingHandler := NewTrackingHandler(pgStore, abTests, logger)

	// WebSocket endpoint
	r.Get("/ws", hub.HandleWebSocket)

	// Prometheus scrape endpoint
	r.Handle("/metrics", m.Handler())

	// Tracking endpoints hit from delivered mail
	r.Route("/track/{trackingID}", func(r chi.Router) {
		r.Get("/open.gif", trackingHandler.Open)
		r.Get("/click", trackingHandler.Click)
		r.Get("/unsubscribe", trackingHandler.Unsubscribe)
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/campaigns/{campaignID}", func(r chi.Router) {
			r.Post("/send", campaignHandler.Send)
			r.Post("/pause", campaignHandler.Pause)
			r.Post("/resume", campaignHandler.Resume)
			r.Post("/cancel", campaignHandler.Cancel)
			r.Post("/retry-failed", campaignHandler.RetryFailed)
			r.Get("/queue-status", campaignHandler.QueueStatus)

			r.Route("/ab-test", func(r chi.Router) {
				r.Post("/send", abHandler.Send)
				r.Post("/winner", abHandler.SendWinner)
				r.Post("/auto-winner", abHandler.AutoWinner)
				r.Get("/results", abHandler.Results)
				r.Get("/", abHandler.HasTest)
			})
		})

		r.Post("/ab-events", abHandler.RecordEvent)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/health", queueHandler.Health)
			r.Get("/stats", queueHandler.Stats)
			r.Get("/broker", queueHandler.BrokerHealth)
			r.Get("/workers", queueHandler.WorkerStatus)
			r.Post("/pause", queueHandler.Pause)
			r.Post("/resume", queueHandler.Resume)
			r.Post("/clean", queueHandler.Clean)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
