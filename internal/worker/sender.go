package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/engine"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/mail"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/metrics"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
	ws "github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/websocket"
)

// Store is the slice of the recipient store a sender needs. Every write is
// conditioned on the recipient's current status, so re-processing a
// duplicated job is a safe no-op.
type Store interface {
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)
	MarkRecipientSent(ctx context.Context, id string) (bool, error)
	MarkRecipientFailed(ctx context.Context, id, reason string) (bool, error)
	FinishCampaignIfDone(ctx context.Context, campaignID string) (bool, error)
	GetSMTPConfig(ctx context.Context, id string) (*domain.SMTPConfig, error)
}

// ABRecorder feeds variant counters; a recipient without a variant is a
// no-op inside the recorder.
type ABRecorder interface {
	RecordEvent(ctx context.Context, recipientID string, event domain.ABTestEvent) error
}

// Config tunes the sender's retry and timeout behavior.
type Config struct {
	SendTimeout time.Duration
	// Backoff[i] delays retry attempt i+1; later attempts reuse the last
	// entry. Pacing of batches and this retry schedule are independent
	// knobs: the dispatcher controls enqueue rate, this controls re-tries.
	Backoff         []time.Duration
	TrackingBaseURL string
}

// Sender executes one send job: it re-checks the durable recipient state,
// paces through the per-resource rate limiter, performs the send and
// reconciles recipient and campaign state with the outcome.
type Sender struct {
	store     Store
	queue     *queue.Queue
	transport mail.Transport
	limiter   *engine.RateLimiter
	abEvents  ABRecorder
	hub       *ws.Hub
	metrics   *metrics.Metrics
	cfg       Config
	logger    *slog.Logger
}

func NewSender(store Store, q *queue.Queue, transport mail.Transport, limiter *engine.RateLimiter, abEvents ABRecorder, hub *ws.Hub, m *metrics.Metrics, cfg Config, logger *slog.Logger) *Sender {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute}
	}
	return &Sender{
		store:     store,
		queue:     q,
		transport: transport,
		limiter:   limiter,
		abEvents:  abEvents,
		hub:       hub,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process runs one job to a terminal queue state. Jobs are delivered
// at-least-once; every recipient transition below is guarded on current
// status so a duplicate execution cannot double-apply.
func (s *Sender) Process(ctx context.Context, job queue.Job) {
	logger := s.logger.With("campaign_id", job.CampaignID, "recipient_id", job.RecipientID, "attempt", job.Attempt)

	r, err := s.store.GetRecipient(ctx, job.RecipientID)
	if err != nil {
		logger.Error("failed to load recipient, retrying job", "error", err)
		s.retryOrFail(ctx, job, fmt.Sprintf("loading recipient: %v", err), logger)
		return
	}
	if r == nil || (r.Status != domain.RecipientQueued && r.Status != domain.RecipientPending) {
		// Already handled by a duplicate of this job, or past the send
		// stage. Discard as a no-op success. PENDING is processed: the
		// dispatcher enqueues each batch before committing the QUEUED
		// transition, so a fast worker can claim a job whose recipient
		// record has not caught up yet.
		if s.metrics != nil {
			s.metrics.JobsDiscardedTotal.Inc()
		}
		if err := s.queue.Complete(ctx, job); err != nil {
			logger.Error("failed to complete discarded job", "error", err)
		}
		return
	}

	smtpCfg, err := s.store.GetSMTPConfig(ctx, job.SMTPConfigID)
	if err != nil {
		logger.Error("failed to load smtp config, retrying job", "error", err)
		s.retryOrFail(ctx, job, fmt.Sprintf("loading smtp config: %v", err), logger)
		return
	}
	if smtpCfg == nil {
		s.fail(ctx, job, r, fmt.Sprintf("smtp config %s not found", job.SMTPConfigID), logger)
		return
	}

	if err := s.limiter.Wait(ctx, smtpCfg.ID, smtpCfg.RateLimitMax, smtpCfg.RateLimitDuration); err != nil {
		// Shutdown while waiting for a permit; leave the job for a retry.
		s.retryOrFail(ctx, job, "rate limiter interrupted", logger)
		return
	}

	subject, body := mail.Render(job.Subject, job.Body, r, s.cfg.TrackingBaseURL)
	msg := &mail.Message{
		FromName:   smtpCfg.FromName,
		FromEmail:  smtpCfg.FromEmail,
		ToName:     r.Name,
		ToEmail:    r.Email,
		Subject:    subject,
		HTML:       body,
		TrackingID: r.TrackingID,
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	result := s.transport.Send(sendCtx, smtpCfg, msg)
	cancel()

	switch result.Outcome {
	case mail.OutcomeSent:
		s.succeed(ctx, job, r, logger)
	case mail.OutcomeRetryable:
		s.retryOrFail(ctx, job, result.Reason, logger)
	case mail.OutcomePermanent:
		s.fail(ctx, job, r, result.Reason, logger)
	}
}

func (s *Sender) succeed(ctx context.Context, job queue.Job, r *domain.Recipient, logger *slog.Logger) {
	won, err := s.store.MarkRecipientSent(ctx, job.RecipientID)
	if err != nil {
		logger.Error("failed to record sent status", "error", err)
		// The email went out; do not retry the job just because the
		// record write failed, the next duplicate would re-send.
	}
	if err := s.queue.Complete(ctx, job); err != nil {
		logger.Error("failed to complete job", "error", err)
	}
	if !won {
		return
	}

	if s.metrics != nil {
		s.metrics.EmailsSentTotal.Inc()
	}
	if s.abEvents != nil {
		if err := s.abEvents.RecordEvent(ctx, job.RecipientID, domain.ABEventSent); err != nil {
			logger.Error("failed to record ab test event", "error", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ws.CampaignEvent{
			Type:        ws.EventRecipientSent,
			CampaignID:  job.CampaignID,
			RecipientID: job.RecipientID,
			Attempt:     job.Attempt,
			Timestamp:   time.Now(),
		})
	}
	logger.Info("email sent", "email", r.Email)

	s.finishIfDone(ctx, job.CampaignID, logger)
}

// retryOrFail re-enqueues a transiently failed job with exponential
// backoff, or escalates to permanent failure once attempts are exhausted.
func (s *Sender) retryOrFail(ctx context.Context, job queue.Job, reason string, logger *slog.Logger) {
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	if job.Attempt >= maxAttempts {
		r, err := s.store.GetRecipient(ctx, job.RecipientID)
		if err != nil || r == nil {
			logger.Error("failed to load recipient for terminal failure", "error", err)
			if err := s.queue.Fail(ctx, job); err != nil {
				logger.Error("failed to fail job", "error", err)
			}
			return
		}
		s.fail(ctx, job, r, fmt.Sprintf("giving up after %d attempts: %s", job.Attempt, reason), logger)
		return
	}

	delay := s.backoffFor(job.Attempt)
	job.Attempt++
	if err := s.queue.Retry(ctx, job, delay); err != nil {
		logger.Error("failed to re-enqueue job", "error", err)
		return
	}

	if s.metrics != nil {
		s.metrics.EmailsRetriedTotal.Inc()
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ws.CampaignEvent{
			Type:        ws.EventRecipientRetrying,
			CampaignID:  job.CampaignID,
			RecipientID: job.RecipientID,
			Attempt:     job.Attempt,
			Error:       reason,
			Timestamp:   time.Now(),
		})
	}
	logger.Warn("send failed, retrying", "reason", reason, "delay", delay)
}

func (s *Sender) fail(ctx context.Context, job queue.Job, r *domain.Recipient, reason string, logger *slog.Logger) {
	won, err := s.store.MarkRecipientFailed(ctx, job.RecipientID, reason)
	if err != nil {
		logger.Error("failed to record failed status", "error", err)
	}
	if err := s.queue.Fail(ctx, job); err != nil {
		logger.Error("failed to fail job", "error", err)
	}
	if !won {
		return
	}

	if s.metrics != nil {
		s.metrics.EmailsFailedTotal.Inc()
	}
	if s.abEvents != nil {
		if err := s.abEvents.RecordEvent(ctx, job.RecipientID, domain.ABEventBounced); err != nil {
			logger.Error("failed to record ab test event", "error", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ws.CampaignEvent{
			Type:        ws.EventRecipientFailed,
			CampaignID:  job.CampaignID,
			RecipientID: job.RecipientID,
			Attempt:     job.Attempt,
			Error:       reason,
			Timestamp:   time.Now(),
		})
	}
	logger.Warn("email permanently failed", "email", r.Email, "reason", reason)

	s.finishIfDone(ctx, job.CampaignID, logger)
}

func (s *Sender) finishIfDone(ctx context.Context, campaignID string, logger *slog.Logger) {
	done, err := s.store.FinishCampaignIfDone(ctx, campaignID)
	if err != nil {
		logger.Error("failed to check campaign completion", "error", err)
		return
	}
	if done {
		if s.hub != nil {
			s.hub.BroadcastEvent(ws.CampaignEvent{
				Type:       ws.EventCampaignCompleted,
				CampaignID: campaignID,
				Timestamp:  time.Now(),
			})
		}
		logger.Info("campaign completed")
	}
}

// backoffFor returns the delay before the retry following attempt.
func (s *Sender) backoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.cfg.Backoff) {
		idx = len(s.cfg.Backoff) - 1
	}
	return s.cfg.Backoff[idx]
}
