package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
)

// Defaults are the dispatch knobs applied when send options leave them zero.
type Defaults struct {
	BatchSize   int
	BatchDelay  time.Duration
	MaxAttempts int
}

// QueueResult reports the outcome of a dispatch.
type QueueResult struct {
	Success     bool `json:"success"`
	QueuedCount int  `json:"queued_count"`
	// Scheduled is set when the campaign was only marked SCHEDULED and no
	// jobs were enqueued yet.
	Scheduled bool `json:"scheduled,omitempty"`
}

// content is the subject/body pair a dispatch stamps onto its jobs, either
// the campaign's own content or a variant override.
type content struct {
	Subject string
	Body    string
}

// Dispatcher turns an eligible recipient set into paced, batched jobs on
// the durable queue. It owns the campaign transition into SENDING.
type Dispatcher struct {
	campaigns  CampaignStore
	recipients RecipientStore
	queue      *queue.Queue
	defaults   Defaults
	logger     *slog.Logger
}

func NewDispatcher(campaigns CampaignStore, recipients RecipientStore, q *queue.Queue, defaults Defaults, logger *slog.Logger) *Dispatcher {
	if defaults.BatchSize <= 0 {
		defaults.BatchSize = 100
	}
	if defaults.BatchDelay <= 0 {
		defaults.BatchDelay = time.Second
	}
	if defaults.MaxAttempts <= 0 {
		defaults.MaxAttempts = 3
	}
	return &Dispatcher{
		campaigns:  campaigns,
		recipients: recipients,
		queue:      q,
		defaults:   defaults,
		logger:     logger,
	}
}

// QueueCampaign enqueues one job per PENDING recipient in paced batches and
// moves the campaign to SENDING. With a future opts.ScheduledAt it only
// records the schedule; the cron trigger dispatches it when due.
func (d *Dispatcher) QueueCampaign(ctx context.Context, campaignID string, opts domain.SendOptions) (QueueResult, error) {
	if campaignID == "" {
		return QueueResult{}, &ValidationError{Msg: "campaign id is required"}
	}

	c, err := d.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return QueueResult{}, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil {
		return QueueResult{}, &NotFoundError{Kind: "campaign", ID: campaignID}
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return QueueResult{}, &StateConflictError{Op: "queue campaign", Status: string(c.Status)}
	}

	if opts.ScheduledAt != nil && opts.ScheduledAt.After(time.Now()) {
		if err := d.campaigns.MarkCampaignScheduled(ctx, campaignID, *opts.ScheduledAt); err != nil {
			return QueueResult{}, fmt.Errorf("scheduling campaign: %w", err)
		}
		d.logger.Info("campaign scheduled",
			"campaign_id", campaignID,
			"scheduled_at", opts.ScheduledAt,
		)
		return QueueResult{Success: true, Scheduled: true}, nil
	}

	pending, err := d.recipients.ListRecipientsByStatus(ctx, campaignID, domain.RecipientPending)
	if err != nil {
		return QueueResult{}, fmt.Errorf("listing pending recipients: %w", err)
	}
	if len(pending) == 0 {
		return QueueResult{}, ErrNoRecipients
	}

	queued, err := d.dispatch(ctx, c, pending, content{Subject: c.Subject, Body: c.BodyHTML}, opts)
	if err != nil {
		return QueueResult{QueuedCount: queued}, err
	}

	d.logger.Info("campaign queued",
		"campaign_id", campaignID,
		"queued_count", queued,
	)
	return QueueResult{Success: true, QueuedCount: queued}, nil
}

// dispatch enqueues one job per recipient in batches of opts.BatchSize,
// each batch delayed by batchIndex × opts.BatchDelay. Every batch is
// enqueued to Redis first and then flipped QUEUED (plus campaign SENDING)
// in a single store transaction, so a concurrent reader never observes a
// half-applied batch. A failure on a later batch leaves earlier batches
// legitimately QUEUED; only the remainder is abandoned.
func (d *Dispatcher) dispatch(ctx context.Context, c *domain.Campaign, recipients []domain.Recipient, body content, opts domain.SendOptions) (int, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = c.BatchSize
	}
	if batchSize <= 0 {
		batchSize = d.defaults.BatchSize
	}
	delay := opts.BatchDelay
	if delay <= 0 {
		delay = c.BatchDelay
	}
	if delay <= 0 {
		delay = d.defaults.BatchDelay
	}
	smtpConfigID := opts.SMTPConfigID
	if smtpConfigID == "" {
		smtpConfigID = c.SMTPConfigID
	}
	priority := opts.Priority
	if priority == 0 {
		priority = c.Priority
	}

	now := time.Now()
	queued := 0

	for batchIndex := 0; batchIndex*batchSize < len(recipients); batchIndex++ {
		start := batchIndex * batchSize
		end := start + batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batch := recipients[start:end]

		notBefore := now.Add(time.Duration(batchIndex) * delay)
		jobs := make([]queue.Job, 0, len(batch))
		ids := make([]string, 0, len(batch))
		for _, r := range batch {
			jobs = append(jobs, queue.Job{
				ID:           uuid.NewString(),
				CampaignID:   c.ID,
				RecipientID:  r.ID,
				SMTPConfigID: smtpConfigID,
				Subject:      body.Subject,
				Body:         body.Body,
				Attempt:      1,
				MaxAttempts:  d.defaults.MaxAttempts,
				Priority:     priority,
				NotBefore:    notBefore,
			})
			ids = append(ids, r.ID)
		}

		if err := d.queue.Enqueue(ctx, jobs); err != nil {
			return queued, fmt.Errorf("enqueuing batch %d: %w", batchIndex, err)
		}
		if _, err := d.campaigns.MarkBatchQueued(ctx, c.ID, ids); err != nil {
			return queued, fmt.Errorf("recording batch %d: %w", batchIndex, err)
		}
		queued += len(batch)
	}

	return queued, nil
}
