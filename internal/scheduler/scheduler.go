// Package scheduler triggers dispatch for campaigns whose scheduled send
// time has arrived.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/engine"
)

// Store lists campaigns due for dispatch.
type Store interface {
	ListDueScheduledCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// Dispatcher queues a due campaign.
type Dispatcher interface {
	QueueCampaign(ctx context.Context, campaignID string, opts domain.SendOptions) (engine.QueueResult, error)
}

// Scheduler polls for due SCHEDULED campaigns on a cron cadence and hands
// them to the dispatcher with their stored send options.
type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	cron       *cron.Cron
	logger     *slog.Logger
}

func New(store Store, dispatcher Dispatcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		cron:       cron.New(),
		logger:     logger,
	}
}

// Start registers the tick and launches the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@every 30s", func() { s.tick(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.store.ListDueScheduledCampaigns(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to list due campaigns", "error", err)
		return
	}

	for _, c := range due {
		res, err := s.dispatcher.QueueCampaign(ctx, c.ID, domain.SendOptions{
			Priority:     c.Priority,
			BatchSize:    c.BatchSize,
			BatchDelay:   c.BatchDelay,
			SMTPConfigID: c.SMTPConfigID,
		})
		if err != nil {
			// A conflict means another instance already dispatched it.
			if engine.IsStateConflict(err) || errors.Is(err, engine.ErrNoRecipients) {
				continue
			}
			s.logger.Error("failed to dispatch scheduled campaign",
				"campaign_id", c.ID, "error", err)
			continue
		}
		s.logger.Info("scheduled campaign dispatched",
			"campaign_id", c.ID, "queued_count", res.QueuedCount)
	}
}
