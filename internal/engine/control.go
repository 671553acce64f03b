package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
)

// CancelResult reports how many not-yet-started jobs a cancel removed.
type CancelResult struct {
	Success       bool `json:"success"`
	CancelledJobs int  `json:"cancelled_jobs"`
}

// RetryResult reports how many FAILED recipients were re-dispatched.
type RetryResult struct {
	Success      bool `json:"success"`
	RetriedCount int  `json:"retried_count"`
}

// ControlPlane mutates queue contents and campaign state together for the
// mid-flight operations. Every operation is a safe no-op when the campaign
// is already in the target state, so callers can retry blindly on timeout.
type ControlPlane struct {
	campaigns  CampaignStore
	recipients RecipientStore
	queue      *queue.Queue
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewControlPlane(campaigns CampaignStore, recipients RecipientStore, q *queue.Queue, d *Dispatcher, logger *slog.Logger) *ControlPlane {
	return &ControlPlane{
		campaigns:  campaigns,
		recipients: recipients,
		queue:      q,
		dispatcher: d,
		logger:     logger,
	}
}

// PauseCampaign halts dequeuing for a SENDING campaign. Jobs already
// executing are allowed to complete.
func (cp *ControlPlane) PauseCampaign(ctx context.Context, campaignID string) (bool, error) {
	c, err := cp.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return false, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil {
		return false, &NotFoundError{Kind: "campaign", ID: campaignID}
	}

	switch c.Status {
	case domain.CampaignPaused:
		return true, nil
	case domain.CampaignSending:
	default:
		return false, &StateConflictError{Op: "pause campaign", Status: string(c.Status)}
	}

	// Flag the queue first: once the flag is visible no new job starts,
	// even if the status write below races with a worker.
	if err := cp.queue.PauseCampaign(ctx, campaignID); err != nil {
		return false, err
	}
	if _, err := cp.campaigns.UpdateCampaignStatus(ctx, campaignID,
		[]domain.CampaignStatus{domain.CampaignSending}, domain.CampaignPaused); err != nil {
		return false, fmt.Errorf("pausing campaign: %w", err)
	}

	cp.logger.Info("campaign paused", "campaign_id", campaignID)
	return true, nil
}

// ResumeCampaign lets a PAUSED campaign's existing QUEUED jobs proceed.
// No jobs are re-created.
func (cp *ControlPlane) ResumeCampaign(ctx context.Context, campaignID string) (bool, error) {
	c, err := cp.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return false, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil {
		return false, &NotFoundError{Kind: "campaign", ID: campaignID}
	}

	switch c.Status {
	case domain.CampaignSending:
		return true, nil
	case domain.CampaignPaused:
	default:
		return false, &StateConflictError{Op: "resume campaign", Status: string(c.Status)}
	}

	if _, err := cp.campaigns.UpdateCampaignStatus(ctx, campaignID,
		[]domain.CampaignStatus{domain.CampaignPaused}, domain.CampaignSending); err != nil {
		return false, fmt.Errorf("resuming campaign: %w", err)
	}
	if err := cp.queue.ResumeCampaign(ctx, campaignID); err != nil {
		return false, err
	}

	cp.logger.Info("campaign resumed", "campaign_id", campaignID)
	return true, nil
}

// CancelCampaign removes all waiting and delayed jobs of the campaign,
// reverts their recipients to PENDING and marks the campaign CANCELLED.
// Jobs already executing are not interrupted; their recipients may still
// reach SENT or FAILED afterwards, which is the accepted race.
func (cp *ControlPlane) CancelCampaign(ctx context.Context, campaignID string) (CancelResult, error) {
	c, err := cp.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return CancelResult{}, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil {
		return CancelResult{}, &NotFoundError{Kind: "campaign", ID: campaignID}
	}

	switch c.Status {
	case domain.CampaignCancelled:
		return CancelResult{Success: true}, nil
	case domain.CampaignSending, domain.CampaignPaused, domain.CampaignScheduled:
	default:
		return CancelResult{}, &StateConflictError{Op: "cancel campaign", Status: string(c.Status)}
	}

	removed, err := cp.queue.RemoveByCampaign(ctx, campaignID)
	if err != nil {
		return CancelResult{}, err
	}

	if len(removed) > 0 {
		ids := make([]string, 0, len(removed))
		for _, job := range removed {
			ids = append(ids, job.RecipientID)
		}
		if _, err := cp.recipients.RevertQueuedToPending(ctx, ids); err != nil {
			return CancelResult{}, fmt.Errorf("reverting cancelled recipients: %w", err)
		}
	}

	if _, err := cp.campaigns.UpdateCampaignStatus(ctx, campaignID,
		[]domain.CampaignStatus{domain.CampaignSending, domain.CampaignPaused, domain.CampaignScheduled},
		domain.CampaignCancelled); err != nil {
		return CancelResult{}, fmt.Errorf("cancelling campaign: %w", err)
	}
	if err := cp.queue.ResumeCampaign(ctx, campaignID); err != nil {
		return CancelResult{}, err
	}

	cp.logger.Info("campaign cancelled",
		"campaign_id", campaignID,
		"cancelled_jobs", len(removed),
	)
	return CancelResult{Success: true, CancelledJobs: len(removed)}, nil
}

// RetryFailedRecipients resets FAILED recipients to PENDING and re-runs the
// dispatch batching for just that subset. Nothing FAILED means a successful
// zero-count result, not an error.
func (cp *ControlPlane) RetryFailedRecipients(ctx context.Context, campaignID string) (RetryResult, error) {
	c, err := cp.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return RetryResult{}, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil {
		return RetryResult{}, &NotFoundError{Kind: "campaign", ID: campaignID}
	}
	if c.Status != domain.CampaignCompleted && c.Status != domain.CampaignSending {
		return RetryResult{}, &StateConflictError{Op: "retry failed recipients", Status: string(c.Status)}
	}

	reset, err := cp.recipients.ResetFailedToPending(ctx, campaignID)
	if err != nil {
		return RetryResult{}, fmt.Errorf("resetting failed recipients: %w", err)
	}
	if len(reset) == 0 {
		return RetryResult{Success: true, RetriedCount: 0}, nil
	}

	queued, err := cp.dispatcher.dispatch(ctx, c, reset,
		content{Subject: c.Subject, Body: c.BodyHTML}, domain.SendOptions{})
	if err != nil {
		return RetryResult{RetriedCount: queued}, err
	}

	cp.logger.Info("failed recipients retried",
		"campaign_id", campaignID,
		"retried_count", queued,
	)
	return RetryResult{Success: true, RetriedCount: queued}, nil
}
