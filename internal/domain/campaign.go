package domain

import (
	"time"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignScheduled CampaignStatus = "SCHEDULED"
	CampaignSending   CampaignStatus = "SENDING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignCancelled CampaignStatus = "CANCELLED"
	CampaignFailed    CampaignStatus = "FAILED"
)

// Campaign is one bulk-send unit with its own recipient set and lifecycle.
type Campaign struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Subject        string         `json:"subject"`
	BodyHTML       string         `json:"body_html"`
	Status         CampaignStatus `json:"status"`
	ScheduledAt    *time.Time     `json:"scheduled_at,omitempty"`
	Priority       int            `json:"priority"`
	BatchSize      int            `json:"batch_size"`
	BatchDelay     time.Duration  `json:"batch_delay_ms"`
	SMTPConfigID   string         `json:"smtp_config_id"`
	RecipientCount int            `json:"recipient_count"`
	SentCount      int            `json:"sent_count"`
	FailedCount    int            `json:"failed_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// SendOptions are the per-dispatch knobs supplied when queuing a campaign.
// Zero values fall back to the defaults in engine.
type SendOptions struct {
	Priority     int           `json:"priority"`
	BatchSize    int           `json:"batch_size"`
	BatchDelay   time.Duration `json:"delay_between_batches_ms"`
	SMTPConfigID string        `json:"smtp_config_id"`
	ScheduledAt  *time.Time    `json:"scheduled_at,omitempty"`
}

// SMTPConfig identifies one outbound SMTP resource and its egress limits.
type SMTPConfig struct {
	ID                string        `json:"id"`
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	Username          string        `json:"username"`
	Password          string        `json:"-"`
	FromEmail         string        `json:"from_email"`
	FromName          string        `json:"from_name"`
	UseTLS            bool          `json:"use_tls"`
	RateLimitMax      int           `json:"rate_limit_max"`
	RateLimitDuration time.Duration `json:"rate_limit_duration_ms"`
}
