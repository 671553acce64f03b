package queue

import (
	"time"
)

// Job is one transient unit of send work. It exists only inside Redis;
// the durable record of the recipient's delivery state lives in Postgres.
type Job struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaign_id"`
	RecipientID  string    `json:"recipient_id"`
	SMTPConfigID string    `json:"smtp_config_id,omitempty"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
	Priority     int       `json:"priority"`
	NotBefore    time.Time `json:"not_before"`

	// raw is the exact serialized member this job was dequeued as, so
	// Complete/Fail/Retry can remove it from the active set byte-for-byte.
	raw string
}

// State is a job-state bucket for enumeration and cleaning.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// Stats holds per-state job counts for the health snapshot.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}
