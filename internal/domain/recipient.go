package domain

import (
	"time"
)

// RecipientStatus is one recipient's position in the delivery funnel.
//
// Transitions are monotonic along
// PENDING→QUEUED→SENT→DELIVERED→OPENED→CLICKED. BOUNCED and FAILED are
// absorbing and reachable only from QUEUED or SENT; UNSUBSCRIBED is
// absorbing and reachable from QUEUED onward, since an unsubscribe can
// arrive long after the message was opened.
type RecipientStatus string

const (
	RecipientPending      RecipientStatus = "PENDING"
	RecipientQueued       RecipientStatus = "QUEUED"
	RecipientSent         RecipientStatus = "SENT"
	RecipientDelivered    RecipientStatus = "DELIVERED"
	RecipientOpened       RecipientStatus = "OPENED"
	RecipientClicked      RecipientStatus = "CLICKED"
	RecipientBounced      RecipientStatus = "BOUNCED"
	RecipientFailed       RecipientStatus = "FAILED"
	RecipientUnsubscribed RecipientStatus = "UNSUBSCRIBED"
)

// funnelRank orders the forward funnel. Absorbing states are not ranked;
// they are handled explicitly by the transition guards.
var funnelRank = map[RecipientStatus]int{
	RecipientPending:   0,
	RecipientQueued:    1,
	RecipientSent:      2,
	RecipientDelivered: 3,
	RecipientOpened:    4,
	RecipientClicked:   5,
}

// CanAdvance reports whether moving from to next is a forward funnel step.
func CanAdvance(from, next RecipientStatus) bool {
	a, ok1 := funnelRank[from]
	b, ok2 := funnelRank[next]
	if ok1 && ok2 {
		return b > a
	}
	switch next {
	case RecipientBounced, RecipientFailed:
		return from == RecipientQueued || from == RecipientSent
	case RecipientUnsubscribed:
		return from == RecipientQueued || from == RecipientSent ||
			from == RecipientDelivered || from == RecipientOpened || from == RecipientClicked
	}
	return false
}

// Recipient is one addressee within a campaign.
type Recipient struct {
	ID             string          `json:"id"`
	CampaignID     string          `json:"campaign_id"`
	Email          string          `json:"email"`
	Name           string          `json:"name,omitempty"`
	Status         RecipientStatus `json:"status"`
	TrackingID     string          `json:"tracking_id"`
	VariantID      *string         `json:"variant_id,omitempty"`
	QueuedAt       *time.Time      `json:"queued_at,omitempty"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	OpenedAt       *time.Time      `json:"opened_at,omitempty"`
	ClickedAt      *time.Time      `json:"clicked_at,omitempty"`
	UnsubscribedAt *time.Time      `json:"unsubscribed_at,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
