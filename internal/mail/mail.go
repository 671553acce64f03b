// Package mail holds the outbound message model, merge-tag rendering and
// the SMTP transport collaborator.
package mail

import (
	"context"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
)

// Message is one rendered outbound email.
type Message struct {
	FromName  string
	FromEmail string
	ToName    string
	ToEmail   string
	Subject   string
	HTML      string
	// TrackingID travels in a header so bounce processing can correlate.
	TrackingID string
}

// Outcome tags a send result so retry logic branches on data, not on
// control flow.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeRetryable
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "permanent"
	}
}

// Result is the tagged outcome of one send attempt.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Sent returns the success result.
func Sent() Result { return Result{Outcome: OutcomeSent} }

// Retryable marks a transient failure worth a backoff retry.
func Retryable(reason string) Result {
	return Result{Outcome: OutcomeRetryable, Reason: reason}
}

// Permanent marks a failure that retrying cannot fix.
func Permanent(reason string) Result {
	return Result{Outcome: OutcomePermanent, Reason: reason}
}

// Transport sends a rendered message through one SMTP resource.
// Implementations classify their own failures into the tagged Result.
type Transport interface {
	Send(ctx context.Context, cfg *domain.SMTPConfig, msg *Message) Result
}
