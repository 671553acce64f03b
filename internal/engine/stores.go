package engine

import (
	"context"
	"time"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
)

// CampaignStore is the slice of the recipient store the engine needs for
// campaign rows. Implemented by store.PostgresStore; tests use fakes.
type CampaignStore interface {
	// GetCampaign returns nil, nil when the campaign does not exist.
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	// UpdateCampaignStatus transitions status only when the current status
	// is one of from, and reports whether a row changed.
	UpdateCampaignStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (bool, error)
	// MarkCampaignScheduled records a future send time without enqueuing.
	MarkCampaignScheduled(ctx context.Context, id string, at time.Time) error
	// MarkBatchQueued flips the given recipients PENDING→QUEUED and the
	// campaign to SENDING in one transaction, returning how many
	// recipients actually transitioned.
	MarkBatchQueued(ctx context.Context, campaignID string, recipientIDs []string) (int64, error)
	CountCampaignsByStatus(ctx context.Context, status domain.CampaignStatus) (int, error)
}

// RecipientStore is the recipient-row slice of the store used by dispatch
// and control operations.
type RecipientStore interface {
	ListRecipientsByStatus(ctx context.Context, campaignID string, status domain.RecipientStatus) ([]domain.Recipient, error)
	// ListPendingWithoutVariant returns the PENDING recipients that were
	// never assigned to an A/B test group.
	ListPendingWithoutVariant(ctx context.Context, campaignID string) ([]domain.Recipient, error)
	// RevertQueuedToPending undoes the QUEUED transition for recipients
	// whose jobs were removed before execution.
	RevertQueuedToPending(ctx context.Context, ids []string) (int64, error)
	// ResetFailedToPending moves every FAILED recipient of the campaign
	// back to PENDING and returns the reset rows.
	ResetFailedToPending(ctx context.Context, campaignID string) ([]domain.Recipient, error)
}

// ABTestStore is the A/B test persistence collaborator.
type ABTestStore interface {
	// GetTestByCampaign returns the test with its variants, or nil, nil.
	GetTestByCampaign(ctx context.Context, campaignID string) (*domain.ABTest, error)
	GetVariant(ctx context.Context, variantID string) (*domain.ABTestVariant, error)
	AssignVariant(ctx context.Context, recipientIDs []string, variantID string) error
	// GetRecipientVariant returns nil when the recipient has no variant.
	GetRecipientVariant(ctx context.Context, recipientID string) (*string, error)
	IncrementVariantCounter(ctx context.Context, variantID string, event domain.ABTestEvent) error
	SetTestStatus(ctx context.Context, testID string, status domain.ABTestStatus) error
	SetWinner(ctx context.Context, testID, variantID string) error
}
