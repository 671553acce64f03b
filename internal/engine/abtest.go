package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
)

// ABTestResults is the read model for a test's current standing.
type ABTestResults struct {
	IsComplete bool                   `json:"is_complete"`
	Winner     *domain.ABTestVariant  `json:"winner,omitempty"`
	Variants   []domain.ABTestVariant `json:"variants"`
}

// ABTestManager runs the split-test rollout on top of the dispatcher: test
// groups first, then the winning content to the held-back remainder.
type ABTestManager struct {
	tests      ABTestStore
	campaigns  CampaignStore
	recipients RecipientStore
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewABTestManager(tests ABTestStore, campaigns CampaignStore, recipients RecipientStore, d *Dispatcher, logger *slog.Logger) *ABTestManager {
	return &ABTestManager{
		tests:      tests,
		campaigns:  campaigns,
		recipients: recipients,
		dispatcher: d,
		logger:     logger,
	}
}

// QueueABTestCampaign splits the campaign's PENDING recipients, assigns
// each test group its variant and dispatches that variant's content only to
// its group. The remainder stays PENDING without a variant, reserved for
// the winner rollout.
func (m *ABTestManager) QueueABTestCampaign(ctx context.Context, campaignID string) (QueueResult, error) {
	c, err := m.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return QueueResult{}, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil {
		return QueueResult{}, &NotFoundError{Kind: "campaign", ID: campaignID}
	}

	test, err := m.tests.GetTestByCampaign(ctx, campaignID)
	if err != nil {
		return QueueResult{}, fmt.Errorf("loading ab test: %w", err)
	}
	if test == nil {
		return QueueResult{}, &NotFoundError{Kind: "ab test for campaign", ID: campaignID}
	}
	if test.Status != domain.ABTestDraft {
		return QueueResult{}, &StateConflictError{Op: "queue ab test", Status: string(test.Status)}
	}
	if len(test.Variants) < 2 {
		return QueueResult{}, &StateConflictError{Op: "queue ab test with fewer than 2 variants", Status: string(test.Status)}
	}

	pending, err := m.recipients.ListRecipientsByStatus(ctx, campaignID, domain.RecipientPending)
	if err != nil {
		return QueueResult{}, fmt.Errorf("listing pending recipients: %w", err)
	}
	if len(pending) == 0 {
		return QueueResult{}, ErrNoRecipients
	}

	ids := make([]string, len(pending))
	byID := make(map[string]domain.Recipient, len(pending))
	for i, r := range pending {
		ids[i] = r.ID
		byID[r.ID] = r
	}
	variantIDs := make([]string, len(test.Variants))
	for i, v := range test.Variants {
		variantIDs[i] = v.ID
	}

	split := SplitRecipients(ids, test.SamplePercent, variantIDs)

	queued := 0
	for _, v := range test.Variants {
		group := split.TestGroups[v.ID]
		if len(group) == 0 {
			continue
		}
		if err := m.tests.AssignVariant(ctx, group, v.ID); err != nil {
			return QueueResult{QueuedCount: queued}, fmt.Errorf("assigning variant %s: %w", v.ID, err)
		}
		recips := make([]domain.Recipient, 0, len(group))
		for _, id := range group {
			recips = append(recips, byID[id])
		}
		n, err := m.dispatcher.dispatch(ctx, c, recips,
			content{Subject: v.Subject, Body: v.BodyHTML}, domain.SendOptions{})
		queued += n
		if err != nil {
			return QueueResult{QueuedCount: queued}, err
		}
	}

	if err := m.tests.SetTestStatus(ctx, test.ID, domain.ABTestRunning); err != nil {
		return QueueResult{QueuedCount: queued}, fmt.Errorf("starting ab test: %w", err)
	}

	m.logger.Info("ab test queued",
		"campaign_id", campaignID,
		"test_id", test.ID,
		"test_recipients", split.TotalTestRecipients,
		"remaining", len(split.RemainingIDs),
	)
	return QueueResult{Success: true, QueuedCount: queued}, nil
}

// SendToRemainingRecipients dispatches the winning variant's content to
// every recipient held back from the test. An empty remainder succeeds
// trivially with a zero count.
func (m *ABTestManager) SendToRemainingRecipients(ctx context.Context, campaignID, winnerVariantID string) (QueueResult, error) {
	c, err := m.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return QueueResult{}, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil {
		return QueueResult{}, &NotFoundError{Kind: "campaign", ID: campaignID}
	}

	test, err := m.tests.GetTestByCampaign(ctx, campaignID)
	if err != nil {
		return QueueResult{}, fmt.Errorf("loading ab test: %w", err)
	}
	if test == nil {
		return QueueResult{}, &NotFoundError{Kind: "ab test for campaign", ID: campaignID}
	}

	winner, err := m.tests.GetVariant(ctx, winnerVariantID)
	if err != nil {
		return QueueResult{}, fmt.Errorf("loading winner variant: %w", err)
	}
	if winner == nil || winner.TestID != test.ID {
		return QueueResult{}, &NotFoundError{Kind: "variant", ID: winnerVariantID}
	}

	if err := m.tests.SetWinner(ctx, test.ID, winner.ID); err != nil {
		return QueueResult{}, fmt.Errorf("recording winner: %w", err)
	}

	remaining, err := m.recipients.ListPendingWithoutVariant(ctx, campaignID)
	if err != nil {
		return QueueResult{}, fmt.Errorf("listing remaining recipients: %w", err)
	}

	queued := 0
	if len(remaining) > 0 {
		queued, err = m.dispatcher.dispatch(ctx, c, remaining,
			content{Subject: winner.Subject, Body: winner.BodyHTML}, domain.SendOptions{})
		if err != nil {
			return QueueResult{QueuedCount: queued}, err
		}
	}

	if err := m.tests.SetTestStatus(ctx, test.ID, domain.ABTestCompleted); err != nil {
		return QueueResult{QueuedCount: queued}, fmt.Errorf("completing ab test: %w", err)
	}

	m.logger.Info("winner rollout queued",
		"campaign_id", campaignID,
		"winner_variant_id", winner.ID,
		"queued_count", queued,
	)
	return QueueResult{Success: true, QueuedCount: queued}, nil
}

// RecordEvent increments the counter of the recipient's assigned variant.
// Recipients outside the test sample have no variant; for them this is a
// deliberate no-op.
func (m *ABTestManager) RecordEvent(ctx context.Context, recipientID string, event domain.ABTestEvent) error {
	variantID, err := m.tests.GetRecipientVariant(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("looking up recipient variant: %w", err)
	}
	if variantID == nil {
		return nil
	}

	switch event {
	case domain.ABEventSent, domain.ABEventOpened, domain.ABEventClicked,
		domain.ABEventBounced, domain.ABEventConverted:
	default:
		return &ValidationError{Msg: fmt.Sprintf("unknown ab test event %q", event)}
	}

	if err := m.tests.IncrementVariantCounter(ctx, *variantID, event); err != nil {
		return fmt.Errorf("incrementing variant counter: %w", err)
	}
	return nil
}

// Results returns the current standing of the campaign's test, or nil when
// the campaign has no test.
func (m *ABTestManager) Results(ctx context.Context, campaignID string) (*ABTestResults, error) {
	test, err := m.tests.GetTestByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("loading ab test: %w", err)
	}
	if test == nil {
		return nil, nil
	}

	res := &ABTestResults{
		IsComplete: test.Status == domain.ABTestCompleted,
		Variants:   test.Variants,
	}
	if test.WinnerVariantID != nil {
		for i := range test.Variants {
			if test.Variants[i].ID == *test.WinnerVariantID {
				res.Winner = &test.Variants[i]
				break
			}
		}
	}
	return res, nil
}

// HasTest reports whether the campaign carries an A/B test.
func (m *ABTestManager) HasTest(ctx context.Context, campaignID string) (bool, error) {
	test, err := m.tests.GetTestByCampaign(ctx, campaignID)
	if err != nil {
		return false, fmt.Errorf("loading ab test: %w", err)
	}
	return test != nil, nil
}

// AutoSelectWinner picks the variant with the best engagement rate
// (opens plus clicks per sent) among variants that sent anything, records
// it and returns it. Returns nil when no variant has results yet.
func (m *ABTestManager) AutoSelectWinner(ctx context.Context, campaignID string) (*domain.ABTestVariant, error) {
	test, err := m.tests.GetTestByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("loading ab test: %w", err)
	}
	if test == nil {
		return nil, &NotFoundError{Kind: "ab test for campaign", ID: campaignID}
	}

	var best *domain.ABTestVariant
	var bestRate float64
	for i := range test.Variants {
		v := &test.Variants[i]
		if v.Sent == 0 {
			continue
		}
		rate := float64(v.Opened+v.Clicked) / float64(v.Sent)
		if best == nil || rate > bestRate {
			best = v
			bestRate = rate
		}
	}
	if best == nil {
		return nil, nil
	}

	if err := m.tests.SetWinner(ctx, test.ID, best.ID); err != nil {
		return nil, fmt.Errorf("recording winner: %w", err)
	}
	return best, nil
}
