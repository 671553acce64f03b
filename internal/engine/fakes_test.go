package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
)

// fakeStore implements CampaignStore, RecipientStore and ABTestStore on
// in-memory maps so engine behavior is testable without Postgres. The
// queue side stays real, backed by miniredis.
type fakeStore struct {
	mu sync.Mutex

	campaigns  map[string]*domain.Campaign
	recipients map[string]*domain.Recipient
	tests      map[string]*domain.ABTest // keyed by campaign id
	variants   map[string]*domain.ABTestVariant
	byVariant  map[string]string // recipient id -> variant id

	counters map[string]map[domain.ABTestEvent]int
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns:  map[string]*domain.Campaign{},
		recipients: map[string]*domain.Recipient{},
		tests:      map[string]*domain.ABTest{},
		variants:   map[string]*domain.ABTestVariant{},
		byVariant:  map[string]string{},
		counters:   map[string]map[domain.ABTestEvent]int{},
	}
}

func (f *fakeStore) addCampaign(id string, status domain.CampaignStatus) *domain.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &domain.Campaign{ID: id, Subject: "subj", BodyHTML: "<p>body</p>", Status: status}
	f.campaigns[id] = c
	return c
}

func (f *fakeStore) addRecipients(campaignID string, n int, status domain.RecipientStatus) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		f.nextID++
		id := fmt.Sprintf("%s-r%03d", campaignID, f.nextID)
		f.recipients[id] = &domain.Recipient{ID: id, CampaignID: campaignID, Email: id + "@example.com", Status: status}
		ids[i] = id
	}
	return ids
}

func (f *fakeStore) recipientStatus(id string) domain.RecipientStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recipients[id].Status
}

func (f *fakeStore) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) UpdateCampaignStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) MarkCampaignScheduled(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[id]; ok {
		c.Status = domain.CampaignScheduled
		c.ScheduledAt = &at
	}
	return nil
}

func (f *fakeStore) MarkBatchQueued(ctx context.Context, campaignID string, recipientIDs []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range recipientIDs {
		r, ok := f.recipients[id]
		if !ok || r.Status != domain.RecipientPending {
			continue
		}
		r.Status = domain.RecipientQueued
		n++
	}
	if c, ok := f.campaigns[campaignID]; ok && n > 0 {
		c.Status = domain.CampaignSending
	}
	return n, nil
}

func (f *fakeStore) CountCampaignsByStatus(ctx context.Context, status domain.CampaignStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.campaigns {
		if c.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListRecipientsByStatus(ctx context.Context, campaignID string, status domain.RecipientStatus) ([]domain.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Recipient
	for _, r := range f.recipients {
		if r.CampaignID == campaignID && r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPendingWithoutVariant(ctx context.Context, campaignID string) ([]domain.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Recipient
	for _, r := range f.recipients {
		if r.CampaignID != campaignID || r.Status != domain.RecipientPending {
			continue
		}
		if _, assigned := f.byVariant[r.ID]; assigned {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) RevertQueuedToPending(ctx context.Context, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r, ok := f.recipients[id]; ok && r.Status == domain.RecipientQueued {
			r.Status = domain.RecipientPending
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ResetFailedToPending(ctx context.Context, campaignID string) ([]domain.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Recipient
	for _, r := range f.recipients {
		if r.CampaignID == campaignID && r.Status == domain.RecipientFailed {
			r.Status = domain.RecipientPending
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTestByCampaign(ctx context.Context, campaignID string) (*domain.ABTest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	test, ok := f.tests[campaignID]
	if !ok {
		return nil, nil
	}
	cp := *test
	cp.Variants = append([]domain.ABTestVariant(nil), test.Variants...)
	return &cp, nil
}

func (f *fakeStore) GetVariant(ctx context.Context, variantID string) (*domain.ABTestVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.variants[variantID]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (f *fakeStore) AssignVariant(ctx context.Context, recipientIDs []string, variantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range recipientIDs {
		f.byVariant[id] = variantID
	}
	return nil
}

func (f *fakeStore) GetRecipientVariant(ctx context.Context, recipientID string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vid, ok := f.byVariant[recipientID]
	if !ok {
		return nil, nil
	}
	return &vid, nil
}

func (f *fakeStore) IncrementVariantCounter(ctx context.Context, variantID string, event domain.ABTestEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counters[variantID] == nil {
		f.counters[variantID] = map[domain.ABTestEvent]int{}
	}
	f.counters[variantID][event]++
	return nil
}

func (f *fakeStore) SetTestStatus(ctx context.Context, testID string, status domain.ABTestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, test := range f.tests {
		if test.ID == testID {
			test.Status = status
		}
	}
	return nil
}

func (f *fakeStore) SetWinner(ctx context.Context, testID, variantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, test := range f.tests {
		if test.ID == testID {
			vid := variantID
			test.WinnerVariantID = &vid
		}
	}
	return nil
}

func setupEngine(t *testing.T) (*fakeStore, *queue.Queue, *Dispatcher) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	fs := newFakeStore()
	q := queue.New(client, logger)
	d := NewDispatcher(fs, fs, q, Defaults{BatchSize: 10, BatchDelay: time.Second, MaxAttempts: 3}, logger)
	return fs, q, d
}
