package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
)

const campaignColumns = `id, name, subject, body_html, status, scheduled_at,
	priority, batch_size, batch_delay_ms, COALESCE(smtp_config_id::text, ''),
	recipient_count, sent_count, failed_count, created_at, updated_at`

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	var delayMs int64
	err := row.Scan(
		&c.ID, &c.Name, &c.Subject, &c.BodyHTML, &c.Status, &c.ScheduledAt,
		&c.Priority, &c.BatchSize, &delayMs, &c.SMTPConfigID,
		&c.RecipientCount, &c.SentCount, &c.FailedCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.BatchDelay = time.Duration(delayMs) * time.Millisecond
	return &c, nil
}

// GetCampaign returns the campaign, or nil if it does not exist.
func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(s.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying campaign: %w", err)
	}
	return c, nil
}

// UpdateCampaignStatus transitions the campaign only when its current
// status is one of from, and reports whether a row changed.
func (s *PostgresStore) UpdateCampaignStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, string(to), fromStrs)
	if err != nil {
		return false, fmt.Errorf("updating campaign status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCampaignScheduled records a future send time without enqueuing.
func (s *PostgresStore) MarkCampaignScheduled(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET status = 'SCHEDULED', scheduled_at = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('DRAFT', 'SCHEDULED')
	`, id, at)
	if err != nil {
		return fmt.Errorf("scheduling campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %s not schedulable", id)
	}
	return nil
}

// MarkBatchQueued flips the batch's recipients PENDING→QUEUED and the
// campaign to SENDING in a single transaction, so a concurrent reader
// never sees the batch half-applied.
func (s *PostgresStore) MarkBatchQueued(ctx context.Context, campaignID string, recipientIDs []string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE recipients SET status = 'QUEUED', queued_at = NOW()
		WHERE id = ANY($1) AND campaign_id = $2 AND status = 'PENDING'
	`, recipientIDs, campaignID)
	if err != nil {
		return 0, fmt.Errorf("queuing recipients: %w", err)
	}

	// COMPLETED is re-entered on retryFailedRecipients dispatch.
	_, err = tx.Exec(ctx, `
		UPDATE campaigns SET status = 'SENDING', updated_at = NOW()
		WHERE id = $1 AND status IN ('DRAFT', 'SCHEDULED', 'COMPLETED')
	`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("marking campaign sending: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing batch: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountCampaignsByStatus counts campaigns in the given status.
func (s *PostgresStore) CountCampaignsByStatus(ctx context.Context, status domain.CampaignStatus) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting campaigns: %w", err)
	}
	return n, nil
}

// ListDueScheduledCampaigns returns SCHEDULED campaigns whose scheduled
// time has arrived.
func (s *PostgresStore) ListDueScheduledCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = 'SCHEDULED' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY scheduled_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("querying due campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// FinishCampaignIfDone marks a SENDING campaign COMPLETED once no
// recipient is left in PENDING or QUEUED. Reports whether it completed.
func (s *PostgresStore) FinishCampaignIfDone(ctx context.Context, campaignID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET status = 'COMPLETED', updated_at = NOW()
		WHERE id = $1 AND status = 'SENDING'
		  AND NOT EXISTS (
			SELECT 1 FROM recipients
			WHERE campaign_id = $1 AND status IN ('PENDING', 'QUEUED')
		  )
	`, campaignID)
	if err != nil {
		return false, fmt.Errorf("completing campaign: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetSMTPConfig returns the SMTP resource config, or nil if absent.
func (s *PostgresStore) GetSMTPConfig(ctx context.Context, id string) (*domain.SMTPConfig, error) {
	var cfg domain.SMTPConfig
	var durMs int64
	err := s.pool.QueryRow(ctx, `
		SELECT id, host, port, username, password, from_email, from_name,
		       use_tls, rate_limit_max, rate_limit_duration_ms
		FROM smtp_configs WHERE id = $1
	`, id).Scan(
		&cfg.ID, &cfg.Host, &cfg.Port, &cfg.Username, &cfg.Password,
		&cfg.FromEmail, &cfg.FromName, &cfg.UseTLS, &cfg.RateLimitMax, &durMs,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying smtp config: %w", err)
	}
	cfg.RateLimitDuration = time.Duration(durMs) * time.Millisecond
	return &cfg, nil
}
