package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
)

const recipientColumns = `id, campaign_id, email, name, status, tracking_id,
	variant_id, queued_at, sent_at, delivered_at, opened_at, clicked_at,
	unsubscribed_at, error_message, created_at`

func scanRecipient(row pgx.Row) (*domain.Recipient, error) {
	var r domain.Recipient
	err := row.Scan(
		&r.ID, &r.CampaignID, &r.Email, &r.Name, &r.Status, &r.TrackingID,
		&r.VariantID, &r.QueuedAt, &r.SentAt, &r.DeliveredAt, &r.OpenedAt,
		&r.ClickedAt, &r.UnsubscribedAt, &r.ErrorMessage, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRecipient returns the recipient, or nil if it does not exist.
func (s *PostgresStore) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	r, err := scanRecipient(s.pool.QueryRow(ctx,
		`SELECT `+recipientColumns+` FROM recipients WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying recipient: %w", err)
	}
	return r, nil
}

// ListRecipientsByStatus returns the campaign's recipients in the given
// status, in insertion order so batch splits are deterministic.
func (s *PostgresStore) ListRecipientsByStatus(ctx context.Context, campaignID string, status domain.RecipientStatus) ([]domain.Recipient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recipientColumns+` FROM recipients
		WHERE campaign_id = $1 AND status = $2
		ORDER BY created_at, id
	`, campaignID, string(status))
	if err != nil {
		return nil, fmt.Errorf("querying recipients: %w", err)
	}
	defer rows.Close()
	return collectRecipients(rows)
}

// ListPendingWithoutVariant returns PENDING recipients never assigned to a
// test group — the winner-rollout remainder.
func (s *PostgresStore) ListPendingWithoutVariant(ctx context.Context, campaignID string) ([]domain.Recipient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recipientColumns+` FROM recipients
		WHERE campaign_id = $1 AND status = 'PENDING' AND variant_id IS NULL
		ORDER BY created_at, id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("querying remaining recipients: %w", err)
	}
	defer rows.Close()
	return collectRecipients(rows)
}

func collectRecipients(rows pgx.Rows) ([]domain.Recipient, error) {
	var recipients []domain.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recipient: %w", err)
		}
		recipients = append(recipients, *r)
	}
	return recipients, rows.Err()
}

// MarkRecipientSent conditionally transitions the recipient to SENT and
// bumps the campaign sent counter. The status guard makes a duplicate job
// execution a no-op; the return value reports whether this call won.
func (s *PostgresStore) MarkRecipientSent(ctx context.Context, id string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning sent transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var campaignID string
	err = tx.QueryRow(ctx, `
		UPDATE recipients SET status = 'SENT', sent_at = NOW(), error_message = NULL
		WHERE id = $1 AND status IN ('QUEUED', 'PENDING')
		RETURNING campaign_id
	`, id).Scan(&campaignID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("marking recipient sent: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE campaigns SET sent_count = sent_count + 1, updated_at = NOW()
		WHERE id = $1
	`, campaignID)
	if err != nil {
		return false, fmt.Errorf("bumping sent count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing sent transition: %w", err)
	}
	return true, nil
}

// MarkRecipientFailed conditionally transitions the recipient to FAILED
// with the error message, bumping the campaign failed counter. Safe under
// duplicate execution like MarkRecipientSent.
func (s *PostgresStore) MarkRecipientFailed(ctx context.Context, id, reason string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning failed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var campaignID string
	err = tx.QueryRow(ctx, `
		UPDATE recipients SET status = 'FAILED', error_message = $2
		WHERE id = $1 AND status IN ('QUEUED', 'PENDING')
		RETURNING campaign_id
	`, id, reason).Scan(&campaignID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("marking recipient failed: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE campaigns SET failed_count = failed_count + 1, updated_at = NOW()
		WHERE id = $1
	`, campaignID)
	if err != nil {
		return false, fmt.Errorf("bumping failed count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing failed transition: %w", err)
	}
	return true, nil
}

// RevertQueuedToPending undoes the QUEUED transition for recipients whose
// jobs were removed from the queue before execution.
func (s *PostgresStore) RevertQueuedToPending(ctx context.Context, ids []string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE recipients SET status = 'PENDING', queued_at = NULL
		WHERE id = ANY($1) AND status = 'QUEUED'
	`, ids)
	if err != nil {
		return 0, fmt.Errorf("reverting recipients: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResetFailedToPending moves every FAILED recipient of the campaign back to
// PENDING and returns the reset rows for re-dispatch.
func (s *PostgresStore) ResetFailedToPending(ctx context.Context, campaignID string) ([]domain.Recipient, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE recipients
		SET status = 'PENDING', error_message = NULL, queued_at = NULL, sent_at = NULL
		WHERE campaign_id = $1 AND status = 'FAILED'
		RETURNING `+recipientColumns,
		campaignID)
	if err != nil {
		return nil, fmt.Errorf("resetting failed recipients: %w", err)
	}
	defer rows.Close()
	return collectRecipients(rows)
}

// AdvanceRecipientFunnel applies a tracking event (delivered/opened/
// clicked/bounced/unsubscribed) by tracking id, honoring the monotonic
// funnel: backwards transitions are silently ignored. Returns the affected
// recipient (nil when the tracking id is unknown) and whether the status
// actually moved, so callers only count first-time events.
func (s *PostgresStore) AdvanceRecipientFunnel(ctx context.Context, trackingID string, next domain.RecipientStatus) (*domain.Recipient, bool, error) {
	r, err := scanRecipient(s.pool.QueryRow(ctx,
		`SELECT `+recipientColumns+` FROM recipients WHERE tracking_id = $1`, trackingID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying recipient by tracking id: %w", err)
	}

	if !domain.CanAdvance(r.Status, next) {
		return r, false, nil
	}

	var column string
	switch next {
	case domain.RecipientDelivered:
		column = "delivered_at"
	case domain.RecipientOpened:
		column = "opened_at"
	case domain.RecipientClicked:
		column = "clicked_at"
	case domain.RecipientUnsubscribed:
		column = "unsubscribed_at"
	default:
		column = ""
	}

	query := `UPDATE recipients SET status = $2 WHERE id = $1 AND status = $3`
	if column != "" {
		query = fmt.Sprintf(
			`UPDATE recipients SET status = $2, %s = NOW() WHERE id = $1 AND status = $3`, column)
	}
	// Guarded on the status read above so concurrent events cannot move
	// the funnel backwards; losing the race reports no advance.
	tag, err := s.pool.Exec(ctx, query, r.ID, string(next), string(r.Status))
	if err != nil {
		return nil, false, fmt.Errorf("advancing recipient funnel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r, false, nil
	}
	r.Status = next
	return r, true, nil
}
