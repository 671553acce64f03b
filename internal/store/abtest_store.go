package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/domain"
)

// GetTestByCampaign returns the campaign's A/B test with its variants, or
// nil when the campaign has no test.
func (s *PostgresStore) GetTestByCampaign(ctx context.Context, campaignID string) (*domain.ABTest, error) {
	var t domain.ABTest
	err := s.pool.QueryRow(ctx, `
		SELECT id, campaign_id, status, sample_percent, winner_variant_id, created_at
		FROM ab_tests WHERE campaign_id = $1
	`, campaignID).Scan(
		&t.ID, &t.CampaignID, &t.Status, &t.SamplePercent, &t.WinnerVariantID, &t.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying ab test: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, test_id, name, subject, body_html, sent, opened, clicked, bounced, converted
		FROM ab_test_variants WHERE test_id = $1 ORDER BY name, id
	`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("querying variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.ABTestVariant
		if err := rows.Scan(&v.ID, &v.TestID, &v.Name, &v.Subject, &v.BodyHTML,
			&v.Sent, &v.Opened, &v.Clicked, &v.Bounced, &v.Converted); err != nil {
			return nil, fmt.Errorf("scanning variant: %w", err)
		}
		t.Variants = append(t.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetVariant returns one variant, or nil if absent.
func (s *PostgresStore) GetVariant(ctx context.Context, variantID string) (*domain.ABTestVariant, error) {
	var v domain.ABTestVariant
	err := s.pool.QueryRow(ctx, `
		SELECT id, test_id, name, subject, body_html, sent, opened, clicked, bounced, converted
		FROM ab_test_variants WHERE id = $1
	`, variantID).Scan(&v.ID, &v.TestID, &v.Name, &v.Subject, &v.BodyHTML,
		&v.Sent, &v.Opened, &v.Clicked, &v.Bounced, &v.Converted)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying variant: %w", err)
	}
	return &v, nil
}

// AssignVariant stamps a variant id onto a test group's recipients.
func (s *PostgresStore) AssignVariant(ctx context.Context, recipientIDs []string, variantID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE recipients SET variant_id = $2 WHERE id = ANY($1)
	`, recipientIDs, variantID)
	if err != nil {
		return fmt.Errorf("assigning variant: %w", err)
	}
	return nil
}

// GetRecipientVariant returns the recipient's assigned variant id, or nil
// when the recipient was never part of a test.
func (s *PostgresStore) GetRecipientVariant(ctx context.Context, recipientID string) (*string, error) {
	var variantID *string
	err := s.pool.QueryRow(ctx,
		`SELECT variant_id FROM recipients WHERE id = $1`, recipientID).Scan(&variantID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying recipient variant: %w", err)
	}
	return variantID, nil
}

// IncrementVariantCounter bumps one aggregated counter on the variant.
func (s *PostgresStore) IncrementVariantCounter(ctx context.Context, variantID string, event domain.ABTestEvent) error {
	var column string
	switch event {
	case domain.ABEventSent:
		column = "sent"
	case domain.ABEventOpened:
		column = "opened"
	case domain.ABEventClicked:
		column = "clicked"
	case domain.ABEventBounced:
		column = "bounced"
	case domain.ABEventConverted:
		column = "converted"
	default:
		return fmt.Errorf("unknown ab test event %q", event)
	}

	query := fmt.Sprintf(
		`UPDATE ab_test_variants SET %s = %s + 1 WHERE id = $1`, column, column)
	if _, err := s.pool.Exec(ctx, query, variantID); err != nil {
		return fmt.Errorf("incrementing variant %s: %w", column, err)
	}
	return nil
}

// SetTestStatus updates the test lifecycle status.
func (s *PostgresStore) SetTestStatus(ctx context.Context, testID string, status domain.ABTestStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ab_tests SET status = $2 WHERE id = $1`, testID, string(status))
	if err != nil {
		return fmt.Errorf("updating ab test status: %w", err)
	}
	return nil
}

// SetWinner records the winning variant.
func (s *PostgresStore) SetWinner(ctx context.Context, testID, variantID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ab_tests SET winner_variant_id = $2 WHERE id = $1`, testID, variantID)
	if err != nil {
		return fmt.Errorf("recording ab test winner: %w", err)
	}
	return nil
}
