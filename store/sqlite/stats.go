/*
stats.go - Aggregate guest statistics

One query computes the whole summary. Every figure except the duplicate
count is restricted to active (non-duplicate) rows; soft-deleted guests
never inflate totals. "Paid" means a payment method is recorded, which
the write protocols keep in lockstep with positive amounts.
*/
package sqlite

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angkor/guestbook/guest"
)

// GetStatistics returns totals, paid/pending counts and the per-method
// and per-side breakdowns over non-duplicate guests.
func (s *Store) GetStatistics(ctx context.Context) (*guest.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		stats    guest.Statistics
		totalKHR float64
		totalUSD float64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN is_duplicate = 0 THEN 1 END),
			COUNT(CASE WHEN is_duplicate = 1 THEN 1 END),
			COUNT(CASE WHEN is_duplicate = 0 AND payment_method IS NOT NULL THEN 1 END),
			COUNT(CASE WHEN is_duplicate = 0 AND payment_method IS NULL THEN 1 END),
			TOTAL(CASE WHEN is_duplicate = 0 THEN amount_khr ELSE 0 END),
			TOTAL(CASE WHEN is_duplicate = 0 THEN amount_usd ELSE 0 END),
			COUNT(CASE WHEN is_duplicate = 0 AND payment_method = 'QR_Code' THEN 1 END),
			COUNT(CASE WHEN is_duplicate = 0 AND payment_method = 'Cash' THEN 1 END),
			COUNT(CASE WHEN is_duplicate = 0 AND guest_of = 'Bride' THEN 1 END),
			COUNT(CASE WHEN is_duplicate = 0 AND guest_of = 'Groom' THEN 1 END),
			COUNT(CASE WHEN is_duplicate = 0 AND guest_of = 'Bride_Parents' THEN 1 END),
			COUNT(CASE WHEN is_duplicate = 0 AND guest_of = 'Groom_Parents' THEN 1 END)
		FROM guests`,
	).Scan(
		&stats.TotalGuests,
		&stats.DuplicateGuests,
		&stats.PaidGuests,
		&stats.PendingGuests,
		&totalKHR,
		&totalUSD,
		&stats.ByPaymentMethod.QRCode,
		&stats.ByPaymentMethod.Cash,
		&stats.ByGuestOf.Bride,
		&stats.ByGuestOf.Groom,
		&stats.ByGuestOf.BrideParents,
		&stats.ByGuestOf.GroomParents,
	)
	if err != nil {
		return nil, s.fail(ctx, "get_statistics", err)
	}

	stats.TotalKHR = decimal.NewFromFloat(totalKHR)
	stats.TotalUSD = decimal.NewFromFloat(totalUSD)
	return &stats, nil
}
