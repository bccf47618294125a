package domain

import (
	"time"

	"practiceapi/internal/models"
)

// Debit takes amount from balance. The balance never goes negative.
func Debit(balance, amount int) (int, error) {
	if amount <= 0 {
		return balance, Validation("amount", "amount must be a positive integer")
	}
	if balance < amount {
		return balance, Conflict(MsgInsufficient)
	}
	return balance - amount, nil
}

// ResolveWinner returns the highest bid placed before endsAt; ties go to the earliest bid.
// It returns nil when no bid qualifies.
func ResolveWinner(bids []*models.Bid, endsAt time.Time) *models.Bid {
	var best *models.Bid
	for _, b := range bids {
		if !b.CreatedAt.Before(endsAt) {
			continue
		}
		if best == nil || outranks(b, best) {
			best = b
		}
	}
	return best
}

func outranks(a, b *models.Bid) bool {
	if a.Amount != b.Amount {
		return a.Amount > b.Amount
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
