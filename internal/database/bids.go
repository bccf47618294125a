package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"practiceapi/internal/domain"
	"practiceapi/internal/models"
)

// PlaceBid debits the bidder and records the bid in one transaction. The bidder's
// profile is created with defaultCredits if missing. Nothing is written on error.
// clock is read once the write lock is held; that instant decides whether the
// listing is still open and becomes the bid's created_at. A nil clock is the wall clock.
func (db *DB) PlaceBid(ctx context.Context, bid *models.Bid, clock func() time.Time, defaultCredits int) (*models.Profile, error) {
	if clock == nil {
		clock = utcNow
	}
	var bidder *models.Profile
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := clock().UTC()
		listing, err := getListing(ctx, tx, bid.ListingID)
		if err != nil {
			return err
		}
		if listing.Closed(now) {
			return domain.Conflict(domain.MsgListingEnded)
		}
		if listing.SellerName == bid.BidderName {
			return domain.Forbidden("you cannot bid on your own listing")
		}

		profile, err := ensureProfile(ctx, tx, bid.BidderName, defaultCredits)
		if err != nil {
			return err
		}
		balance, err := domain.Debit(profile.Credits, bid.Amount)
		if err != nil {
			db.logger.Info().
				Str("bidder", bid.BidderName).
				Int("credits", profile.Credits).
				Int("amount", bid.Amount).
				Msg("bid rejected")
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE profiles SET credits = ?, updated_at = ? WHERE name = ?`,
			balance, formatTime(now), profile.Name); err != nil {
			return fmt.Errorf("failed to debit credits: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO bids (listing_id, bidder_name, amount, created_at) VALUES (?, ?, ?, ?)`,
			bid.ListingID, bid.BidderName, bid.Amount, formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to insert bid in tx: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id in tx: %w", err)
		}

		bid.ID = id
		bid.CreatedAt = now
		profile.Credits = balance
		profile.UpdatedAt = now
		bidder = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bidder, nil
}
