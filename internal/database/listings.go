package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"practiceapi/internal/domain"
	"practiceapi/internal/models"
)

const listingColumns = `l.id, l.title, l.description, l.seller_name, l.ends_at, l.winner_name, l.created_at, l.updated_at,
       (SELECT COUNT(*) FROM bids b WHERE b.listing_id = l.id)`

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var endsAt, created, updated string
	var winner sql.NullString
	if err := row.Scan(&l.ID, &l.Title, &l.Description, &l.SellerName, &endsAt, &winner, &created, &updated, &l.BidCount); err != nil {
		return nil, err
	}
	var err error
	if l.EndsAt, err = parseTime(endsAt); err != nil {
		return nil, err
	}
	if l.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if winner.Valid {
		w := winner.String
		l.WinnerName = &w
	}
	return &l, nil
}

func getListing(ctx context.Context, q queryer, id int64) (*models.Listing, error) {
	row := q.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings l WHERE l.id = ?`, id)
	l, err := scanListing(row)
	if err != nil {
		return nil, notFound(err, ErrListingNotFound)
	}
	return l, nil
}

func (db *DB) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	return getListing(ctx, db, id)
}

func (db *DB) CreateListing(ctx context.Context, listing *models.Listing) error {
	now := utcNow()
	result, err := db.ExecContext(ctx,
		`INSERT INTO listings (title, description, seller_name, ends_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		listing.Title,
		listing.Description,
		listing.SellerName,
		formatTime(listing.EndsAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	listing.ID = id
	listing.CreatedAt = now
	listing.UpdatedAt = now
	return nil
}

// ListListings returns listings newest first. When active is set only listings
// that have not ended yet are returned.
func (db *DB) ListListings(ctx context.Context, active bool) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings l`
	var args []any
	if active {
		query += ` WHERE l.ends_at > ?`
		args = append(args, formatTime(utcNow()))
	}
	query += ` ORDER BY l.created_at DESC, l.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// DeleteListing removes an open listing owned by requester. Bids on a deleted
// listing are refunded to their bidders.
func (db *DB) DeleteListing(ctx context.Context, id int64, requester string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		listing, err := getListing(ctx, tx, id)
		if err != nil {
			return err
		}
		if listing.SellerName != requester {
			return domain.Forbidden("you do not have permission to delete this listing")
		}
		if listing.Closed(utcNow()) {
			return domain.Conflict(domain.MsgListingEnded)
		}

		now := formatTime(utcNow())
		if _, err := tx.ExecContext(ctx,
			`UPDATE profiles SET credits = credits + (
                 SELECT COALESCE(SUM(amount), 0) FROM bids WHERE bids.listing_id = ? AND bids.bidder_name = profiles.name
             ), updated_at = ?
             WHERE name IN (SELECT bidder_name FROM bids WHERE listing_id = ?)`,
			id, now, id); err != nil {
			return fmt.Errorf("failed to refund bids: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete listing: %w", err)
		}
		return nil
	})
}

func queryBids(ctx context.Context, q queryer, query string, args ...any) ([]*models.Bid, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*models.Bid
	for rows.Next() {
		var b models.Bid
		var created string
		if err := rows.Scan(&b.ID, &b.ListingID, &b.BidderName, &b.Amount, &created); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		if b.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		bids = append(bids, &b)
	}
	return bids, rows.Err()
}

// GetListingBids returns the bids on a listing in placement order.
func (db *DB) GetListingBids(ctx context.Context, listingID int64) ([]*models.Bid, error) {
	bids, err := queryBids(ctx, db,
		`SELECT id, listing_id, bidder_name, amount, created_at FROM bids WHERE listing_id = ? ORDER BY created_at, id`,
		listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing bids: %w", err)
	}
	return bids, nil
}

// GetBidsForListings returns the bids of several listings in one query, keyed by listing id.
func (db *DB) GetBidsForListings(ctx context.Context, listingIDs []int64) (map[int64][]*models.Bid, error) {
	out := make(map[int64][]*models.Bid, len(listingIDs))
	if len(listingIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(listingIDs))
	for i, id := range listingIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(listingIDs)), ",")
	bids, err := queryBids(ctx, db,
		`SELECT id, listing_id, bidder_name, amount, created_at FROM bids WHERE listing_id IN (`+placeholders+`) ORDER BY created_at, id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids for listings: %w", err)
	}
	for _, b := range bids {
		out[b.ListingID] = append(out[b.ListingID], b)
	}
	return out, nil
}

func (db *DB) GetProfileBids(ctx context.Context, bidder string) ([]*models.Bid, error) {
	bids, err := queryBids(ctx, db,
		`SELECT id, listing_id, bidder_name, amount, created_at FROM bids WHERE bidder_name = ? ORDER BY created_at DESC, id DESC`,
		bidder)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile bids: %w", err)
	}
	return bids, nil
}

// SetListingWinner records winner unless a winner is already stored.
// It reports whether this call wrote the value.
func (db *DB) SetListingWinner(ctx context.Context, id int64, winner string) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE listings SET winner_name = ?, updated_at = ? WHERE id = ? AND winner_name IS NULL`,
		winner, formatTime(utcNow()), id)
	if err != nil {
		return false, fmt.Errorf("failed to set listing winner: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
