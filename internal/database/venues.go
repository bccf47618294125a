package database

import (
	"context"
	"database/sql"
	"fmt"

	"practiceapi/internal/domain"
	"practiceapi/internal/models"
)

const venueColumns = `id, name, description, price, max_guests, owner_name, created_at, updated_at`

func scanVenue(row rowScanner) (*models.Venue, error) {
	var v models.Venue
	var created, updated string
	if err := row.Scan(&v.ID, &v.Name, &v.Description, &v.Price, &v.MaxGuests, &v.OwnerName, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if v.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if v.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &v, nil
}

func getVenue(ctx context.Context, q queryer, id int64) (*models.Venue, error) {
	row := q.QueryRowContext(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = ?`, id)
	v, err := scanVenue(row)
	if err != nil {
		return nil, notFound(err, ErrVenueNotFound)
	}
	return v, nil
}

func (db *DB) GetVenue(ctx context.Context, id int64) (*models.Venue, error) {
	return getVenue(ctx, db, id)
}

func (db *DB) CreateVenue(ctx context.Context, venue *models.Venue) error {
	query := `INSERT INTO venues (name, description, price, max_guests, owner_name, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := utcNow()
	result, err := db.ExecContext(ctx, query,
		venue.Name,
		venue.Description,
		venue.Price,
		venue.MaxGuests,
		venue.OwnerName,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create venue: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	venue.ID = id
	venue.CreatedAt = now
	venue.UpdatedAt = now
	return nil
}

// UpdateVenue stores name, description, price and max guests. Only the owner may update.
func (db *DB) UpdateVenue(ctx context.Context, venue *models.Venue, requester string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getVenue(ctx, tx, venue.ID)
		if err != nil {
			return err
		}
		if current.OwnerName != requester {
			return domain.Forbidden("you do not have permission to update this venue")
		}

		now := utcNow()
		_, err = tx.ExecContext(ctx,
			`UPDATE venues SET name = ?, description = ?, price = ?, max_guests = ?, updated_at = ? WHERE id = ?`,
			venue.Name, venue.Description, venue.Price, venue.MaxGuests, formatTime(now), venue.ID)
		if err != nil {
			return fmt.Errorf("failed to update venue: %w", err)
		}
		venue.OwnerName = current.OwnerName
		venue.CreatedAt = current.CreatedAt
		venue.UpdatedAt = now
		return nil
	})
}

// DeleteVenue removes the venue and, through the foreign key, its bookings.
func (db *DB) DeleteVenue(ctx context.Context, id int64, requester string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getVenue(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.OwnerName != requester {
			return domain.Forbidden("you do not have permission to delete this venue")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM venues WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete venue: %w", err)
		}
		return nil
	})
}

func (db *DB) GetVenues(ctx context.Context) ([]*models.Venue, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+venueColumns+` FROM venues ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get venues: %w", err)
	}
	defer rows.Close()

	var venues []*models.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}
