package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"practiceapi/internal/domain"
	"practiceapi/internal/models"
)

const bookingColumns = `id, venue_id, customer_name, date_from, date_to, guests, created_at, updated_at`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var from, to, created, updated string
	if err := row.Scan(&b.ID, &b.VenueID, &b.CustomerName, &from, &to, &b.Guests, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if b.DateFrom, err = parseTime(from); err != nil {
		return nil, err
	}
	if b.DateTo, err = parseTime(to); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &b, nil
}

func queryBookings(ctx context.Context, q queryer, query string, args ...any) ([]*models.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// overlapping returns the venue's bookings that share an instant with [from, to), except excludeID.
func overlapping(ctx context.Context, q queryer, venueID int64, from, to time.Time, excludeID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE venue_id = ? AND date_from < ? AND date_to > ? AND id != ?
              ORDER BY date_from`
	bookings, err := queryBookings(ctx, q, query, venueID, formatTime(to), formatTime(from), excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get overlapping bookings: %w", err)
	}
	return bookings, nil
}

func admit(ctx context.Context, q queryer, mode string, venueID int64, from, to time.Time, guests int, excludeID int64) (*models.Venue, domain.Decision, error) {
	venue, err := getVenue(ctx, q, venueID)
	if err != nil {
		return nil, domain.Decision{}, err
	}
	existing, err := overlapping(ctx, q, venueID, from, to, excludeID)
	if err != nil {
		return nil, domain.Decision{}, err
	}
	return venue, domain.CheckCapacity(mode, venue, existing, from, to, guests), nil
}

// CanAdmit answers the admission question on a snapshot without writing anything.
func (db *DB) CanAdmit(ctx context.Context, mode string, venueID int64, from, to time.Time, guests int, excludeID int64) (domain.Decision, error) {
	_, d, err := admit(ctx, db, mode, venueID, from, to, guests, excludeID)
	return d, err
}

// CreateBookingWithLock checks capacity and inserts the booking in one transaction.
func (db *DB) CreateBookingWithLock(ctx context.Context, mode string, booking *models.Booking) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, d, err := admit(ctx, tx, mode, booking.VenueID, booking.DateFrom, booking.DateTo, booking.Guests, 0)
		if err != nil {
			return err
		}
		if !d.Admit {
			db.logger.Info().
				Int64("venue_id", booking.VenueID).
				Int("occupied", d.Occupied).
				Int("guests", booking.Guests).
				Int("capacity", d.Capacity).
				Msg("booking rejected")
			return domain.Conflict(domain.MsgBookingConflict)
		}

		now := utcNow()
		result, err := tx.ExecContext(ctx,
			`INSERT INTO bookings (venue_id, customer_name, date_from, date_to, guests, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			booking.VenueID,
			booking.CustomerName,
			formatTime(booking.DateFrom),
			formatTime(booking.DateTo),
			booking.Guests,
			formatTime(now),
			formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking in tx: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id in tx: %w", err)
		}
		booking.ID = id
		booking.CreatedAt = now
		booking.UpdatedAt = now
		return nil
	})
}

// UpdateBookingWithLock merges patch into the booking owned by requester and re-checks capacity,
// leaving the booking itself out of the overlap set.
func (db *DB) UpdateBookingWithLock(ctx context.Context, mode string, id int64, requester string, patch models.BookingPatch) (*models.Booking, error) {
	var updated *models.Booking
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.CustomerName != requester {
			return domain.Forbidden("you do not have permission to update this booking")
		}

		merged := patch.Apply(*current)
		if !merged.DateFrom.Before(merged.DateTo) {
			return domain.Validation("dateTo", "dateTo must be after dateFrom")
		}

		_, d, err := admit(ctx, tx, mode, merged.VenueID, merged.DateFrom, merged.DateTo, merged.Guests, merged.ID)
		if err != nil {
			return err
		}
		if !d.Admit {
			return domain.Conflict(domain.MsgBookingConflict)
		}

		merged.UpdatedAt = utcNow()
		_, err = tx.ExecContext(ctx,
			`UPDATE bookings SET date_from = ?, date_to = ?, guests = ?, updated_at = ? WHERE id = ?`,
			formatTime(merged.DateFrom), formatTime(merged.DateTo), merged.Guests, formatTime(merged.UpdatedAt), merged.ID)
		if err != nil {
			return fmt.Errorf("failed to update booking in tx: %w", err)
		}
		updated = &merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteBooking removes a booking owned by requester and returns the removed row.
func (db *DB) DeleteBooking(ctx context.Context, id int64, requester string) (*models.Booking, error) {
	var removed *models.Booking
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.CustomerName != requester {
			return domain.Forbidden("you do not have permission to delete this booking")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete booking: %w", err)
		}
		removed = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func getBooking(ctx context.Context, q queryer, id int64) (*models.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, ErrBookingNotFound)
	}
	return b, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func (db *DB) GetVenueBookings(ctx context.Context, venueID int64) ([]*models.Booking, error) {
	bookings, err := queryBookings(ctx, db,
		`SELECT `+bookingColumns+` FROM bookings WHERE venue_id = ? ORDER BY date_from, id`, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get venue bookings: %w", err)
	}
	return bookings, nil
}

// GetBookingsInRange returns the venue's bookings that overlap [from, to).
func (db *DB) GetBookingsInRange(ctx context.Context, venueID int64, from, to time.Time) ([]*models.Booking, error) {
	return overlapping(ctx, db, venueID, from, to, 0)
}

func (db *DB) GetCustomerBookings(ctx context.Context, customer string) ([]*models.Booking, error) {
	bookings, err := queryBookings(ctx, db,
		`SELECT `+bookingColumns+` FROM bookings WHERE customer_name = ? ORDER BY date_from DESC`, customer)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer bookings: %w", err)
	}
	return bookings, nil
}

// GetOccupancyForPeriod returns per-day guest totals for days days starting at start.
func (db *DB) GetOccupancyForPeriod(ctx context.Context, venueID int64, start time.Time, days int) ([]*models.Occupancy, error) {
	venue, err := db.GetVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}
	end := start.AddDate(0, 0, days)
	bookings, err := db.GetBookingsInRange(ctx, venueID, start, end)
	if err != nil {
		return nil, err
	}
	return domain.DailyOccupancy(venue, bookings, start, days), nil
}
