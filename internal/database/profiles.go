package database

import (
	"context"
	"fmt"

	"practiceapi/internal/models"
)

const profileColumns = `name, email, avatar, credits, venue_manager, created_at, updated_at`

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	var created, updated string
	if err := row.Scan(&p.Name, &p.Email, &p.Avatar, &p.Credits, &p.VenueManager, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

// ensureProfile creates the profile with the starting balance unless it already exists.
func ensureProfile(ctx context.Context, q queryer, name string, credits int) (*models.Profile, error) {
	now := formatTime(utcNow())
	if _, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO profiles (name, credits, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		name, credits, now, now); err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}
	return getProfile(ctx, q, name)
}

func getProfile(ctx context.Context, q queryer, name string) (*models.Profile, error) {
	row := q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name)
	p, err := scanProfile(row)
	if err != nil {
		return nil, notFound(err, ErrProfileNotFound)
	}
	return p, nil
}

// EnsureProfile returns the named profile, creating it with credits if it does not exist yet.
func (db *DB) EnsureProfile(ctx context.Context, name string, credits int) (*models.Profile, error) {
	return ensureProfile(ctx, db, name, credits)
}

func (db *DB) GetProfile(ctx context.Context, name string) (*models.Profile, error) {
	return getProfile(ctx, db, name)
}

// SetVenueManager toggles the venue manager flag.
func (db *DB) SetVenueManager(ctx context.Context, name string, manager bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE profiles SET venue_manager = ?, updated_at = ? WHERE name = ?`,
		manager, formatTime(utcNow()), name)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// SumCredits returns the total balance across all profiles.
func (db *DB) SumCredits(ctx context.Context) (int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(credits), 0) FROM profiles`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum credits: %w", err)
	}
	return total, nil
}
