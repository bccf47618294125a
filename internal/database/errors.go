package database

import (
	"database/sql"
	"errors"

	"practiceapi/internal/domain"
)

var (
	ErrVenueNotFound   = domain.NotFound("venue not found")
	ErrBookingNotFound = domain.NotFound("booking not found")
	ErrListingNotFound = domain.NotFound("listing not found")
	ErrProfileNotFound = domain.NotFound("profile not found")
	ErrTaskNotFound    = domain.NotFound("sync task not found")
)

// notFound converts sql.ErrNoRows into the given domain error.
func notFound(err, nf error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nf
	}
	return err
}
