package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"practiceapi/internal/domain"
	"practiceapi/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBookingWithLock_CapacityByGuests(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	v := createVenue(t, db, "olga", 2)

	first := &models.Booking{VenueID: v.ID, CustomerName: "ann", DateFrom: date("2024-03-01"), DateTo: date("2024-04-01"), Guests: 2}
	require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum, first))
	assert.NotZero(t, first.ID)

	second := &models.Booking{VenueID: v.ID, CustomerName: "bob", DateFrom: date("2024-03-01"), DateTo: date("2024-04-01"), Guests: 1}
	err := db.CreateBookingWithLock(ctx, models.CapacityModeSum, second)
	require.ErrorIs(t, err, domain.ErrConflict)
	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.MsgBookingConflict, de.Message)

	third := &models.Booking{VenueID: v.ID, CustomerName: "bob", DateFrom: date("2024-05-01"), DateTo: date("2024-06-01"), Guests: 2}
	require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum, third))

	bookings, err := db.GetVenueBookings(ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, bookings, 2)
}

func TestCreateBookingWithLock_AdjacentDoNotOverlap(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	v := createVenue(t, db, "olga", 1)

	require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum,
		&models.Booking{VenueID: v.ID, CustomerName: "ann", DateFrom: date("2024-03-01"), DateTo: date("2024-03-05"), Guests: 1}))
	require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum,
		&models.Booking{VenueID: v.ID, CustomerName: "bob", DateFrom: date("2024-03-05"), DateTo: date("2024-03-09"), Guests: 1}))
}

func TestCreateBookingWithLock_Errors(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	v := createVenue(t, db, "olga", 2)

	err := db.CreateBookingWithLock(ctx, models.CapacityModeSum,
		&models.Booking{VenueID: 404, CustomerName: "ann", DateFrom: date("2024-03-01"), DateTo: date("2024-03-02"), Guests: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = db.CreateBookingWithLock(ctx, models.CapacityModeSum,
		&models.Booking{VenueID: v.ID, CustomerName: "ann", DateFrom: date("2024-03-01"), DateTo: date("2024-03-02"), Guests: 3})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCapacityModes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	v := createVenue(t, db, "olga", 2)

	// two staggered bookings that never overlap each other
	require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum,
		&models.Booking{VenueID: v.ID, CustomerName: "ann", DateFrom: date("2024-03-01"), DateTo: date("2024-03-05"), Guests: 1}))
	require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum,
		&models.Booking{VenueID: v.ID, CustomerName: "bob", DateFrom: date("2024-03-05"), DateTo: date("2024-03-10"), Guests: 1}))

	from, to := date("2024-03-03"), date("2024-03-07")

	d, err := db.CanAdmit(ctx, models.CapacityModeSum, v.ID, from, to, 1, 0)
	require.NoError(t, err)
	assert.False(t, d.Admit)
	assert.Equal(t, 2, d.Occupied)

	d, err = db.CanAdmit(ctx, models.CapacityModeSweep, v.ID, from, to, 1, 0)
	require.NoError(t, err)
	assert.True(t, d.Admit)
	assert.Equal(t, 1, d.Occupied)
}

func TestUpdateBookingWithLock(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	v := createVenue(t, db, "olga", 2)

	b := &models.Booking{VenueID: v.ID, CustomerName: "ann", DateFrom: date("2024-03-01"), DateTo: date("2024-03-10"), Guests: 2}
	require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum, b))

	t.Run("DoesNotConflictWithItself", func(t *testing.T) {
		to := date("2024-03-12")
		updated, err := db.UpdateBookingWithLock(ctx, models.CapacityModeSum, b.ID, "ann", models.BookingPatch{DateTo: &to})
		require.NoError(t, err)
		assert.True(t, updated.DateTo.Equal(to))
		assert.Equal(t, 2, updated.Guests)
		assert.True(t, updated.DateFrom.Equal(b.DateFrom))
	})

	t.Run("Forbidden", func(t *testing.T) {
		g := 1
		_, err := db.UpdateBookingWithLock(ctx, models.CapacityModeSum, b.ID, "bob", models.BookingPatch{Guests: &g})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("InvertedDates", func(t *testing.T) {
		to := date("2024-02-01")
		_, err := db.UpdateBookingWithLock(ctx, models.CapacityModeSum, b.ID, "ann", models.BookingPatch{DateTo: &to})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("ConflictWithOther", func(t *testing.T) {
		other := &models.Booking{VenueID: v.ID, CustomerName: "bob", DateFrom: date("2024-04-01"), DateTo: date("2024-04-05"), Guests: 1}
		require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum, other))

		from, to := date("2024-03-20"), date("2024-04-02")
		_, err := db.UpdateBookingWithLock(ctx, models.CapacityModeSum, b.ID, "ann", models.BookingPatch{DateFrom: &from, DateTo: &to})
		assert.ErrorIs(t, err, domain.ErrConflict)

		stored, err := db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, stored.DateTo.Equal(date("2024-03-12")))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := db.UpdateBookingWithLock(ctx, models.CapacityModeSum, 999, "ann", models.BookingPatch{})
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})
}

func TestDeleteBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	v := createVenue(t, db, "olga", 2)
	b := &models.Booking{VenueID: v.ID, CustomerName: "ann", DateFrom: date("2024-03-01"), DateTo: date("2024-03-10"), Guests: 1}
	require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum, b))

	_, err := db.DeleteBooking(ctx, b.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	stored, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Guests, stored.Guests)
	assert.True(t, b.DateFrom.Equal(stored.DateFrom))

	removed, err := db.DeleteBooking(ctx, b.ID, "ann")
	require.NoError(t, err)
	assert.Equal(t, b.ID, removed.ID)

	_, err = db.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOccupancyForPeriod(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	v := createVenue(t, db, "olga", 3)
	require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum,
		&models.Booking{VenueID: v.ID, CustomerName: "ann", DateFrom: date("2024-03-01"), DateTo: date("2024-03-03"), Guests: 2}))
	require.NoError(t, db.CreateBookingWithLock(ctx, models.CapacityModeSum,
		&models.Booking{VenueID: v.ID, CustomerName: "bob", DateFrom: date("2024-03-02"), DateTo: date("2024-03-03"), Guests: 1}))

	occ, err := db.GetOccupancyForPeriod(ctx, v.ID, date("2024-03-01"), 3)
	require.NoError(t, err)
	require.Len(t, occ, 3)

	assert.Equal(t, 2, occ[0].Guests)
	assert.Equal(t, 1, occ[0].Available)
	assert.Equal(t, 3, occ[1].Guests)
	assert.Equal(t, 0, occ[1].Available)
	assert.Equal(t, 0, occ[2].Guests)

	customer, err := db.GetCustomerBookings(ctx, "ann")
	require.NoError(t, err)
	assert.Len(t, customer, 1)
}

func TestConcurrentBooking(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	v := createVenue(t, db, "olga", 3)

	from := time.Now().AddDate(0, 0, 1).UTC().Truncate(time.Hour)
	to := from.AddDate(0, 0, 2)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			booking := &models.Booking{
				VenueID:      v.ID,
				CustomerName: "guest",
				DateFrom:     from,
				DateTo:       to,
				Guests:       1,
			}
			results <- db.CreateBookingWithLock(ctx, models.CapacityModeSum, booking)
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, domain.ErrConflict)
		}
	}

	assert.Equal(t, 3, successCount, "only max guests bookings of one guest fit")

	bookings, err := db.GetBookingsInRange(ctx, v.ID, from, to)
	require.NoError(t, err)
	total := 0
	for _, b := range bookings {
		total += b.Guests
	}
	assert.LessOrEqual(t, total, v.MaxGuests)
}
