package database

import (
	"context"
	"database/sql"
	"fmt"
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

func createListing(t *testing.T, db *DB, seller string, endsAt time.Time) *models.Listing {
	l := &models.Listing{Title: "Lamp", SellerName: seller, EndsAt: endsAt}
	require.NoError(t, db.CreateListing(context.Background(), l))
	return l
}

func fixed(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestPlaceBid(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("OpenListing", func(t *testing.T) {
		l := createListing(t, db, "sam", now.AddDate(0, 2, 0))
		bid := &models.Bid{ListingID: l.ID, BidderName: "ann", Amount: 10}

		profile, err := db.PlaceBid(ctx, bid, fixed(now), 1000)
		require.NoError(t, err)
		assert.NotZero(t, bid.ID)
		assert.Equal(t, 990, profile.Credits)

		stored, err := db.GetProfile(ctx, "ann")
		require.NoError(t, err)
		assert.Equal(t, 990, stored.Credits)

		got, err := db.GetListing(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.BidCount)
	})

	t.Run("ClosedListing", func(t *testing.T) {
		l := createListing(t, db, "sam", now.Add(-time.Minute))
		before, err := db.EnsureProfile(ctx, "ann", 1000)
		require.NoError(t, err)

		_, err = db.PlaceBid(ctx, &models.Bid{ListingID: l.ID, BidderName: "ann", Amount: 10}, fixed(now), 1000)
		require.ErrorIs(t, err, domain.ErrConflict)
		de, _ := domain.AsError(err)
		assert.Equal(t, "This listing has already ended", de.Message)

		after, err := db.GetProfile(ctx, "ann")
		require.NoError(t, err)
		assert.Equal(t, before.Credits, after.Credits)
	})

	t.Run("EndsExactlyNow", func(t *testing.T) {
		l := createListing(t, db, "sam", now)
		_, err := db.PlaceBid(ctx, &models.Bid{ListingID: l.ID, BidderName: "ann", Amount: 1}, fixed(now), 1000)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("InsufficientCredits", func(t *testing.T) {
		l := createListing(t, db, "sam", now.Add(time.Hour))
		_, err := db.PlaceBid(ctx, &models.Bid{ListingID: l.ID, BidderName: "poor", Amount: 51}, fixed(now), 50)
		require.ErrorIs(t, err, domain.ErrConflict)

		p, err := db.GetProfile(ctx, "poor")
		require.NoError(t, err)
		assert.Equal(t, 50, p.Credits)

		bids, err := db.GetListingBids(ctx, l.ID)
		require.NoError(t, err)
		assert.Empty(t, bids)
	})

	t.Run("OwnListing", func(t *testing.T) {
		l := createListing(t, db, "sam", now.Add(time.Hour))
		_, err := db.PlaceBid(ctx, &models.Bid{ListingID: l.ID, BidderName: "sam", Amount: 1}, fixed(now), 1000)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("MissingListing", func(t *testing.T) {
		_, err := db.PlaceBid(ctx, &models.Bid{ListingID: 999, BidderName: "ann", Amount: 1}, fixed(now), 1000)
		assert.ErrorIs(t, err, ErrListingNotFound)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		l := createListing(t, db, "sam", now.Add(time.Hour))
		_, err := db.PlaceBid(ctx, &models.Bid{ListingID: l.ID, BidderName: "ann", Amount: 0}, fixed(now), 1000)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestConcurrentBidsConserveCredits(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "bids.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	l := createListing(t, db, "sam", now.Add(time.Hour))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			_, _ = db.PlaceBid(ctx, &models.Bid{ListingID: l.ID, BidderName: "ann", Amount: 30}, fixed(now), 100)
		}()
	}
	wg.Wait()

	bids, err := db.GetListingBids(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, bids, 3)

	p, err := db.GetProfile(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Credits)

	spent := 0
	for _, b := range bids {
		spent += b.Amount
	}
	assert.Equal(t, 100, p.Credits+spent)
}

func TestPlaceBidWaitingForLockPastClose(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "close.db")
	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	l := createListing(t, db, "sam", time.Now().UTC().Add(300*time.Millisecond))
	_, err = db.EnsureProfile(ctx, "ann", 1000)
	require.NoError(t, err)

	other, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=immediate", path))
	require.NoError(t, err)
	defer other.Close()

	holder, err := other.BeginTx(ctx, nil)
	require.NoError(t, err)
	released := make(chan struct{})
	go func() {
		time.Sleep(800 * time.Millisecond)
		_ = holder.Rollback()
		close(released)
	}()

	_, err = db.PlaceBid(ctx, &models.Bid{ListingID: l.ID, BidderName: "ann", Amount: 10}, nil, 1000)
	<-released
	require.ErrorIs(t, err, domain.ErrConflict, "the listing closed while the bid waited for the lock")

	bids, err := db.GetListingBids(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, bids)

	p, err := db.GetProfile(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 1000, p.Credits)
}

func TestPlaceBidStampsLockedInstant(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	l := createListing(t, db, "sam", now.Add(time.Hour))

	at := now.Add(30 * time.Minute)
	bid := &models.Bid{ListingID: l.ID, BidderName: "ann", Amount: 10}
	_, err := db.PlaceBid(ctx, bid, fixed(at), 1000)
	require.NoError(t, err)
	assert.True(t, bid.CreatedAt.Equal(at))

	bids, err := db.GetListingBids(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.True(t, bids[0].CreatedAt.Before(l.EndsAt))
	assert.True(t, bids[0].CreatedAt.Equal(at))
}

func TestListingsAndWinner(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	open := createListing(t, db, "sam", now.Add(time.Hour))
	closed := createListing(t, db, "sam", now.Add(-time.Hour))

	all, err := db.ListListings(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := db.ListListings(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)

	wrote, err := db.SetListingWinner(ctx, closed.ID, "ann")
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = db.SetListingWinner(ctx, closed.ID, "bob")
	require.NoError(t, err)
	assert.False(t, wrote, "winner is written once")

	got, err := db.GetListing(ctx, closed.ID)
	require.NoError(t, err)
	require.NotNil(t, got.WinnerName)
	assert.Equal(t, "ann", *got.WinnerName)
}

func TestGetBidsForListings(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	a := createListing(t, db, "sam", now.Add(time.Hour))
	b := createListing(t, db, "sam", now.Add(time.Hour))
	empty := createListing(t, db, "sam", now.Add(time.Hour))
	for i, id := range []int64{a.ID, b.ID, a.ID} {
		_, err := db.PlaceBid(ctx, &models.Bid{ListingID: id, BidderName: "ann", Amount: 10 + i}, fixed(now.Add(time.Duration(i)*time.Second)), 1000)
		require.NoError(t, err)
	}

	byListing, err := db.GetBidsForListings(ctx, []int64{a.ID, b.ID, empty.ID})
	require.NoError(t, err)
	require.Len(t, byListing[a.ID], 2)
	assert.Equal(t, 10, byListing[a.ID][0].Amount)
	assert.Equal(t, 12, byListing[a.ID][1].Amount)
	require.Len(t, byListing[b.ID], 1)
	assert.Empty(t, byListing[empty.ID])

	none, err := db.GetBidsForListings(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteListing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	l := createListing(t, db, "sam", now.Add(time.Hour))
	_, err := db.PlaceBid(ctx, &models.Bid{ListingID: l.ID, BidderName: "ann", Amount: 40}, fixed(now), 100)
	require.NoError(t, err)
	_, err = db.PlaceBid(ctx, &models.Bid{ListingID: l.ID, BidderName: "ann", Amount: 10}, fixed(now), 100)
	require.NoError(t, err)

	assert.ErrorIs(t, db.DeleteListing(ctx, l.ID, "ann"), domain.ErrForbidden)
	require.NoError(t, db.DeleteListing(ctx, l.ID, "sam"))

	_, err = db.GetListing(ctx, l.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	p, err := db.GetProfile(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 100, p.Credits, "bids on a deleted listing are refunded")

	ended := createListing(t, db, "sam", now.Add(-time.Minute))
	assert.ErrorIs(t, db.DeleteListing(ctx, ended.ID, "sam"), domain.ErrConflict)
}

func TestProfiles(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	p, err := db.EnsureProfile(ctx, "ann", 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, p.Credits)

	p, err = db.EnsureProfile(ctx, "ann", 5)
	require.NoError(t, err)
	assert.Equal(t, 1000, p.Credits, "existing profile keeps its balance")

	require.NoError(t, db.SetVenueManager(ctx, "ann", true))
	p, err = db.GetProfile(ctx, "ann")
	require.NoError(t, err)
	assert.True(t, p.VenueManager)

	assert.ErrorIs(t, db.SetVenueManager(ctx, "nobody", true), ErrProfileNotFound)
	_, err = db.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	total, err := db.SumCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000, total)
}
