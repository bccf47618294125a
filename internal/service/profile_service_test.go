package service

import (
	"context"
	"io"
	"testing"

	"practiceapi/internal/domain"
	"practiceapi/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileService(t *testing.T) {
	repo := new(mockProfileRepo)
	svc := NewProfileService(repo, 0)
	ctx := context.Background()

	t.Run("MeOpensProfile", func(t *testing.T) {
		repo.On("EnsureProfile", ctx, "ann", models.DefaultCredits).Return(&models.Profile{Name: "ann", Credits: 1000}, nil).Once()

		p, err := svc.Me(ctx, "ann")
		require.NoError(t, err)
		assert.Equal(t, 1000, p.Credits)
	})

	t.Run("BidsOfUnknownProfile", func(t *testing.T) {
		repo.On("GetProfile", ctx, "ghost").Return(nil, domain.NotFound("profile not found")).Once()

		_, err := svc.GetProfileBids(ctx, "ghost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Bookings", func(t *testing.T) {
		bookings := []*models.Booking{{ID: 1, CustomerName: "ann"}}
		repo.On("GetProfile", ctx, "ann").Return(&models.Profile{Name: "ann"}, nil).Once()
		repo.On("GetCustomerBookings", ctx, "ann").Return(bookings, nil).Once()

		result, err := svc.GetProfileBookings(ctx, "ann")
		require.NoError(t, err)
		assert.Equal(t, bookings, result)
	})

	t.Run("SetVenueManagerOnlySelf", func(t *testing.T) {
		_, err := svc.SetVenueManager(ctx, "bob", "ann", true)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("SetVenueManager", func(t *testing.T) {
		repo.On("EnsureProfile", ctx, "ann", models.DefaultCredits).Return(&models.Profile{Name: "ann"}, nil).Once()
		repo.On("SetVenueManager", ctx, "ann", true).Return(nil).Once()
		repo.On("GetProfile", ctx, "ann").Return(&models.Profile{Name: "ann", VenueManager: true}, nil).Once()

		p, err := svc.SetVenueManager(ctx, "ann", "ann", true)
		require.NoError(t, err)
		assert.True(t, p.VenueManager)
		repo.AssertExpectations(t)
	})
}

func TestVenueService(t *testing.T) {
	repo := new(mockBookingRepo)
	profiles := new(mockProfileRepo)
	logger := zerolog.New(io.Discard)
	svc := NewVenueService(repo, profiles, models.DefaultCredits, &logger)
	ctx := context.Background()

	t.Run("Validation", func(t *testing.T) {
		err := svc.CreateVenue(ctx, &models.Venue{Name: "hall", MaxGuests: 0, OwnerName: "ann"})
		de, ok := domain.AsError(err)
		require.True(t, ok)
		assert.Equal(t, "maxGuests", de.Path)

		err = svc.CreateVenue(ctx, &models.Venue{MaxGuests: 2, OwnerName: "ann"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("NotAManager", func(t *testing.T) {
		venue := &models.Venue{Name: "hall", MaxGuests: 2, OwnerName: "bob"}
		profiles.On("EnsureProfile", ctx, "bob", models.DefaultCredits).Return(&models.Profile{Name: "bob"}, nil).Once()

		err := svc.CreateVenue(ctx, venue)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		repo.AssertNotCalled(t, "CreateVenue", ctx, venue)
	})

	t.Run("Create", func(t *testing.T) {
		venue := &models.Venue{Name: "hall", MaxGuests: 2, OwnerName: "ann"}
		profiles.On("EnsureProfile", ctx, "ann", models.DefaultCredits).Return(&models.Profile{Name: "ann", VenueManager: true}, nil).Once()
		repo.On("CreateVenue", ctx, venue).Return(nil).Once()

		assert.NoError(t, svc.CreateVenue(ctx, venue))
		repo.AssertExpectations(t)
	})

	t.Run("GetWithBookings", func(t *testing.T) {
		repo.On("GetVenue", ctx, int64(1)).Return(&models.Venue{ID: 1, Name: "hall", MaxGuests: 2}, nil).Once()
		repo.On("GetVenueBookings", ctx, int64(1)).Return([]*models.Booking{{ID: 3}}, nil).Once()

		v, err := svc.GetVenue(ctx, 1, true)
		require.NoError(t, err)
		assert.Len(t, v.Bookings, 1)
	})
}
