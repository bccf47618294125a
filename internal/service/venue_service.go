package service

import (
	"context"
	"strings"

	"practiceapi/internal/domain"
	"practiceapi/internal/logging"
	"practiceapi/internal/models"

	"github.com/rs/zerolog"
)

// VenueService manages venues. Only venue managers may create them and only owners may change them.
type VenueService struct {
	repo           domain.BookingRepository
	profiles       domain.ProfileRepository
	defaultCredits int
	logger         *zerolog.Logger
}

func NewVenueService(repo domain.BookingRepository, profiles domain.ProfileRepository, defaultCredits int, logger *zerolog.Logger) *VenueService {
	return &VenueService{
		repo:           repo,
		profiles:       profiles,
		defaultCredits: defaultCredits,
		logger:         logging.Component(logger, "venue_service"),
	}
}

func validateVenue(venue *models.Venue) error {
	if strings.TrimSpace(venue.Name) == "" {
		return domain.Validation("name", "name is required")
	}
	if venue.MaxGuests < 1 {
		return domain.Validation("maxGuests", "maxGuests must be at least 1")
	}
	if venue.Price < 0 {
		return domain.Validation("price", "price must not be negative")
	}
	return nil
}

func (s *VenueService) CreateVenue(ctx context.Context, venue *models.Venue) error {
	if err := validateVenue(venue); err != nil {
		return err
	}

	owner, err := s.profiles.EnsureProfile(ctx, venue.OwnerName, s.defaultCredits)
	if err != nil {
		return err
	}
	if !owner.VenueManager {
		return domain.Forbidden("only venue managers can create venues")
	}

	if err := s.repo.CreateVenue(ctx, venue); err != nil {
		return err
	}
	s.logger.Info().Int64("venue_id", venue.ID).Str("owner", venue.OwnerName).Msg("venue created")
	return nil
}

// UpdateVenue replaces name, description, price and maxGuests of a venue owned by requester.
func (s *VenueService) UpdateVenue(ctx context.Context, venue *models.Venue, requester string) error {
	if err := validateVenue(venue); err != nil {
		return err
	}
	return s.repo.UpdateVenue(ctx, venue, requester)
}

func (s *VenueService) DeleteVenue(ctx context.Context, id int64, requester string) error {
	if err := s.repo.DeleteVenue(ctx, id, requester); err != nil {
		return err
	}
	s.logger.Info().Int64("venue_id", id).Str("owner", requester).Msg("venue deleted")
	return nil
}

// GetVenue returns the venue, with its bookings attached when withBookings is set.
func (s *VenueService) GetVenue(ctx context.Context, id int64, withBookings bool) (*models.Venue, error) {
	venue, err := s.repo.GetVenue(ctx, id)
	if err != nil {
		return nil, err
	}
	if withBookings {
		if venue.Bookings, err = s.repo.GetVenueBookings(ctx, id); err != nil {
			return nil, err
		}
	}
	return venue, nil
}

func (s *VenueService) GetVenues(ctx context.Context) ([]*models.Venue, error) {
	return s.repo.GetVenues(ctx)
}
