package service

import (
	"context"

	"practiceapi/internal/domain"
	"practiceapi/internal/models"
)

type ProfileService struct {
	repo           domain.ProfileRepository
	defaultCredits int
}

func NewProfileService(repo domain.ProfileRepository, defaultCredits int) *ProfileService {
	if defaultCredits <= 0 {
		defaultCredits = models.DefaultCredits
	}
	return &ProfileService{repo: repo, defaultCredits: defaultCredits}
}

// Me returns the caller's profile, opening it with the starting balance on first use.
func (s *ProfileService) Me(ctx context.Context, name string) (*models.Profile, error) {
	return s.repo.EnsureProfile(ctx, name, s.defaultCredits)
}

func (s *ProfileService) GetProfile(ctx context.Context, name string) (*models.Profile, error) {
	return s.repo.GetProfile(ctx, name)
}

func (s *ProfileService) GetProfileBids(ctx context.Context, name string) ([]*models.Bid, error) {
	if _, err := s.repo.GetProfile(ctx, name); err != nil {
		return nil, err
	}
	return s.repo.GetProfileBids(ctx, name)
}

func (s *ProfileService) GetProfileBookings(ctx context.Context, name string) ([]*models.Booking, error) {
	if _, err := s.repo.GetProfile(ctx, name); err != nil {
		return nil, err
	}
	return s.repo.GetCustomerBookings(ctx, name)
}

// SetVenueManager lets a profile opt in or out of managing venues. Profiles only change themselves.
func (s *ProfileService) SetVenueManager(ctx context.Context, requester, name string, manager bool) (*models.Profile, error) {
	if requester != name {
		return nil, domain.Forbidden("you can only update your own profile")
	}
	if _, err := s.repo.EnsureProfile(ctx, name, s.defaultCredits); err != nil {
		return nil, err
	}
	if err := s.repo.SetVenueManager(ctx, name, manager); err != nil {
		return nil, err
	}
	return s.repo.GetProfile(ctx, name)
}
