package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"practiceapi/internal/domain"
	"practiceapi/internal/events"
	"practiceapi/internal/logging"
	"practiceapi/internal/metrics"
	"practiceapi/internal/models"
	"practiceapi/internal/worker"

	"github.com/rs/zerolog"
)

type BookingService struct {
	repo         domain.BookingRepository
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	capacityMode string
	logger       *zerolog.Logger
}

func NewBookingService(repo domain.BookingRepository, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, capacityMode string, logger *zerolog.Logger) *BookingService {
	if capacityMode == "" {
		capacityMode = models.CapacityModeSum
	}
	return &BookingService{
		repo:         repo,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		capacityMode: capacityMode,
		logger:       logging.Component(logger, "booking_service"),
	}
}

func validateInterval(from, to time.Time) error {
	if from.IsZero() {
		return domain.Validation("dateFrom", "dateFrom is required")
	}
	if to.IsZero() {
		return domain.Validation("dateTo", "dateTo is required")
	}
	if !from.Before(to) {
		return domain.Validation("dateTo", "dateTo must be after dateFrom")
	}
	return nil
}

func validateGuests(guests int) error {
	if guests < 1 {
		return domain.Validation("guests", "guests must be at least 1")
	}
	return nil
}

// ValidateBooking checks the request shape before the store is touched.
func (s *BookingService) ValidateBooking(booking *models.Booking) error {
	if booking.VenueID <= 0 {
		return domain.Validation("venueId", "venueId is required")
	}
	if strings.TrimSpace(booking.CustomerName) == "" {
		return domain.Validation("customerName", "customer is required")
	}
	if err := validateInterval(booking.DateFrom, booking.DateTo); err != nil {
		return err
	}
	return validateGuests(booking.Guests)
}

// CreateBooking admits and stores the booking, or returns a Conflict when the venue cannot hold it.
func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if err := s.ValidateBooking(booking); err != nil {
		metrics.IncBooking("create", outcome(err))
		return err
	}

	err := s.repo.CreateBookingWithLock(ctx, s.capacityMode, booking)
	metrics.IncBooking("create", outcome(err))
	if err != nil {
		return err
	}

	s.publishEvent(events.EventBookingCreated, *booking, booking.CustomerName)
	s.enqueueSync(ctx, worker.TaskBookingUpsert, *booking)
	return nil
}

// UpdateBooking applies patch to a booking owned by requester.
func (s *BookingService) UpdateBooking(ctx context.Context, id int64, requester string, patch models.BookingPatch) (*models.Booking, error) {
	if patch.IsEmpty() {
		err := domain.Validation("", "at least one of dateFrom, dateTo or guests must be provided")
		metrics.IncBooking("update", outcome(err))
		return nil, err
	}
	if patch.Guests != nil {
		if err := validateGuests(*patch.Guests); err != nil {
			metrics.IncBooking("update", outcome(err))
			return nil, err
		}
	}
	if patch.DateFrom != nil && patch.DateTo != nil {
		if err := validateInterval(*patch.DateFrom, *patch.DateTo); err != nil {
			metrics.IncBooking("update", outcome(err))
			return nil, err
		}
	}

	updated, err := s.repo.UpdateBookingWithLock(ctx, s.capacityMode, id, requester, patch)
	metrics.IncBooking("update", outcome(err))
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingUpdated, *updated, requester)
	s.enqueueSync(ctx, worker.TaskBookingUpsert, *updated)
	return updated, nil
}

// DeleteBooking removes a booking owned by requester.
func (s *BookingService) DeleteBooking(ctx context.Context, id int64, requester string) error {
	removed, err := s.repo.DeleteBooking(ctx, id, requester)
	metrics.IncBooking("delete", outcome(err))
	if err != nil {
		return err
	}

	s.publishEvent(events.EventBookingDeleted, *removed, requester)
	s.enqueueSync(ctx, worker.TaskBookingDelete, *removed)
	return nil
}

// CheckAvailability answers whether guests more guests fit the venue over [from, to) right now.
func (s *BookingService) CheckAvailability(ctx context.Context, venueID int64, from, to time.Time, guests int) (domain.Decision, error) {
	if err := validateInterval(from, to); err != nil {
		return domain.Decision{}, err
	}
	if err := validateGuests(guests); err != nil {
		return domain.Decision{}, err
	}
	return s.repo.CanAdmit(ctx, s.capacityMode, venueID, from, to, guests, 0)
}

func (s *BookingService) GetOccupancy(ctx context.Context, venueID int64, start time.Time, days int) ([]*models.Occupancy, error) {
	if days <= 0 {
		days = models.DefaultReportDays
	}
	if days > models.MaxReportDays {
		return nil, domain.Validation("days", fmt.Sprintf("days must be at most %d", models.MaxReportDays))
	}
	return s.repo.GetOccupancyForPeriod(ctx, venueID, start, days)
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) GetVenueBookings(ctx context.Context, venueID int64) ([]*models.Booking, error) {
	if _, err := s.repo.GetVenue(ctx, venueID); err != nil {
		return nil, err
	}
	return s.repo.GetVenueBookings(ctx, venueID)
}

func (s *BookingService) GetCustomerBookings(ctx context.Context, customer string) ([]*models.Booking, error) {
	return s.repo.GetCustomerBookings(ctx, customer)
}

func (s *BookingService) publishEvent(eventType string, booking models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:    booking.ID,
		VenueID:      booking.VenueID,
		CustomerName: booking.CustomerName,
		DateFrom:     booking.DateFrom,
		DateTo:       booking.DateTo,
		Guests:       booking.Guests,
		ChangedBy:    changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, taskType string, booking models.Booking) {
	if s.sheetsWorker == nil {
		return
	}

	if err := s.sheetsWorker.EnqueueBooking(ctx, taskType, &booking); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

// outcome is the metrics label for the result of an operation.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(domain.KindOf(err)))
}
