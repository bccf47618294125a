package domain

import (
	"context"
	"time"

	"practiceapi/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type VenueRepository interface {
	CreateVenue(ctx context.Context, venue *models.Venue) error
	GetVenue(ctx context.Context, id int64) (*models.Venue, error)
	GetVenues(ctx context.Context) ([]*models.Venue, error)
	UpdateVenue(ctx context.Context, venue *models.Venue, requester string) error
	DeleteVenue(ctx context.Context, id int64, requester string) error
}

type BookingRepository interface {
	VenueRepository
	CanAdmit(ctx context.Context, mode string, venueID int64, from, to time.Time, guests int, excludeID int64) (Decision, error)
	CreateBookingWithLock(ctx context.Context, mode string, booking *models.Booking) error
	UpdateBookingWithLock(ctx context.Context, mode string, id int64, requester string, patch models.BookingPatch) (*models.Booking, error)
	DeleteBooking(ctx context.Context, id int64, requester string) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetVenueBookings(ctx context.Context, venueID int64) ([]*models.Booking, error)
	GetCustomerBookings(ctx context.Context, customer string) ([]*models.Booking, error)
	GetOccupancyForPeriod(ctx context.Context, venueID int64, start time.Time, days int) ([]*models.Occupancy, error)
}

type AuctionRepository interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	ListListings(ctx context.Context, active bool) ([]*models.Listing, error)
	DeleteListing(ctx context.Context, id int64, requester string) error
	GetListingBids(ctx context.Context, listingID int64) ([]*models.Bid, error)
	GetBidsForListings(ctx context.Context, listingIDs []int64) (map[int64][]*models.Bid, error)
	SetListingWinner(ctx context.Context, id int64, winner string) (bool, error)
	PlaceBid(ctx context.Context, bid *models.Bid, clock func() time.Time, defaultCredits int) (*models.Profile, error)
}

type ProfileRepository interface {
	EnsureProfile(ctx context.Context, name string, credits int) (*models.Profile, error)
	GetProfile(ctx context.Context, name string) (*models.Profile, error)
	GetProfileBids(ctx context.Context, bidder string) ([]*models.Bid, error)
	GetCustomerBookings(ctx context.Context, customer string) ([]*models.Booking, error)
	SetVenueManager(ctx context.Context, name string, manager bool) error
}

// ListingCache holds settled listings, which never change again. A miss returns nil, nil.
type ListingCache interface {
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	SetListing(ctx context.Context, listing *models.Listing, ttl time.Duration) error
	DeleteListing(ctx context.Context, id int64) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueBooking(ctx context.Context, taskType string, booking *models.Booking) error
	EnqueueBid(ctx context.Context, bid *models.Bid) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramService is the part of the bot API the command bot drives.
type TelegramService interface {
	TelegramSender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	DeleteBookingRow(ctx context.Context, bookingID int64) error
	AppendBid(ctx context.Context, bid *models.Bid) error
}

// Throttle counts calls per key in fixed windows.
type Throttle interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
