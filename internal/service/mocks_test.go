package service

import (
	"context"
	"time"

	"practiceapi/internal/domain"
	"practiceapi/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/mock"
)

type mockBookingRepo struct {
	mock.Mock
}

func (m *mockBookingRepo) CreateVenue(ctx context.Context, v *models.Venue) error {
	return m.Called(ctx, v).Error(0)
}
func (m *mockBookingRepo) GetVenue(ctx context.Context, id int64) (*models.Venue, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Venue), args.Error(1)
}
func (m *mockBookingRepo) GetVenues(ctx context.Context) ([]*models.Venue, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Venue), args.Error(1)
}
func (m *mockBookingRepo) UpdateVenue(ctx context.Context, v *models.Venue, r string) error {
	return m.Called(ctx, v, r).Error(0)
}
func (m *mockBookingRepo) DeleteVenue(ctx context.Context, id int64, r string) error {
	return m.Called(ctx, id, r).Error(0)
}
func (m *mockBookingRepo) CanAdmit(ctx context.Context, mode string, id int64, f, t time.Time, g int, ex int64) (domain.Decision, error) {
	args := m.Called(ctx, mode, id, f, t, g, ex)
	return args.Get(0).(domain.Decision), args.Error(1)
}
func (m *mockBookingRepo) CreateBookingWithLock(ctx context.Context, mode string, b *models.Booking) error {
	return m.Called(ctx, mode, b).Error(0)
}
func (m *mockBookingRepo) UpdateBookingWithLock(ctx context.Context, mode string, id int64, r string, p models.BookingPatch) (*models.Booking, error) {
	args := m.Called(ctx, mode, id, r, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingRepo) DeleteBooking(ctx context.Context, id int64, r string) (*models.Booking, error) {
	args := m.Called(ctx, id, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBookingRepo) GetVenueBookings(ctx context.Context, id int64) ([]*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingRepo) GetCustomerBookings(ctx context.Context, c string) ([]*models.Booking, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBookingRepo) GetOccupancyForPeriod(ctx context.Context, id int64, s time.Time, d int) ([]*models.Occupancy, error) {
	args := m.Called(ctx, id, s, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Occupancy), args.Error(1)
}

type mockAuctionRepo struct {
	mock.Mock
}

func (m *mockAuctionRepo) CreateListing(ctx context.Context, l *models.Listing) error {
	return m.Called(ctx, l).Error(0)
}
func (m *mockAuctionRepo) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *mockAuctionRepo) ListListings(ctx context.Context, active bool) ([]*models.Listing, error) {
	args := m.Called(ctx, active)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Listing), args.Error(1)
}
func (m *mockAuctionRepo) DeleteListing(ctx context.Context, id int64, r string) error {
	return m.Called(ctx, id, r).Error(0)
}
func (m *mockAuctionRepo) GetListingBids(ctx context.Context, id int64) ([]*models.Bid, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bid), args.Error(1)
}
func (m *mockAuctionRepo) GetBidsForListings(ctx context.Context, ids []int64) (map[int64][]*models.Bid, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64][]*models.Bid), args.Error(1)
}
func (m *mockAuctionRepo) SetListingWinner(ctx context.Context, id int64, w string) (bool, error) {
	args := m.Called(ctx, id, w)
	return args.Bool(0), args.Error(1)
}
func (m *mockAuctionRepo) PlaceBid(ctx context.Context, b *models.Bid, clock func() time.Time, credits int) (*models.Profile, error) {
	args := m.Called(ctx, b, clock(), credits)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

type mockProfileRepo struct {
	mock.Mock
}

func (m *mockProfileRepo) EnsureProfile(ctx context.Context, n string, c int) (*models.Profile, error) {
	args := m.Called(ctx, n, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}
func (m *mockProfileRepo) GetProfile(ctx context.Context, n string) (*models.Profile, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}
func (m *mockProfileRepo) GetProfileBids(ctx context.Context, n string) ([]*models.Bid, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bid), args.Error(1)
}
func (m *mockProfileRepo) GetCustomerBookings(ctx context.Context, n string) ([]*models.Booking, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockProfileRepo) SetVenueManager(ctx context.Context, n string, v bool) error {
	return m.Called(ctx, n, v).Error(0)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *mockCache) SetListing(ctx context.Context, l *models.Listing, ttl time.Duration) error {
	return m.Called(ctx, l, ttl).Error(0)
}
func (m *mockCache) DeleteListing(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type mockThrottle struct {
	mock.Mock
}

func (m *mockThrottle) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueBooking(ctx context.Context, tt string, b *models.Booking) error {
	return m.Called(ctx, tt, b).Error(0)
}
func (m *mockWorker) EnqueueBid(ctx context.Context, b *models.Bid) error {
	return m.Called(ctx, b).Error(0)
}

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}
