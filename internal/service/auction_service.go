package service

import (
	"context"
	"strings"
	"time"

	"practiceapi/internal/config"
	"practiceapi/internal/domain"
	"practiceapi/internal/events"
	"practiceapi/internal/logging"
	"practiceapi/internal/metrics"
	"practiceapi/internal/models"

	"github.com/rs/zerolog"
)

type AuctionService struct {
	repo         domain.AuctionRepository
	cache        domain.ListingCache
	throttle     domain.Throttle
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	cfg          config.AuctionConfig
	now          func() time.Time
	logger       *zerolog.Logger
}

// NewAuctionService wires the bid processor and settlement. cache, throttle, eventBus and
// sheetsWorker may be nil.
func NewAuctionService(
	repo domain.AuctionRepository,
	cache domain.ListingCache,
	throttle domain.Throttle,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	cfg config.AuctionConfig,
	logger *zerolog.Logger,
) *AuctionService {
	if cfg.DefaultCredits <= 0 {
		cfg.DefaultCredits = models.DefaultCredits
	}
	if cfg.SettledCacheTTL <= 0 {
		cfg.SettledCacheTTL = models.SettledListingCacheTTL
	}
	if cfg.MaxListingLength <= 0 {
		cfg.MaxListingLength = models.MaxListingLength
	}
	return &AuctionService{
		repo:         repo,
		cache:        cache,
		throttle:     throttle,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		cfg:          cfg,
		now:          time.Now,
		logger:       logging.Component(logger, "auction_service"),
	}
}

func (s *AuctionService) CreateListing(ctx context.Context, listing *models.Listing) error {
	if strings.TrimSpace(listing.Title) == "" {
		return domain.Validation("title", "title is required")
	}
	now := s.now()
	if !listing.EndsAt.After(now) {
		return domain.Validation("endsAt", "endsAt must be in the future")
	}
	if listing.EndsAt.Sub(now) > s.cfg.MaxListingLength {
		return domain.Validation("endsAt", "endsAt is too far in the future")
	}
	listing.WinnerName = nil

	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return err
	}
	s.logger.Info().Int64("listing_id", listing.ID).Str("seller", listing.SellerName).Time("ends_at", listing.EndsAt).Msg("listing created")
	return nil
}

// DeleteListing removes an open listing of requester and refunds its bids.
func (s *AuctionService) DeleteListing(ctx context.Context, id int64, requester string) error {
	if err := s.repo.DeleteListing(ctx, id, requester); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.DeleteListing(ctx, id); err != nil {
			s.logger.Warn().Err(err).Int64("listing_id", id).Msg("cache delete failed")
		}
	}
	return nil
}

func (s *AuctionService) ListListings(ctx context.Context, active bool) ([]*models.Listing, error) {
	listings, err := s.repo.ListListings(ctx, active)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var unsettled []*models.Listing
	var ids []int64
	for _, l := range listings {
		if l.Closed(now) && l.WinnerName == nil && l.BidCount > 0 {
			unsettled = append(unsettled, l)
			ids = append(ids, l.ID)
		}
	}
	if len(unsettled) == 0 {
		return listings, nil
	}

	// settle in place so list readers see the same winner as single reads
	bids, err := s.repo.GetBidsForListings(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, l := range unsettled {
		if err := s.settle(ctx, l, bids[l.ID]); err != nil {
			return nil, err
		}
		s.cacheListing(ctx, l, bids[l.ID])
	}
	return listings, nil
}

// PlaceBid debits bidder and records the bid. It returns the bid and the bidder's balance after the debit.
func (s *AuctionService) PlaceBid(ctx context.Context, listingID int64, bidder string, amount int) (*models.Bid, *models.Profile, error) {
	if amount <= 0 {
		err := domain.Validation("amount", "amount must be a positive integer")
		metrics.IncBid(outcome(err))
		return nil, nil, err
	}
	if strings.TrimSpace(bidder) == "" {
		return nil, nil, domain.Validation("bidderName", "bidder is required")
	}

	if err := s.allowBid(ctx, bidder); err != nil {
		metrics.IncBid(outcome(err))
		return nil, nil, err
	}

	bid := &models.Bid{ListingID: listingID, BidderName: bidder, Amount: amount}
	profile, err := s.repo.PlaceBid(ctx, bid, s.now, s.cfg.DefaultCredits)
	metrics.IncBid(outcome(err))
	if err != nil {
		return nil, nil, err
	}
	metrics.AddCreditsDebited(amount)

	s.logger.Info().
		Int64("listing_id", listingID).
		Int64("bid_id", bid.ID).
		Str("bidder", bidder).
		Int("amount", amount).
		Int("credits_left", profile.Credits).
		Msg("bid placed")

	s.publish(events.EventBidPlaced, events.BidEventPayload{
		BidID:      bid.ID,
		ListingID:  bid.ListingID,
		BidderName: bid.BidderName,
		Amount:     bid.Amount,
		Credits:    profile.Credits,
		CreatedAt:  bid.CreatedAt,
	})
	if s.sheetsWorker != nil {
		if err := s.sheetsWorker.EnqueueBid(ctx, bid); err != nil {
			s.logger.Error().Err(err).Int64("bid_id", bid.ID).Msg("sheets enqueue error")
		}
	}
	return bid, profile, nil
}

// allowBid applies the per-bidder limit. A throttle failure lets the bid through.
func (s *AuctionService) allowBid(ctx context.Context, bidder string) error {
	if s.throttle == nil || s.cfg.BidLimit <= 0 {
		return nil
	}
	ok, err := s.throttle.Allow(ctx, "bid:"+bidder, s.cfg.BidLimit, s.cfg.BidWindow)
	if err != nil {
		s.logger.Warn().Err(err).Str("bidder", bidder).Msg("bid throttle unavailable")
		return nil
	}
	if !ok {
		return domain.RateLimited("too many bids, try again later")
	}
	return nil
}

// GetListing returns the listing. Once the listing has closed its winner is resolved from the
// bid history and stored the first time it is read; settled listings are served from the cache.
func (s *AuctionService) GetListing(ctx context.Context, id int64, withBids bool) (*models.Listing, error) {
	if cached := s.cachedListing(ctx, id); cached != nil {
		if !withBids {
			cached.Bids = nil
		}
		return cached, nil
	}

	listing, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}

	closed := listing.Closed(s.now())
	var bids []*models.Bid
	if withBids || closed {
		if bids, err = s.repo.GetListingBids(ctx, id); err != nil {
			return nil, err
		}
	}

	if closed {
		if err := s.settle(ctx, listing, bids); err != nil {
			return nil, err
		}
		s.cacheListing(ctx, listing, bids)
	}

	if withBids {
		listing.Bids = bids
	}
	return listing, nil
}

// GetListingBids returns the bid history of an existing listing.
func (s *AuctionService) GetListingBids(ctx context.Context, id int64) (*models.Listing, []*models.Bid, error) {
	listing, err := s.GetListing(ctx, id, true)
	if err != nil {
		return nil, nil, err
	}
	return listing, listing.Bids, nil
}

// settle fills listing.WinnerName, storing it if no winner has been stored yet.
func (s *AuctionService) settle(ctx context.Context, listing *models.Listing, bids []*models.Bid) error {
	if listing.WinnerName != nil {
		return nil
	}
	winner := domain.ResolveWinner(bids, listing.EndsAt)
	if winner == nil {
		metrics.IncSettlement("no_bids")
		return nil
	}

	wrote, err := s.repo.SetListingWinner(ctx, listing.ID, winner.BidderName)
	if err != nil {
		return err
	}
	if !wrote {
		// a concurrent reader stored it first
		stored, err := s.repo.GetListing(ctx, listing.ID)
		if err != nil {
			return err
		}
		listing.WinnerName = stored.WinnerName
		metrics.IncSettlement("already_settled")
		return nil
	}

	name := winner.BidderName
	listing.WinnerName = &name
	metrics.IncSettlement("settled")
	s.logger.Info().Int64("listing_id", listing.ID).Str("winner", name).Int("amount", winner.Amount).Msg("listing settled")

	s.publish(events.EventListingSettled, events.ListingSettledPayload{
		ListingID:  listing.ID,
		Title:      listing.Title,
		SellerName: listing.SellerName,
		WinnerName: name,
		Amount:     winner.Amount,
		BidCount:   len(bids),
		EndsAt:     listing.EndsAt,
	})
	return nil
}

func (s *AuctionService) cachedListing(ctx context.Context, id int64) *models.Listing {
	if s.cache == nil {
		return nil
	}
	listing, err := s.cache.GetListing(ctx, id)
	if err != nil {
		metrics.IncCache("error")
		s.logger.Warn().Err(err).Int64("listing_id", id).Msg("cache read failed")
		return nil
	}
	if listing == nil {
		metrics.IncCache("miss")
		return nil
	}
	metrics.IncCache("hit")
	return listing
}

func (s *AuctionService) cacheListing(ctx context.Context, listing *models.Listing, bids []*models.Bid) {
	if s.cache == nil {
		return
	}
	snapshot := *listing
	snapshot.Bids = bids
	if err := s.cache.SetListing(ctx, &snapshot, s.cfg.SettledCacheTTL); err != nil {
		s.logger.Warn().Err(err).Int64("listing_id", listing.ID).Msg("cache write failed")
	}
}

func (s *AuctionService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
