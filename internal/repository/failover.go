package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"practiceapi/internal/models"

	"github.com/rs/zerolog"
)

// Store is what the failover wrapper switches between.
type Store interface {
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	SetListing(ctx context.Context, listing *models.Listing, ttl time.Duration) error
	DeleteListing(ctx context.Context, id int64) error
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// FailoverStore uses primary until it fails, then serves from fallback and
// probes primary again once recoverAfter has passed.
type FailoverStore struct {
	primary      Store
	fallback     Store
	logger       *zerolog.Logger
	isDown       atomic.Bool
	mu           sync.Mutex
	lastCheck    time.Time
	recoverAfter time.Duration
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &FailoverStore{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: time.Minute,
	}
}

// Down reports whether calls are currently served by the fallback.
func (r *FailoverStore) Down() bool {
	return r.isDown.Load()
}

func (r *FailoverStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary store failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the next call should go to the primary.
func (r *FailoverStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > r.recoverAfter {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverStore) recovered() {
	if r.isDown.CompareAndSwap(true, false) {
		r.logger.Info().Msg("primary store recovered")
	}
}

func (r *FailoverStore) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	if r.usePrimary() {
		listing, err := r.primary.GetListing(ctx, id)
		if err == nil {
			r.recovered()
			return listing, nil
		}
		r.markDown(err)
	}

	return r.fallback.GetListing(ctx, id)
}

func (r *FailoverStore) SetListing(ctx context.Context, listing *models.Listing, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SetListing(ctx, listing, ttl)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetListing(ctx, listing, ttl)
}

func (r *FailoverStore) DeleteListing(ctx context.Context, id int64) error {
	// both sides, so a recovered primary never serves a stale entry
	_ = r.fallback.DeleteListing(ctx, id)
	if r.usePrimary() {
		err := r.primary.DeleteListing(ctx, id)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.Allow(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.Allow(ctx, key, limit, window)
}
