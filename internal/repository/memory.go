package repository

import (
	"context"
	"sync"
	"time"

	"practiceapi/internal/models"
)

type MemoryStore struct {
	listings   sync.Map
	rateLimits sync.Map
	mu         sync.Mutex
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

type listingEntry struct {
	listing   models.Listing
	expiresAt time.Time
}

func (r *MemoryStore) GetListing(_ context.Context, id int64) (*models.Listing, error) {
	val, ok := r.listings.Load(id)
	if !ok {
		return nil, nil
	}
	entry := val.(*listingEntry)
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.listings.Delete(id)
		return nil, nil
	}
	l := entry.listing
	return &l, nil
}

func (r *MemoryStore) SetListing(_ context.Context, listing *models.Listing, ttl time.Duration) error {
	entry := &listingEntry{listing: *listing}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.listings.Store(listing.ID, entry)
	return nil
}

func (r *MemoryStore) DeleteListing(_ context.Context, id int64) error {
	r.listings.Delete(id)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
