package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"practiceapi/internal/config"
	"practiceapi/internal/database"
	"practiceapi/internal/domain"
	"practiceapi/internal/export"
	"practiceapi/internal/models"
	"practiceapi/internal/repository"
	"practiceapi/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"
)

type testEnv struct {
	db   *database.DB
	svcs Services
	ts   *httptest.Server
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServices(db *database.DB) Services {
	logger := zerolog.New(io.Discard)
	return Services{
		Bookings: service.NewBookingService(db, nil, nil, models.CapacityModeSum, &logger),
		Venues:   service.NewVenueService(db, db, models.DefaultCredits, &logger),
		Auction:  service.NewAuctionService(db, repository.NewMemoryStore(), nil, nil, nil, config.AuctionConfig{}, &logger),
		Profiles: service.NewProfileService(db, models.DefaultCredits),
		Exporter: export.NewExporter("", &logger),
	}
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()
	db := newTestDB(t)
	svcs := newTestServices(db)
	logger := zerolog.New(io.Discard)
	server := NewHTTPServer(cfg, svcs, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{db: db, svcs: svcs, ts: ts}
}

type response struct {
	code int
	data json.RawMessage
	meta map[string]any
	errs errorEnvelope
	raw  []byte
}

func (e *testEnv) do(t *testing.T, method, path, profile string, body any) response {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if profile != "" {
		req.Header.Set("X-Profile-Name", profile)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	out := response{code: resp.StatusCode}
	out.raw, _ = io.ReadAll(resp.Body)
	if len(out.raw) == 0 || resp.Header.Get("Content-Type") != "application/json" {
		return out
	}
	if resp.StatusCode < 300 {
		var env struct {
			Data json.RawMessage `json:"data"`
			Meta map[string]any  `json:"meta"`
		}
		if err := json.Unmarshal(out.raw, &env); err != nil {
			t.Fatalf("decode data envelope: %v", err)
		}
		out.data, out.meta = env.Data, env.Meta
		return out
	}
	if err := json.Unmarshal(out.raw, &out.errs); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return out
}

func (r response) decode(t *testing.T, dst any) {
	t.Helper()
	if err := json.Unmarshal(r.data, dst); err != nil {
		t.Fatalf("decode data: %v (%s)", err, r.raw)
	}
}

func (e *testEnv) createVenue(t *testing.T, owner string, maxGuests int) models.Venue {
	t.Helper()
	if r := e.do(t, http.MethodPut, "/holidaze/profiles/"+owner, owner, map[string]any{"venueManager": true}); r.code != http.StatusOK {
		t.Fatalf("become manager: %d %s", r.code, r.raw)
	}
	r := e.do(t, http.MethodPost, "/holidaze/venues", owner, map[string]any{"name": "hall", "maxGuests": maxGuests, "price": 100})
	if r.code != http.StatusCreated {
		t.Fatalf("create venue: %d %s", r.code, r.raw)
	}
	var v models.Venue
	r.decode(t, &v)
	return v
}

func bookingBody(venueID int64, from, to string, guests int) map[string]any {
	return map[string]any{"venueId": venueID, "dateFrom": from, "dateTo": to, "guests": guests}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	venue := env.createVenue(t, "olga", 2)

	r := env.do(t, http.MethodPost, "/holidaze/bookings", "ann", bookingBody(venue.ID, "2024-03-01", "2024-04-01", 2))
	if r.code != http.StatusCreated {
		t.Fatalf("first booking: %d %s", r.code, r.raw)
	}
	var first models.Booking
	r.decode(t, &first)
	assert.Equal(t, "ann", first.CustomerName)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), first.DateFrom.UTC())

	r = env.do(t, http.MethodPost, "/holidaze/bookings", "bob", bookingBody(venue.ID, "2024-03-01T00:00:00Z", "2024-04-01T00:00:00Z", 1))
	assert.Equal(t, http.StatusConflict, r.code)
	assert.Equal(t, "Conflict", r.errs.Status)
	assert.Equal(t, http.StatusConflict, r.errs.StatusCode)
	if assert.Len(t, r.errs.Errors, 1) {
		assert.Equal(t, domain.MsgBookingConflict, r.errs.Errors[0].Message)
		assert.Equal(t, "Conflict", r.errs.Errors[0].Code)
	}

	r = env.do(t, http.MethodPost, "/holidaze/bookings", "bob", bookingBody(venue.ID, "2024-05-01", "2024-06-01", 2))
	assert.Equal(t, http.StatusCreated, r.code)

	r = env.do(t, http.MethodDelete, fmt.Sprintf("/holidaze/bookings/%d", first.ID), "mallory", nil)
	assert.Equal(t, http.StatusForbidden, r.code)

	r = env.do(t, http.MethodGet, fmt.Sprintf("/holidaze/bookings/%d", first.ID), "ann", nil)
	assert.Equal(t, http.StatusOK, r.code)

	r = env.do(t, http.MethodPut, fmt.Sprintf("/holidaze/bookings/%d", first.ID), "ann", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, r.code)
	assert.Equal(t, "Bad Request", r.errs.Status)

	r = env.do(t, http.MethodPut, fmt.Sprintf("/holidaze/bookings/%d", first.ID), "ann", map[string]any{"guests": 1})
	if r.code != http.StatusOK {
		t.Fatalf("update: %d %s", r.code, r.raw)
	}
	var updated models.Booking
	r.decode(t, &updated)
	assert.Equal(t, 1, updated.Guests)

	r = env.do(t, http.MethodGet, "/holidaze/bookings", "ann", nil)
	assert.Equal(t, http.StatusOK, r.code)
	assert.EqualValues(t, 1, r.meta["count"])

	r = env.do(t, http.MethodDelete, fmt.Sprintf("/holidaze/bookings/%d", first.ID), "ann", nil)
	assert.Equal(t, http.StatusNoContent, r.code)

	r = env.do(t, http.MethodGet, fmt.Sprintf("/holidaze/bookings/%d", first.ID), "ann", nil)
	assert.Equal(t, http.StatusNotFound, r.code)
}

func TestBookingRequestErrors(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	venue := env.createVenue(t, "olga", 2)

	tests := []struct {
		name    string
		profile string
		body    any
		code    int
		path    string
	}{
		{"NoProfile", "", bookingBody(venue.ID, "2024-03-01", "2024-04-01", 1), http.StatusUnauthorized, ""},
		{"BadJSON", "ann", "{", http.StatusBadRequest, ""},
		{"UnknownVenue", "ann", bookingBody(999, "2024-03-01", "2024-04-01", 1), http.StatusNotFound, ""},
		{"ReversedDates", "ann", bookingBody(venue.ID, "2024-04-01", "2024-03-01", 1), http.StatusBadRequest, "dateTo"},
		{"ZeroGuests", "ann", bookingBody(venue.ID, "2024-03-01", "2024-04-01", 0), http.StatusBadRequest, "guests"},
		{"MissingGuests", "ann", map[string]any{"venueId": venue.ID, "dateFrom": "2024-03-01", "dateTo": "2024-04-01"}, http.StatusBadRequest, "guests"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := env.do(t, http.MethodPost, "/holidaze/bookings", tt.profile, tt.body)
			assert.Equal(t, tt.code, r.code, string(r.raw))
			assert.Equal(t, tt.code, r.errs.StatusCode)
			if tt.path != "" && assert.NotEmpty(t, r.errs.Errors) {
				assert.Equal(t, tt.path, r.errs.Errors[0].Path)
			}
		})
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	venue := env.createVenue(t, "olga", 3)
	env.do(t, http.MethodPost, "/holidaze/bookings", "ann", bookingBody(venue.ID, "2024-03-01", "2024-04-01", 2))

	path := fmt.Sprintf("/holidaze/venues/%d/availability?dateFrom=2024-03-10&dateTo=2024-03-12&guests=2", venue.ID)
	r := env.do(t, http.MethodGet, path, "", nil)
	if r.code != http.StatusOK {
		t.Fatalf("availability: %d %s", r.code, r.raw)
	}
	var d domain.Decision
	r.decode(t, &d)
	assert.False(t, d.Admit)
	assert.Equal(t, 2, d.Occupied)
	assert.Equal(t, 3, d.Capacity)

	path = fmt.Sprintf("/holidaze/venues/%d/availability?dateFrom=2024-04-01&dateTo=2024-04-03&guests=3", venue.ID)
	r = env.do(t, http.MethodGet, path, "", nil)
	r.decode(t, &d)
	assert.True(t, d.Admit, "touching intervals do not overlap")

	r = env.do(t, http.MethodGet, fmt.Sprintf("/holidaze/venues/%d/availability?dateTo=2024-04-03", venue.ID), "", nil)
	assert.Equal(t, http.StatusBadRequest, r.code)
	if assert.NotEmpty(t, r.errs.Errors) {
		assert.Equal(t, "dateFrom", r.errs.Errors[0].Path)
	}
}

func TestVenueRoutes(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	r := env.do(t, http.MethodPost, "/holidaze/venues", "ann", map[string]any{"name": "hall", "maxGuests": 2})
	assert.Equal(t, http.StatusForbidden, r.code, "only venue managers create venues")

	venue := env.createVenue(t, "olga", 2)
	env.do(t, http.MethodPost, "/holidaze/bookings", "ann", bookingBody(venue.ID, "2024-03-01", "2024-04-01", 1))

	r = env.do(t, http.MethodGet, fmt.Sprintf("/holidaze/venues/%d?_bookings=true", venue.ID), "", nil)
	var withBookings models.Venue
	r.decode(t, &withBookings)
	assert.Len(t, withBookings.Bookings, 1)

	r = env.do(t, http.MethodPut, fmt.Sprintf("/holidaze/venues/%d", venue.ID), "ann", map[string]any{"name": "mine", "maxGuests": 5})
	assert.Equal(t, http.StatusForbidden, r.code)

	r = env.do(t, http.MethodPut, fmt.Sprintf("/holidaze/venues/%d", venue.ID), "olga", map[string]any{"name": "big hall", "maxGuests": 5})
	var updated models.Venue
	r.decode(t, &updated)
	assert.Equal(t, "big hall", updated.Name)
	assert.Equal(t, 5, updated.MaxGuests)

	r = env.do(t, http.MethodGet, "/holidaze/venues", "", nil)
	assert.EqualValues(t, 1, r.meta["count"])

	r = env.do(t, http.MethodGet, "/holidaze/venues/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, r.code)

	r = env.do(t, http.MethodDelete, fmt.Sprintf("/holidaze/venues/%d", venue.ID), "olga", nil)
	assert.Equal(t, http.StatusNoContent, r.code)

	r = env.do(t, http.MethodGet, "/holidaze/bookings", "ann", nil)
	assert.EqualValues(t, 0, r.meta["count"], "venue deletion cascades to bookings")
}

func TestVenueExport(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	venue := env.createVenue(t, "olga", 2)
	env.do(t, http.MethodPost, "/holidaze/bookings", "ann", bookingBody(venue.ID, "2024-03-01", "2024-03-05", 1))

	r := env.do(t, http.MethodGet, fmt.Sprintf("/holidaze/venues/%d/bookings/export?from=2024-03-01&days=7", venue.ID), "", nil)
	if r.code != http.StatusOK {
		t.Fatalf("export: %d %s", r.code, r.raw)
	}
	f, err := excelize.OpenReader(bytes.NewReader(r.raw))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Bookings")
	if err != nil {
		t.Fatalf("bookings sheet: %v", err)
	}
	assert.Len(t, rows, 2)

	r = env.do(t, http.MethodGet, fmt.Sprintf("/holidaze/venues/%d/bookings/export?days=%d", venue.ID, int64(1)<<40), "", nil)
	assert.Equal(t, http.StatusBadRequest, r.code)
}

func TestAuctionOverHTTP(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	r := env.do(t, http.MethodPost, "/auction/listings", "sue", map[string]any{
		"title":  "vase",
		"endsAt": time.Now().AddDate(0, 2, 0).UTC().Format(time.RFC3339),
	})
	if r.code != http.StatusCreated {
		t.Fatalf("create listing: %d %s", r.code, r.raw)
	}
	var open models.Listing
	r.decode(t, &open)

	r = env.do(t, http.MethodPost, fmt.Sprintf("/auction/listings/%d/bids", open.ID), "bob", map[string]any{"amount": 10})
	if r.code != http.StatusCreated {
		t.Fatalf("bid: %d %s", r.code, r.raw)
	}
	assert.EqualValues(t, 990, r.meta["credits"])

	closed := &models.Listing{Title: "bowl", SellerName: "sue", EndsAt: time.Now().Add(-time.Minute)}
	if err := env.db.CreateListing(context.Background(), closed); err != nil {
		t.Fatalf("create closed listing: %v", err)
	}

	r = env.do(t, http.MethodPost, fmt.Sprintf("/auction/listings/%d/bids", closed.ID), "bob", map[string]any{"amount": 10})
	assert.Equal(t, http.StatusConflict, r.code)
	if assert.NotEmpty(t, r.errs.Errors) {
		assert.Equal(t, "This listing has already ended", r.errs.Errors[0].Message)
	}

	r = env.do(t, http.MethodPost, fmt.Sprintf("/auction/listings/%d/bids", open.ID), "bob", map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, r.code)
	if assert.NotEmpty(t, r.errs.Errors) {
		assert.Equal(t, "amount", r.errs.Errors[0].Path)
	}

	r = env.do(t, http.MethodPost, fmt.Sprintf("/auction/listings/%d/bids", open.ID), "bob", map[string]any{"amount": 5000})
	assert.Equal(t, http.StatusConflict, r.code)

	r = env.do(t, http.MethodPost, "/auction/listings/999/bids", "bob", map[string]any{"amount": 1})
	assert.Equal(t, http.StatusNotFound, r.code)

	r = env.do(t, http.MethodGet, "/auction/profiles/bob", "", nil)
	var bob models.Profile
	r.decode(t, &bob)
	assert.Equal(t, 990, bob.Credits)

	r = env.do(t, http.MethodGet, "/auction/profiles/bob/bids", "", nil)
	assert.EqualValues(t, 1, r.meta["count"])

	r = env.do(t, http.MethodGet, "/auction/profiles/newcomer", "newcomer", nil)
	var newcomer models.Profile
	r.decode(t, &newcomer)
	assert.Equal(t, models.DefaultCredits, newcomer.Credits)

	r = env.do(t, http.MethodGet, "/auction/listings?_active=true", "", nil)
	assert.EqualValues(t, 1, r.meta["count"])

	r = env.do(t, http.MethodDelete, fmt.Sprintf("/auction/listings/%d", open.ID), "bob", nil)
	assert.Equal(t, http.StatusForbidden, r.code)

	r = env.do(t, http.MethodDelete, fmt.Sprintf("/auction/listings/%d", open.ID), "sue", nil)
	assert.Equal(t, http.StatusNoContent, r.code)

	r = env.do(t, http.MethodGet, "/auction/profiles/bob", "", nil)
	r.decode(t, &bob)
	assert.Equal(t, models.DefaultCredits, bob.Credits, "deleting an open listing refunds its bids")
}

func TestListingSettlesOnRead(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	ends := time.Now().Add(1500 * time.Millisecond).UTC()

	r := env.do(t, http.MethodPost, "/auction/listings", "sue", map[string]any{"title": "clock", "endsAt": ends.Format(time.RFC3339Nano)})
	if r.code != http.StatusCreated {
		t.Fatalf("create listing: %d %s", r.code, r.raw)
	}
	var listing models.Listing
	r.decode(t, &listing)

	for _, b := range []struct {
		bidder string
		amount int
	}{{"A", 10}, {"B", 15}, {"C", 15}} {
		r = env.do(t, http.MethodPost, fmt.Sprintf("/auction/listings/%d/bids", listing.ID), b.bidder, map[string]any{"amount": b.amount})
		if r.code != http.StatusCreated {
			t.Fatalf("bid %s: %d %s", b.bidder, r.code, r.raw)
		}
	}

	time.Sleep(time.Until(ends) + 50*time.Millisecond)

	r = env.do(t, http.MethodGet, fmt.Sprintf("/auction/listings/%d?_bids=true", listing.ID), "", nil)
	var settled models.Listing
	r.decode(t, &settled)
	if settled.WinnerName == nil {
		t.Fatalf("expected a winner: %s", r.raw)
	}
	assert.Equal(t, "B", *settled.WinnerName)
	assert.Len(t, settled.Bids, 3)

	r = env.do(t, http.MethodPost, fmt.Sprintf("/auction/listings/%d/bids", listing.ID), "D", map[string]any{"amount": 50})
	assert.Equal(t, http.StatusConflict, r.code)

	r = env.do(t, http.MethodGet, fmt.Sprintf("/auction/listings/%d/bids/export", listing.ID), "", nil)
	assert.Equal(t, http.StatusOK, r.code)
	f, err := excelize.OpenReader(bytes.NewReader(r.raw))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	winner, err := f.GetCellValue("Bids", "E4")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	assert.Equal(t, "yes", winner, "B placed the first 15 credit bid")
}

func TestHealthAndReadiness(t *testing.T) {
	db := newTestDB(t)
	svcs := newTestServices(db)
	ready := errors.New("redis down")
	svcs.Ready = func(context.Context) error { return ready }
	logger := zerolog.New(io.Discard)
	cfg := config.APIConfig{Auth: config.APIAuthConfig{Enabled: true, APIKeys: []config.APIClientKey{{Key: "k", Profile: "ann"}}}}
	ts := httptest.NewServer(NewHTTPServer(cfg, svcs, &logger).Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health bypasses auth")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ready = nil
	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
