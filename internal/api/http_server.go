package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"practiceapi/internal/config"
	"practiceapi/internal/domain"
	"practiceapi/internal/export"
	"practiceapi/internal/logging"
	"practiceapi/internal/models"
	"practiceapi/internal/service"

	"github.com/rs/zerolog"
)

// Services are the operations exposed over HTTP and gRPC.
type Services struct {
	Bookings *service.BookingService
	Venues   *service.VenueService
	Auction  *service.AuctionService
	Profiles *service.ProfileService
	Exporter *export.Exporter
	// Ready reports whether backing stores are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// HTTPServer exposes the booking and auction API.
type HTTPServer struct {
	cfg     config.APIConfig
	svcs    Services
	server  *http.Server
	handler http.Handler
	logger  *zerolog.Logger
}

var errNoCaller = errors.New("a profile is required for this request")

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func NewHTTPServer(cfg config.APIConfig, svcs Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, svcs: svcs, logger: logging.Component(logger, "http")}
	if srv.svcs.Exporter == nil {
		srv.svcs.Exporter = export.NewExporter("", logger)
	}

	api := http.NewServeMux()
	srv.route(api, "GET /holidaze/venues", srv.listVenues)
	srv.route(api, "POST /holidaze/venues", srv.createVenue)
	srv.route(api, "GET /holidaze/venues/{id}", srv.getVenue)
	srv.route(api, "PUT /holidaze/venues/{id}", srv.updateVenue)
	srv.route(api, "DELETE /holidaze/venues/{id}", srv.deleteVenue)
	srv.route(api, "GET /holidaze/venues/{id}/availability", srv.availability)
	srv.route(api, "GET /holidaze/venues/{id}/bookings/export", srv.exportVenue)

	srv.route(api, "GET /holidaze/bookings", srv.myBookings)
	srv.route(api, "POST /holidaze/bookings", srv.createBooking)
	srv.route(api, "GET /holidaze/bookings/{id}", srv.getBooking)
	srv.route(api, "PUT /holidaze/bookings/{id}", srv.updateBooking)
	srv.route(api, "DELETE /holidaze/bookings/{id}", srv.deleteBooking)

	srv.route(api, "GET /holidaze/profiles/{name}", srv.getProfile)
	srv.route(api, "PUT /holidaze/profiles/{name}", srv.updateProfile)
	srv.route(api, "GET /holidaze/profiles/{name}/bookings", srv.profileBookings)

	srv.route(api, "GET /auction/profiles/{name}", srv.auctionProfile)
	srv.route(api, "GET /auction/profiles/{name}/bids", srv.profileBids)
	srv.route(api, "GET /auction/listings", srv.listListings)
	srv.route(api, "POST /auction/listings", srv.createListing)
	srv.route(api, "GET /auction/listings/{id}", srv.getListing)
	srv.route(api, "DELETE /auction/listings/{id}", srv.deleteListing)
	srv.route(api, "POST /auction/listings/{id}/bids", srv.placeBid)
	srv.route(api, "GET /auction/listings/{id}/bids/export", srv.exportBids)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", instrument("GET /healthz", srv.healthz))
	root.HandleFunc("GET /readyz", instrument("GET /readyz", srv.readyz))
	root.Handle("/", NewHTTPAuth(cfg).Wrap(api))

	srv.handler = requestIDMiddleware(loggingMiddleware(srv.logger, root))
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) route(mux *http.ServeMux, pattern string, h handlerFunc) {
	mux.HandleFunc(pattern, instrument(pattern, func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.writeErr(w, err)
		}
	}))
}

func (s *HTTPServer) writeErr(w http.ResponseWriter, err error) {
	if errors.Is(err, errNoCaller) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeDomainError(w, s.logger, err)
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on lis until Shutdown.
func (s *HTTPServer) Serve(lis net.Listener) error {
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) healthz(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
}

func (s *HTTPServer) readyz(w http.ResponseWriter, r *http.Request) {
	if s.svcs.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svcs.Ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// request helpers

func caller(r *http.Request) (string, error) {
	name := CallerFrom(r.Context())
	if name == "" {
		return "", errNoCaller
	}
	return name, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("id", "id must be a positive integer")
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return domain.Validation("", "invalid JSON body")
	}
	return nil
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

// parseDate accepts RFC3339 timestamps and plain YYYY-MM-DD dates (UTC midnight).
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation(models.DateLayout, raw, time.UTC)
}

func queryDate(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, domain.Validation(key, key+" is required")
	}
	t, err := parseDate(raw)
	if err != nil {
		return time.Time{}, domain.Validation(key, "expected RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

// flexTime decodes either date form from JSON.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := parseDate(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t *flexTime) ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

func listMeta(n int) Meta {
	return Meta{"count": n}
}

// venues

type venueRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	MaxGuests   int     `json:"maxGuests"`
}

func (s *HTTPServer) listVenues(w http.ResponseWriter, r *http.Request) error {
	venues, err := s.svcs.Venues.GetVenues(r.Context())
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, venues, listMeta(len(venues)))
	return nil
}

func (s *HTTPServer) createVenue(w http.ResponseWriter, r *http.Request) error {
	owner, err := caller(r)
	if err != nil {
		return err
	}
	var req venueRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	venue := &models.Venue{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		MaxGuests:   req.MaxGuests,
		OwnerName:   owner,
	}
	if err := s.svcs.Venues.CreateVenue(r.Context(), venue); err != nil {
		return err
	}
	writeData(w, http.StatusCreated, venue, nil)
	return nil
}

func (s *HTTPServer) getVenue(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	venue, err := s.svcs.Venues.GetVenue(r.Context(), id, queryBool(r, "_bookings"))
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, venue, nil)
	return nil
}

func (s *HTTPServer) updateVenue(w http.ResponseWriter, r *http.Request) error {
	owner, err := caller(r)
	if err != nil {
		return err
	}
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var req venueRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	venue := &models.Venue{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		MaxGuests:   req.MaxGuests,
		OwnerName:   owner,
	}
	if err := s.svcs.Venues.UpdateVenue(r.Context(), venue, owner); err != nil {
		return err
	}
	updated, err := s.svcs.Venues.GetVenue(r.Context(), id, false)
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, updated, nil)
	return nil
}

func (s *HTTPServer) deleteVenue(w http.ResponseWriter, r *http.Request) error {
	owner, err := caller(r)
	if err != nil {
		return err
	}
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := s.svcs.Venues.DeleteVenue(r.Context(), id, owner); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *HTTPServer) availability(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	from, err := queryDate(r, "dateFrom")
	if err != nil {
		return err
	}
	to, err := queryDate(r, "dateTo")
	if err != nil {
		return err
	}
	guests := 1
	if raw := r.URL.Query().Get("guests"); raw != "" {
		if guests, err = strconv.Atoi(raw); err != nil {
			return domain.Validation("guests", "guests must be an integer")
		}
	}
	decision, err := s.svcs.Bookings.CheckAvailability(r.Context(), id, from, to, guests)
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, decision, nil)
	return nil
}

func (s *HTTPServer) exportVenue(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	start := time.Now().UTC().Truncate(24 * time.Hour)
	if r.URL.Query().Get("from") != "" {
		if start, err = queryDate(r, "from"); err != nil {
			return err
		}
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	venue, err := s.svcs.Venues.GetVenue(r.Context(), id, false)
	if err != nil {
		return err
	}
	occupancy, err := s.svcs.Bookings.GetOccupancy(r.Context(), id, start, days)
	if err != nil {
		return err
	}
	bookings, err := s.svcs.Bookings.GetVenueBookings(r.Context(), id)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	name, err := s.svcs.Exporter.VenueOccupancy(&buf, venue, occupancy, bookings)
	if err != nil {
		return err
	}
	writeFile(w, name, buf.Bytes())
	return nil
}

func writeFile(w http.ResponseWriter, name string, body []byte) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// bookings

type bookingRequest struct {
	VenueID  int64     `json:"venueId"`
	DateFrom *flexTime `json:"dateFrom"`
	DateTo   *flexTime `json:"dateTo"`
	Guests   *int      `json:"guests"`
}

func (s *HTTPServer) myBookings(w http.ResponseWriter, r *http.Request) error {
	customer, err := caller(r)
	if err != nil {
		return err
	}
	bookings, err := s.svcs.Bookings.GetCustomerBookings(r.Context(), customer)
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, bookings, listMeta(len(bookings)))
	return nil
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) error {
	customer, err := caller(r)
	if err != nil {
		return err
	}
	var req bookingRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.DateFrom == nil {
		return domain.Validation("dateFrom", "dateFrom is required")
	}
	if req.DateTo == nil {
		return domain.Validation("dateTo", "dateTo is required")
	}
	if req.Guests == nil {
		return domain.Validation("guests", "guests is required")
	}
	booking := &models.Booking{
		VenueID:      req.VenueID,
		CustomerName: customer,
		DateFrom:     req.DateFrom.Time,
		DateTo:       req.DateTo.Time,
		Guests:       *req.Guests,
	}
	if err := s.svcs.Bookings.CreateBooking(r.Context(), booking); err != nil {
		return err
	}
	writeData(w, http.StatusCreated, booking, nil)
	return nil
}

func (s *HTTPServer) getBooking(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	booking, err := s.svcs.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, booking, nil)
	return nil
}

func (s *HTTPServer) updateBooking(w http.ResponseWriter, r *http.Request) error {
	customer, err := caller(r)
	if err != nil {
		return err
	}
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var req bookingRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	patch := models.BookingPatch{
		DateFrom: req.DateFrom.ptr(),
		DateTo:   req.DateTo.ptr(),
		Guests:   req.Guests,
	}
	booking, err := s.svcs.Bookings.UpdateBooking(r.Context(), id, customer, patch)
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, booking, nil)
	return nil
}

func (s *HTTPServer) deleteBooking(w http.ResponseWriter, r *http.Request) error {
	customer, err := caller(r)
	if err != nil {
		return err
	}
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := s.svcs.Bookings.DeleteBooking(r.Context(), id, customer); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// profiles

func (s *HTTPServer) getProfile(w http.ResponseWriter, r *http.Request) error {
	profile, err := s.svcs.Profiles.GetProfile(r.Context(), r.PathValue("name"))
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, profile, nil)
	return nil
}

func (s *HTTPServer) updateProfile(w http.ResponseWriter, r *http.Request) error {
	requester, err := caller(r)
	if err != nil {
		return err
	}
	var req struct {
		VenueManager *bool `json:"venueManager"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.VenueManager == nil {
		return domain.Validation("venueManager", "venueManager is required")
	}
	profile, err := s.svcs.Profiles.SetVenueManager(r.Context(), requester, r.PathValue("name"), *req.VenueManager)
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, profile, nil)
	return nil
}

func (s *HTTPServer) profileBookings(w http.ResponseWriter, r *http.Request) error {
	bookings, err := s.svcs.Profiles.GetProfileBookings(r.Context(), r.PathValue("name"))
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, bookings, listMeta(len(bookings)))
	return nil
}

// auctionProfile opens the caller's own profile on first read so new bidders see their starting credits.
func (s *HTTPServer) auctionProfile(w http.ResponseWriter, r *http.Request) error {
	name := r.PathValue("name")
	var (
		profile *models.Profile
		err     error
	)
	if CallerFrom(r.Context()) == name {
		profile, err = s.svcs.Profiles.Me(r.Context(), name)
	} else {
		profile, err = s.svcs.Profiles.GetProfile(r.Context(), name)
	}
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, profile, nil)
	return nil
}

func (s *HTTPServer) profileBids(w http.ResponseWriter, r *http.Request) error {
	bids, err := s.svcs.Profiles.GetProfileBids(r.Context(), r.PathValue("name"))
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, bids, listMeta(len(bids)))
	return nil
}

// listings

type listingRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EndsAt      *flexTime `json:"endsAt"`
}

func (s *HTTPServer) listListings(w http.ResponseWriter, r *http.Request) error {
	listings, err := s.svcs.Auction.ListListings(r.Context(), queryBool(r, "_active"))
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, listings, listMeta(len(listings)))
	return nil
}

func (s *HTTPServer) createListing(w http.ResponseWriter, r *http.Request) error {
	seller, err := caller(r)
	if err != nil {
		return err
	}
	var req listingRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if req.EndsAt == nil {
		return domain.Validation("endsAt", "endsAt is required")
	}
	listing := &models.Listing{
		Title:       req.Title,
		Description: req.Description,
		SellerName:  seller,
		EndsAt:      req.EndsAt.Time,
	}
	if err := s.svcs.Auction.CreateListing(r.Context(), listing); err != nil {
		return err
	}
	writeData(w, http.StatusCreated, listing, nil)
	return nil
}

func (s *HTTPServer) getListing(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	listing, err := s.svcs.Auction.GetListing(r.Context(), id, queryBool(r, "_bids"))
	if err != nil {
		return err
	}
	writeData(w, http.StatusOK, listing, nil)
	return nil
}

func (s *HTTPServer) deleteListing(w http.ResponseWriter, r *http.Request) error {
	seller, err := caller(r)
	if err != nil {
		return err
	}
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := s.svcs.Auction.DeleteListing(r.Context(), id, seller); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *HTTPServer) placeBid(w http.ResponseWriter, r *http.Request) error {
	bidder, err := caller(r)
	if err != nil {
		return err
	}
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var req struct {
		Amount int `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	bid, profile, err := s.svcs.Auction.PlaceBid(r.Context(), id, bidder, req.Amount)
	if err != nil {
		return err
	}
	writeData(w, http.StatusCreated, bid, Meta{"credits": profile.Credits})
	return nil
}

func (s *HTTPServer) exportBids(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	listing, bids, err := s.svcs.Auction.GetListingBids(r.Context(), id)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	name, err := s.svcs.Exporter.ListingBids(&buf, listing, bids)
	if err != nil {
		return err
	}
	writeFile(w, name, buf.Bytes())
	return nil
}
