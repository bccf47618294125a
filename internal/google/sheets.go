package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"practiceapi/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	bookingsSheet = "Bookings"
	bidsSheet     = "Bids"
	// bookings occupy columns A..H
	bookingsLastCol = "H"
	timestampLayout = "2006-01-02 15:04:05"
)

// ErrRowNotFound is returned when a booking has no row in the sheet yet.
var ErrRowNotFound = errors.New("booking row not found")

// SheetsService mirrors bookings and bids into one spreadsheet.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newSheetsService(srv, spreadsheetID), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID string) *SheetsService {
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[int64]int),
	}
}

// RefreshCache warms the row cache now and then every interval until ctx is done.
func (s *SheetsService) RefreshCache(ctx context.Context, interval time.Duration) {
	warm := func() {
		wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		_ = s.WarmUpCache(wctx)
	}
	warm()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			warm()
		}
	}
}

// TestConnection reads the first header cell of the bookings tab.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of a credentials file, for sharing the sheet.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}

	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}

	return creds.ClientEmail, nil
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)

	for i, row := range resp.Values {
		if id := cellID(row); id > 0 {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// AppendBooking adds a booking row and remembers where it landed.
func (s *SheetsService) AppendBooking(ctx context.Context, booking *models.Booking) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, bookingsSheet+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// UpsertBooking updates an existing booking row or appends a new one if not found.
func (s *SheetsService) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return fmt.Errorf("booking is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.AppendBooking(ctx, booking)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", bookingsSheet, rowIdx, bookingsLastCol, rowIdx)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// DeleteBookingRow clears the row that corresponds to bookingID. A missing row is not an error.
func (s *SheetsService) DeleteBookingRow(ctx context.Context, bookingID int64) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if errors.Is(err, ErrRowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", bookingsSheet, rowIdx, bookingsLastCol, rowIdx)
	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, rangeData, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err == nil {
		s.deleteCacheRow(bookingID)
	}
	return err
}

// AppendBid adds a bid row. Bids are never edited, so there is no row cache for them.
func (s *SheetsService) AppendBid(ctx context.Context, bid *models.Bid) error {
	if bid == nil {
		return fmt.Errorf("bid is nil")
	}
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{{
			bid.ID,
			bid.ListingID,
			bid.BidderName,
			bid.Amount,
			bid.CreatedAt.Format(timestampLayout),
		}},
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, bidsSheet+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// FindBookingRow locates row index (1-based) for booking_id in column A with cache.
func (s *SheetsService) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if bookingID == 0 {
		return 0, fmt.Errorf("booking id is required")
	}

	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if cellID(row) == bookingID {
			rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
			s.setCachedRow(bookingID, rowIdx)
			return rowIdx, nil
		}
	}

	return 0, ErrRowNotFound
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCacheRow(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func bookingRowValues(booking *models.Booking) []interface{} {
	return []interface{}{
		booking.ID,
		booking.VenueID,
		booking.CustomerName,
		booking.DateFrom.Format(models.DateLayout),
		booking.DateTo.Format(models.DateLayout),
		booking.Guests,
		booking.CreatedAt.Format(timestampLayout),
		booking.UpdatedAt.Format(timestampLayout),
	}
}

// cellID reads an id from the first cell of a row, whether the API returned it as number or text.
func cellID(row []interface{}) int64 {
	if len(row) == 0 {
		return 0
	}
	switch v := row[0].(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id
	}
	return 0
}

// rowFromRange extracts the first row number of an A1 range such as "Bookings!A10:H10".
func rowFromRange(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}
