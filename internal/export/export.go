package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"practiceapi/internal/logging"
	"practiceapi/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	occupancySheet = "Occupancy"
	bookingsSheet  = "Bookings"
	bidsSheet      = "Bids"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Exporter builds XLSX reports and keeps a copy of each in dir when dir is set.
type Exporter struct {
	dir    string
	now    func() time.Time
	logger *zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{dir: dir, now: time.Now, logger: logging.Component(logger, "export")}
}

// VenueOccupancy writes a per-day occupancy grid for the venue followed by its bookings.
func (e *Exporter) VenueOccupancy(w io.Writer, venue *models.Venue, occupancy []*models.Occupancy, bookings []*models.Booking) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeOccupancy(f, venue, occupancy); err != nil {
		return "", err
	}
	if err := writeBookings(f, bookings); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	name := fmt.Sprintf("venue_%d_%s.xlsx", venue.ID, e.now().Format("20060102_150405"))
	return name, e.finish(f, w, name)
}

// ListingBids writes the bid history of a listing in placement order with the winning bid marked.
func (e *Exporter) ListingBids(w io.Writer, listing *models.Listing, bids []*models.Bid) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeBids(f, listing, bids); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	name := fmt.Sprintf("listing_%d_bids_%s.xlsx", listing.ID, e.now().Format("20060102_150405"))
	return name, e.finish(f, w, name)
}

func (e *Exporter) finish(f *excelize.File, w io.Writer, name string) error {
	if e.dir != "" {
		if err := os.MkdirAll(e.dir, 0o755); err != nil {
			return fmt.Errorf("error creating export directory: %w", err)
		}
		path := filepath.Join(e.dir, name)
		if err := f.SaveAs(path); err != nil {
			return fmt.Errorf("error saving file: %w", err)
		}
		e.logger.Info().Str("file_path", path).Msg("Excel file created")
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func headerStyle(f *excelize.File, color string) int {
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	return style
}

func writeHeader(f *excelize.File, sheet string, row int, headers []string, color string) error {
	style := headerStyle(f, color)
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}
	return nil
}

func writeOccupancy(f *excelize.File, venue *models.Venue, occupancy []*models.Occupancy) error {
	index, err := f.NewSheet(occupancySheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(occupancySheet, "A1", fmt.Sprintf("%s (max %d guests)", venue.Name, venue.MaxGuests))
	_ = f.MergeCell(occupancySheet, "A1", "C1")
	title, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(occupancySheet, "A1", "A1", title)

	if err := writeHeader(f, occupancySheet, 2, []string{"Date", "Guests", "Available"}, "#DDEBF7"); err != nil {
		return err
	}

	full, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})
	for i, o := range occupancy {
		row := i + 3
		_ = f.SetCellValue(occupancySheet, fmt.Sprintf("A%d", row), o.Date.Format(models.DateLayout))
		_ = f.SetCellValue(occupancySheet, fmt.Sprintf("B%d", row), o.Guests)
		_ = f.SetCellValue(occupancySheet, fmt.Sprintf("C%d", row), o.Available)
		if o.Available == 0 {
			_ = f.SetCellStyle(occupancySheet, fmt.Sprintf("A%d", row), fmt.Sprintf("C%d", row), full)
		}
	}
	_ = f.SetColWidth(occupancySheet, "A", "C", 16)
	return nil
}

func writeBookings(f *excelize.File, bookings []*models.Booking) error {
	if _, err := f.NewSheet(bookingsSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeHeader(f, bookingsSheet, 1, []string{"ID", "Customer", "From", "To", "Guests"}, "#E2EFDA"); err != nil {
		return err
	}
	for i, b := range bookings {
		row := i + 2
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("A%d", row), b.ID)
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("B%d", row), b.CustomerName)
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("C%d", row), b.DateFrom.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("D%d", row), b.DateTo.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("E%d", row), b.Guests)
	}
	_ = f.SetColWidth(bookingsSheet, "B", "D", 24)
	return nil
}

func writeBids(f *excelize.File, listing *models.Listing, bids []*models.Bid) error {
	index, err := f.NewSheet(bidsSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(bidsSheet, "A1", fmt.Sprintf("%s (ends %s)", listing.Title, listing.EndsAt.UTC().Format(time.RFC3339)))
	_ = f.MergeCell(bidsSheet, "A1", "E1")

	if err := writeHeader(f, bidsSheet, 2, []string{"ID", "Bidder", "Amount", "Placed", "Winner"}, "#DDEBF7"); err != nil {
		return err
	}

	winner, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#C6EFCE"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	marked := false
	for i, b := range bids {
		row := i + 3
		_ = f.SetCellValue(bidsSheet, fmt.Sprintf("A%d", row), b.ID)
		_ = f.SetCellValue(bidsSheet, fmt.Sprintf("B%d", row), b.BidderName)
		_ = f.SetCellValue(bidsSheet, fmt.Sprintf("C%d", row), b.Amount)
		_ = f.SetCellValue(bidsSheet, fmt.Sprintf("D%d", row), b.CreatedAt.UTC().Format(time.RFC3339Nano))
		// only the first bid of the winner at the winning amount is marked
		if !marked && listing.WinnerName != nil && *listing.WinnerName == b.BidderName && isTop(b, bids) {
			_ = f.SetCellValue(bidsSheet, fmt.Sprintf("E%d", row), "yes")
			_ = f.SetCellStyle(bidsSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("E%d", row), winner)
			marked = true
		}
	}
	_ = f.SetColWidth(bidsSheet, "B", "B", 20)
	_ = f.SetColWidth(bidsSheet, "D", "D", 34)
	return nil
}

func isTop(b *models.Bid, bids []*models.Bid) bool {
	for _, other := range bids {
		if other.Amount > b.Amount {
			return false
		}
	}
	return true
}
