package domain

import (
	"sort"
	"time"

	"practiceapi/internal/models"
)

// Overlaps reports whether [aFrom, aTo) and [bFrom, bTo) share at least one instant.
func Overlaps(aFrom, aTo, bFrom, bTo time.Time) bool {
	return aFrom.Before(bTo) && bFrom.Before(aTo)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Admit    bool   `json:"admit"`
	Reason   string `json:"reason,omitempty"`
	Occupied int    `json:"occupied"`
	Capacity int    `json:"capacity"`
}

// CheckCapacity decides whether a candidate booking of guests over [from, to) fits the venue,
// given the bookings that already overlap that interval.
//
// In sum mode the guests of every overlapping booking count against the venue, even when those
// bookings do not overlap one another. Sweep mode uses the peak concurrent occupancy instead.
func CheckCapacity(mode string, venue *models.Venue, overlapping []*models.Booking, from, to time.Time, guests int) Decision {
	d := Decision{Capacity: venue.MaxGuests}
	if guests > venue.MaxGuests {
		d.Reason = "guests exceed the maximum guests for this venue"
		return d
	}

	if mode == models.CapacityModeSweep {
		d.Occupied = PeakOccupancy(overlapping, from, to)
	} else {
		for _, b := range overlapping {
			if Overlaps(b.DateFrom, b.DateTo, from, to) {
				d.Occupied += b.Guests
			}
		}
	}

	if d.Occupied+guests > venue.MaxGuests {
		d.Reason = "capacity exceeded"
		return d
	}
	d.Admit = true
	return d
}

// PeakOccupancy returns the maximum number of guests present at any instant of [from, to).
func PeakOccupancy(bookings []*models.Booking, from, to time.Time) int {
	type edge struct {
		at    time.Time
		delta int
	}

	edges := make([]edge, 0, 2*len(bookings))
	for _, b := range bookings {
		if !Overlaps(b.DateFrom, b.DateTo, from, to) {
			continue
		}
		start, end := b.DateFrom, b.DateTo
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		edges = append(edges, edge{start, b.Guests}, edge{end, -b.Guests})
	}

	// departures sort before arrivals at the same instant: intervals are half-open
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].at.Equal(edges[j].at) {
			return edges[i].delta < edges[j].delta
		}
		return edges[i].at.Before(edges[j].at)
	})

	peak, cur := 0, 0
	for _, e := range edges {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}

// DailyOccupancy spreads bookings over days calendar days starting at start.
func DailyOccupancy(venue *models.Venue, bookings []*models.Booking, start time.Time, days int) []*models.Occupancy {
	if days <= 0 {
		return nil
	}
	out := make([]*models.Occupancy, 0, days)
	for i := 0; i < days; i++ {
		dayFrom := start.AddDate(0, 0, i)
		dayTo := dayFrom.AddDate(0, 0, 1)
		guests := 0
		for _, b := range bookings {
			if Overlaps(b.DateFrom, b.DateTo, dayFrom, dayTo) {
				guests += b.Guests
			}
		}
		available := venue.MaxGuests - guests
		if available < 0 {
			available = 0
		}
		out = append(out, &models.Occupancy{
			Date:      dayFrom,
			VenueID:   venue.ID,
			Guests:    guests,
			Available: available,
		})
	}
	return out
}
