package models

import "time"

// Booking reserves a venue for the half-open interval [DateFrom, DateTo).
type Booking struct {
	ID           int64     `json:"id"`
	VenueID      int64     `json:"venueId"`
	CustomerName string    `json:"customerName"`
	DateFrom     time.Time `json:"dateFrom"`
	DateTo       time.Time `json:"dateTo"`
	Guests       int       `json:"guests"`
	CreatedAt    time.Time `json:"created"`
	UpdatedAt    time.Time `json:"updated"`
}

// BookingPatch carries the fields of an update; nil fields keep their stored value.
type BookingPatch struct {
	DateFrom *time.Time `json:"dateFrom,omitempty"`
	DateTo   *time.Time `json:"dateTo,omitempty"`
	Guests   *int       `json:"guests,omitempty"`
}

func (p BookingPatch) IsEmpty() bool {
	return p.DateFrom == nil && p.DateTo == nil && p.Guests == nil
}

// Apply returns a copy of b with the patch merged in.
func (p BookingPatch) Apply(b Booking) Booking {
	if p.DateFrom != nil {
		b.DateFrom = *p.DateFrom
	}
	if p.DateTo != nil {
		b.DateTo = *p.DateTo
	}
	if p.Guests != nil {
		b.Guests = *p.Guests
	}
	return b
}

// Occupancy is the number of guests booked at a venue on a single day.
type Occupancy struct {
	Date      time.Time `json:"date"`
	VenueID   int64     `json:"venueId"`
	Guests    int       `json:"guests"`
	Available int       `json:"available"`
}
