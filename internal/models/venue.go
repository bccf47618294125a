package models

import "time"

type Venue struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Price       float64    `json:"price"`
	MaxGuests   int        `json:"maxGuests"`
	OwnerName   string     `json:"owner"`
	CreatedAt   time.Time  `json:"created"`
	UpdatedAt   time.Time  `json:"updated"`
	Bookings    []*Booking `json:"bookings,omitempty"`
}
