package models

import "time"

type Profile struct {
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	Credits      int       `json:"credits"`
	VenueManager bool      `json:"venueManager"`
	CreatedAt    time.Time `json:"created"`
	UpdatedAt    time.Time `json:"updated"`
}
