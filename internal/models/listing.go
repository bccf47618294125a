package models

import "time"

type Listing struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SellerName  string    `json:"seller"`
	EndsAt      time.Time `json:"endsAt"`
	WinnerName  *string   `json:"winner,omitempty"`
	BidCount    int       `json:"bidCount"`
	CreatedAt   time.Time `json:"created"`
	UpdatedAt   time.Time `json:"updated"`
	Bids        []*Bid    `json:"bids,omitempty"`
}

// Closed reports whether bidding has ended at now.
func (l *Listing) Closed(now time.Time) bool {
	return !now.Before(l.EndsAt)
}

// Bid is append-only; it is never updated once stored.
type Bid struct {
	ID         int64     `json:"id"`
	ListingID  int64     `json:"listingId"`
	BidderName string    `json:"bidderName"`
	Amount     int       `json:"amount"`
	CreatedAt  time.Time `json:"created"`
}
