package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated = "booking.created"
	EventBookingUpdated = "booking.updated"
	EventBookingDeleted = "booking.deleted"
	EventBidPlaced      = "bid.placed"
	EventListingSettled = "listing.settled"
)

// AllTypes lists every event type the services publish.
var AllTypes = []string{
	EventBookingCreated,
	EventBookingUpdated,
	EventBookingDeleted,
	EventBidPlaced,
	EventListingSettled,
}

// BookingEventPayload describes the booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID    int64     `json:"booking_id"`
	VenueID      int64     `json:"venue_id"`
	CustomerName string    `json:"customer_name"`
	DateFrom     time.Time `json:"date_from"`
	DateTo       time.Time `json:"date_to"`
	Guests       int       `json:"guests"`
	ChangedBy    string    `json:"changed_by,omitempty"`
}

func (p BookingEventPayload) EventKey() string { return keyOf("booking", p.BookingID) }

// BidEventPayload is published after a bid and its debit are committed.
type BidEventPayload struct {
	BidID      int64     `json:"bid_id"`
	ListingID  int64     `json:"listing_id"`
	BidderName string    `json:"bidder_name"`
	Amount     int       `json:"amount"`
	Credits    int       `json:"credits_left"`
	CreatedAt  time.Time `json:"created_at"`
}

func (p BidEventPayload) EventKey() string { return keyOf("listing", p.ListingID) }

// ListingSettledPayload is published once, when a closed listing's winner is first stored.
type ListingSettledPayload struct {
	ListingID  int64     `json:"listing_id"`
	Title      string    `json:"title"`
	SellerName string    `json:"seller_name"`
	WinnerName string    `json:"winner_name"`
	Amount     int       `json:"amount"`
	BidCount   int       `json:"bid_count"`
	EndsAt     time.Time `json:"ends_at"`
}

func (p ListingSettledPayload) EventKey() string { return keyOf("listing", p.ListingID) }

// Keyed payloads pick the partition key of the published event.
type Keyed interface {
	EventKey() string
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	onError     func(event *Event, err error)
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError sets a callback for handler failures. Handlers failing never stop delivery.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every type in AllTypes.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range AllTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	event := Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}
	if k, ok := payload.(Keyed); ok {
		event.Key = k.EventKey()
	}
	return event, nil
}
