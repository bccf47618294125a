package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"practiceapi/internal/domain"
	"practiceapi/internal/events"
	"practiceapi/internal/logging"
	"practiceapi/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// NotificationService forwards domain events as Telegram messages to a fixed set of chats.
type NotificationService struct {
	bot     domain.TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewNotificationService(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *NotificationService {
	return &NotificationService{
		bot:     bot,
		chatIDs: chatIDs,
		logger:  logging.Component(logger, "notifications"),
	}
}

// Attach subscribes the service to every event type on bus.
func (s *NotificationService) Attach(bus *events.EventBus) {
	bus.SubscribeAll(s.Handle)
}

func (s *NotificationService) Handle(event *events.Event) error {
	text, err := formatEvent(event)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	var errs []error
	for _, chatID := range s.chatIDs {
		if _, err := s.SendMessage(chatID, text); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Str("event_type", event.Type).Msg("telegram send failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *NotificationService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	return s.bot.Send(msg)
}

func formatEvent(event *events.Event) (string, error) {
	switch event.Type {
	case events.EventBookingCreated, events.EventBookingUpdated, events.EventBookingDeleted:
		var p events.BookingEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("decode %s: %w", event.Type, err)
		}
		verb := map[string]string{
			events.EventBookingCreated: "created",
			events.EventBookingUpdated: "updated",
			events.EventBookingDeleted: "cancelled",
		}[event.Type]
		return fmt.Sprintf("Booking #%d %s: venue #%d, %s, %s to %s, %d guest(s)",
			p.BookingID, verb, p.VenueID, p.CustomerName,
			p.DateFrom.Format(models.DateLayout), p.DateTo.Format(models.DateLayout), p.Guests), nil

	case events.EventBidPlaced:
		var p events.BidEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("decode %s: %w", event.Type, err)
		}
		return fmt.Sprintf("New bid on listing #%d: %s bid %d credits", p.ListingID, p.BidderName, p.Amount), nil

	case events.EventListingSettled:
		var p events.ListingSettledPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("decode %s: %w", event.Type, err)
		}
		return fmt.Sprintf("Listing #%d %q closed: %s won with %d credits (%d bids)",
			p.ListingID, p.Title, p.WinnerName, p.Amount, p.BidCount), nil
	}
	return "", nil
}
