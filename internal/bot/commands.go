package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"practiceapi/internal/domain"
	"practiceapi/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const helpText = `Commands:
/venues - list venues
/availability <venue> <from> <to> [guests] - check a stay
/book <venue> <from> <to> <guests> - book a stay
/mybookings - your bookings
/cancel <booking> - cancel a booking
/listings - open auctions
/listing <id> - auction details
/bid <listing> <amount> - place a bid
/credits - your credit balance

Dates are YYYY-MM-DD.`

// usageError is shown to the user verbatim.
type usageError string

func (e usageError) Error() string { return string(e) }

type command func(ctx context.Context, user string, args []string) (string, error)

func (b *Bot) commands() map[string]command {
	return map[string]command{
		"venues":       b.cmdVenues,
		"availability": b.cmdAvailability,
		"book":         b.cmdBook,
		"mybookings":   b.cmdMyBookings,
		"cancel":       b.cmdCancel,
		"listings":     b.cmdListings,
		"listing":      b.cmdListing,
		"bid":          b.cmdBid,
		"credits":      b.cmdCredits,
	}
}

func (b *Bot) handleMessage(ctx context.Context, l *zerolog.Logger, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		b.reply(msg.Chat.ID, "Send /help for the list of commands.")
		return
	}

	name := msg.Command()
	if name == "start" || name == "help" {
		b.reply(msg.Chat.ID, helpText)
		return
	}

	cmd, ok := b.commands()[name]
	if !ok {
		b.reply(msg.Chat.ID, "Unknown command. Send /help for the list of commands.")
		return
	}

	text, err := cmd(ctx, profileName(msg.From), strings.Fields(msg.CommandArguments()))
	if err != nil {
		text = describeError(l, name, err)
	}
	b.reply(msg.Chat.ID, text)
}

// profileName maps a chat user onto a profile: the username, or tg<id> when there is none.
func profileName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return fmt.Sprintf("tg%d", u.ID)
}

func describeError(l *zerolog.Logger, cmd string, err error) string {
	if u, ok := err.(usageError); ok {
		return "Usage: " + string(u)
	}
	if de, ok := domain.AsError(err); ok && de.Kind != domain.KindInternal {
		return de.Message
	}
	l.Error().Err(err).Str("command", cmd).Msg("command failed")
	return "Something went wrong, please try again later."
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	return id, err == nil && id > 0
}

func parseDay(raw string) (time.Time, bool) {
	t, err := time.ParseInLocation(models.DateLayout, raw, time.UTC)
	return t, err == nil
}

// stayArgs parses <venue> <from> <to> [guests].
func stayArgs(args []string, usage string, guestsRequired bool) (venueID int64, from, to time.Time, guests int, err error) {
	if len(args) < 3 || (guestsRequired && len(args) < 4) {
		return 0, from, to, 0, usageError(usage)
	}
	var ok bool
	if venueID, ok = parseID(args[0]); !ok {
		return 0, from, to, 0, usageError(usage)
	}
	if from, ok = parseDay(args[1]); !ok {
		return 0, from, to, 0, usageError(usage)
	}
	if to, ok = parseDay(args[2]); !ok {
		return 0, from, to, 0, usageError(usage)
	}
	guests = 1
	if len(args) > 3 {
		if guests, err = strconv.Atoi(args[3]); err != nil {
			return 0, from, to, 0, usageError(usage)
		}
	}
	return venueID, from, to, guests, nil
}

func (b *Bot) cmdVenues(ctx context.Context, _ string, _ []string) (string, error) {
	venues, err := b.svcs.Venues.GetVenues(ctx)
	if err != nil {
		return "", err
	}
	if len(venues) == 0 {
		return "No venues yet.", nil
	}
	var sb strings.Builder
	sb.WriteString("Venues:\n")
	for _, v := range venues {
		fmt.Fprintf(&sb, "#%d %s (up to %d guests, %.2f per night)\n", v.ID, v.Name, v.MaxGuests, v.Price)
	}
	return sb.String(), nil
}

func (b *Bot) cmdAvailability(ctx context.Context, _ string, args []string) (string, error) {
	venueID, from, to, guests, err := stayArgs(args, "/availability <venue> <from> <to> [guests]", false)
	if err != nil {
		return "", err
	}
	d, err := b.svcs.Bookings.CheckAvailability(ctx, venueID, from, to, guests)
	if err != nil {
		return "", err
	}
	period := fmt.Sprintf("%s to %s", from.Format(models.DateLayout), to.Format(models.DateLayout))
	if d.Admit {
		return fmt.Sprintf("Venue #%d can take %d guests from %s (%d of %d places taken).", venueID, guests, period, d.Occupied, d.Capacity), nil
	}
	return fmt.Sprintf("Venue #%d cannot take %d guests from %s: %s (%d of %d places taken).", venueID, guests, period, d.Reason, d.Occupied, d.Capacity), nil
}

func (b *Bot) cmdBook(ctx context.Context, user string, args []string) (string, error) {
	venueID, from, to, guests, err := stayArgs(args, "/book <venue> <from> <to> <guests>", true)
	if err != nil {
		return "", err
	}
	booking := &models.Booking{VenueID: venueID, CustomerName: user, DateFrom: from, DateTo: to, Guests: guests}
	if err := b.svcs.Bookings.CreateBooking(ctx, booking); err != nil {
		return "", err
	}
	return fmt.Sprintf("Booking #%d confirmed: venue #%d, %s to %s, %d guests.",
		booking.ID, venueID, from.Format(models.DateLayout), to.Format(models.DateLayout), guests), nil
}

func (b *Bot) cmdMyBookings(ctx context.Context, user string, _ []string) (string, error) {
	bookings, err := b.svcs.Bookings.GetCustomerBookings(ctx, user)
	if err != nil {
		return "", err
	}
	if len(bookings) == 0 {
		return "You have no bookings.", nil
	}
	var sb strings.Builder
	sb.WriteString("Your bookings:\n")
	for _, bk := range bookings {
		fmt.Fprintf(&sb, "#%d venue #%d, %s to %s, %d guests\n",
			bk.ID, bk.VenueID, bk.DateFrom.UTC().Format(models.DateLayout), bk.DateTo.UTC().Format(models.DateLayout), bk.Guests)
	}
	return sb.String(), nil
}

func (b *Bot) cmdCancel(ctx context.Context, user string, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError("/cancel <booking>")
	}
	id, ok := parseID(args[0])
	if !ok {
		return "", usageError("/cancel <booking>")
	}
	if err := b.svcs.Bookings.DeleteBooking(ctx, id, user); err != nil {
		return "", err
	}
	return fmt.Sprintf("Booking #%d cancelled.", id), nil
}

func (b *Bot) cmdListings(ctx context.Context, _ string, _ []string) (string, error) {
	listings, err := b.svcs.Auction.ListListings(ctx, true)
	if err != nil {
		return "", err
	}
	if len(listings) == 0 {
		return "No open auctions.", nil
	}
	var sb strings.Builder
	sb.WriteString("Open auctions:\n")
	for _, l := range listings {
		fmt.Fprintf(&sb, "#%d %s, %d bids, ends %s\n", l.ID, l.Title, l.BidCount, l.EndsAt.UTC().Format(time.RFC3339))
	}
	return sb.String(), nil
}

func (b *Bot) cmdListing(ctx context.Context, _ string, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError("/listing <id>")
	}
	id, ok := parseID(args[0])
	if !ok {
		return "", usageError("/listing <id>")
	}
	l, err := b.svcs.Auction.GetListing(ctx, id, false)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("#%d %s by %s\nEnds %s, %d bids", l.ID, l.Title, l.SellerName, l.EndsAt.UTC().Format(time.RFC3339), l.BidCount)
	if l.WinnerName != nil {
		text += "\nWon by " + *l.WinnerName
	}
	return text, nil
}

func (b *Bot) cmdBid(ctx context.Context, user string, args []string) (string, error) {
	if len(args) != 2 {
		return "", usageError("/bid <listing> <amount>")
	}
	id, ok := parseID(args[0])
	if !ok {
		return "", usageError("/bid <listing> <amount>")
	}
	amount, err := strconv.Atoi(args[1])
	if err != nil {
		return "", usageError("/bid <listing> <amount>")
	}
	_, profile, err := b.svcs.Auction.PlaceBid(ctx, id, user, amount)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Bid of %d credits placed on #%d. Credits left: %d.", amount, id, profile.Credits), nil
}

func (b *Bot) cmdCredits(ctx context.Context, user string, _ []string) (string, error) {
	p, err := b.svcs.Profiles.Me(ctx, user)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("You have %d credits.", p.Credits), nil
}
