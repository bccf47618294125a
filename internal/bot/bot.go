package bot

import (
	"context"
	"fmt"
	"time"

	"practiceapi/internal/config"
	"practiceapi/internal/domain"
	"practiceapi/internal/logging"
	"practiceapi/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Services are the operations reachable from chat commands.
type Services struct {
	Bookings *service.BookingService
	Venues   *service.VenueService
	Auction  *service.AuctionService
	Profiles *service.ProfileService
}

// Bot answers slash commands for venues, bookings and auctions.
type Bot struct {
	tgService domain.TelegramService
	svcs      Services
	throttle  domain.Throttle
	limit     int
	window    time.Duration
	logger    *zerolog.Logger
}

// BotWrapper adapts the bot API client to domain.TelegramService.
type BotWrapper struct {
	*tgbotapi.BotAPI
}

func NewBotWrapper(bot *tgbotapi.BotAPI) *BotWrapper {
	return &BotWrapper{BotAPI: bot}
}

func (w *BotWrapper) GetSelf() tgbotapi.User {
	return w.Self
}

// NewBot builds the command bot. throttle may be nil.
func NewBot(tgService domain.TelegramService, svcs Services, throttle domain.Throttle, cfg config.TelegramConfig, logger *zerolog.Logger) *Bot {
	return &Bot{
		tgService: tgService,
		svcs:      svcs,
		throttle:  throttle,
		limit:     cfg.RateLimitMessages,
		window:    cfg.RateLimitWindow,
		logger:    logging.Component(logger, "bot"),
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.tgService.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Int64("user_id", msg.From.ID).Logger()

	b.withRecovery(&l, func() {
		if !b.allow(updateCtx, &l, msg.From.ID) {
			b.reply(msg.Chat.ID, "You are sending messages too often. Please wait a moment.")
			return
		}
		b.handleMessage(updateCtx, &l, msg)
	})
}

// allow applies the per-user message limit. A throttle failure lets the message through.
func (b *Bot) allow(ctx context.Context, l *zerolog.Logger, userID int64) bool {
	if b.throttle == nil || b.limit <= 0 {
		return true
	}
	allowed, err := b.throttle.Allow(ctx, fmt.Sprintf("tg:%d", userID), b.limit, b.window)
	if err != nil {
		l.Error().Err(err).Msg("Rate limit check failed")
		return true
	}
	if !allowed {
		l.Warn().Msg("Rate limit exceeded")
	}
	return allowed
}

func (b *Bot) withRecovery(l *zerolog.Logger, handler func()) {
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.tgService.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}
