package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/uvolbolmasin/boxbot/internal/geo"
	"github.com/uvolbolmasin/boxbot/internal/models"
)

// handleStart restarts registration from scratch, even mid-flow.
func (b *Bot) handleStart(ctx context.Context, ev *Event, s *models.Session) {
	s.Reset(models.StateAwaitingName)
	b.send(ctx, ev.ChatID, msgWelcome, removeKeyboard())
}

func (b *Bot) handleCancel(ctx context.Context, ev *Event, s *models.Session) {
	s.Reset(models.StateIdle)
	b.send(ctx, ev.ChatID, msgCancelled, removeKeyboard())
}

func (b *Bot) handleName(ctx context.Context, ev *Event, s *models.Session) {
	s.User.Name = models.TruncateName(ev.Text, models.MaxDisplayName)
	s.State = models.StateAwaitingPhone
	b.send(ctx, ev.ChatID, msgAskPhone, contactKeyboard())
}

func (b *Bot) handleContact(ctx context.Context, ev *Event, s *models.Session) {
	s.User.Phone = ev.Phone
	s.State = models.StateAwaitingLocation
	b.send(ctx, ev.ChatID, msgAskLocation, locationKeyboard())
}

// handleLocation completes registration and shows nearby offers. If the
// user cannot be saved the session stays in AwaitingLocation so sharing the
// location again retries.
func (b *Bot) handleLocation(ctx context.Context, ev *Event, s *models.Session) {
	if !models.ValidCoordinates(ev.Lat, ev.Lon) {
		b.send(ctx, ev.ChatID, msgInvalidLocation, nil)
		return
	}

	user := models.User{
		ID:    ev.UserID,
		Name:  s.User.Name,
		Phone: s.User.Phone,
		Lat:   ev.Lat,
		Lon:   ev.Lon,
	}
	if err := b.users.UpsertUser(ctx, user); err != nil {
		b.storageError(ctx, ev, "upsert user", err)
		return
	}

	s.Reset(models.StateIdle)
	b.logger(ctx).Info("user registered")
	b.send(ctx, ev.ChatID, msgRegistered, removeKeyboard())
	b.mirror.RecordUser(user, ev.Username)

	b.showOffers(ctx, ev, geo.Point{Lat: ev.Lat, Lon: ev.Lon})
}

// handleOffers lists nearby boxes for an already registered user.
func (b *Bot) handleOffers(ctx context.Context, ev *Event, _ *models.Session) {
	user, err := b.users.GetUser(ctx, ev.UserID)
	if isNotFound(err) {
		b.send(ctx, ev.ChatID, msgNotRegistered, nil)
		return
	}
	if err != nil {
		b.storageError(ctx, ev, "get user", err)
		return
	}
	b.showOffers(ctx, ev, geo.Point{Lat: user.Lat, Lon: user.Lon})
}

func (b *Bot) showOffers(ctx context.Context, ev *Event, at geo.Point) {
	rests, err := b.inventory.ListActive(ctx)
	if err != nil {
		b.storageError(ctx, ev, "list active restaurants", err)
		return
	}

	nearby := geo.RankNearby(at, rests, b.cfg.RadiusKm)
	if len(nearby) == 0 {
		b.send(ctx, ev.ChatID, msgNoOffers, nil)
		return
	}
	b.send(ctx, ev.ChatID, offersText(b.cfg.BoxPrice, nearby), offersKeyboard(nearby))
}

// handleBook reserves one box. It works from any state and leaves the
// session alone: the reservation is shown by editing the offers message.
func (b *Bot) handleBook(ctx context.Context, ev *Event, _ *models.Session) {
	id := ev.Action.ID
	rest, err := b.inventory.DecrementIfAvailable(ctx, id)
	switch {
	case errors.Is(err, models.ErrUnavailable):
		b.logger(ctx).Info("booking lost, no boxes left", zap.Int64("restaurant_id", id))
		b.alert(ctx, ev, msgSoldOut)
		b.dropOffer(ctx, ev)
		return
	case err != nil:
		b.storageError(ctx, ev, "reserve box", err)
		return
	}

	code, err := b.codes(b.cfg.CodeLength)
	if err != nil {
		// The box is already taken from stock; the user still needs a code.
		b.logger(ctx).Error("failed to generate reservation code", zap.Error(err))
		code = fallbackCode(ev.UserID, b.cfg.CodeLength)
	}

	b.logger(ctx).Info("box reserved",
		zap.Int64("restaurant_id", rest.ID), zap.Int("boxes_left", rest.Boxes))
	b.show(ctx, ev, reservedText(rest, code), nil)
}

// dropOffer removes the sold out restaurant from the offers message.
func (b *Bot) dropOffer(ctx context.Context, ev *Event) {
	if ev.MessageID == 0 || ev.Markup == nil {
		return
	}

	markup := withoutButton(*ev.Markup, ev.Token)
	if len(markup.InlineKeyboard) == 0 {
		b.request(ctx, tgbotapi.NewEditMessageText(ev.ChatID, ev.MessageID, msgAllSoldOut))
		return
	}
	b.request(ctx, tgbotapi.NewEditMessageReplyMarkup(ev.ChatID, ev.MessageID, markup))
}
