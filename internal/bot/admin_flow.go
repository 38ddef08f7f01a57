package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/uvolbolmasin/boxbot/internal/models"
)

func (b *Bot) handleAdminPanel(ctx context.Context, ev *Event, s *models.Session) {
	s.Reset(models.StateAdminMenu)
	b.renderMenu(ctx, ev)
}

// renderMenu shows every restaurant with its box count.
func (b *Bot) renderMenu(ctx context.Context, ev *Event) {
	rests, err := b.inventory.ListAll(ctx)
	if err != nil {
		b.storageError(ctx, ev, "list restaurants", err)
		return
	}

	users, err := b.users.CountUsers(ctx)
	if err != nil {
		b.logger(ctx).Warn("failed to count users", zap.Error(err))
		users = -1
	}

	markup := adminMenuKeyboard(rests)
	b.show(ctx, ev, adminMenuText(rests, users), &markup)
}

func (b *Bot) renderRestaurant(ctx context.Context, ev *Event, rest *models.Restaurant) {
	markup := restaurantKeyboard(rest.ID)
	b.show(ctx, ev, restaurantText(rest), &markup)
}

// backToMenu discards scratch data and shows the menu as a new message,
// clearing any reply keyboard left by a text step.
func (b *Bot) backToMenu(ctx context.Context, ev *Event, s *models.Session, notice string) {
	s.Reset(models.StateAdminMenu)
	if notice != "" {
		b.send(ctx, ev.ChatID, notice, removeKeyboard())
	}
	b.renderMenu(ctx, ev)
}

// adminFailure handles a store error in the admin flow: stale references
// get "not found", anything else a generic error. Either way the admin is
// returned to the menu.
func (b *Bot) adminFailure(ctx context.Context, ev *Event, s *models.Session, op string, err error) {
	if isNotFound(err) {
		b.logger(ctx).Info("restaurant not found", zap.String("op", op))
		b.alert(ctx, ev, msgRestaurantMissing)
	} else {
		b.storageError(ctx, ev, op, err)
	}
	s.Reset(models.StateAdminMenu)
	b.renderMenu(ctx, ev)
}

func (b *Bot) handleAdminCancel(ctx context.Context, ev *Event, s *models.Session) {
	if ev.Kind == EventButton {
		s.Reset(models.StateAdminMenu)
		b.renderMenu(ctx, ev)
		return
	}
	b.backToMenu(ctx, ev, s, msgCancelled)
}

func (b *Bot) handleBackToMenu(ctx context.Context, ev *Event, s *models.Session) {
	s.Reset(models.StateAdminMenu)
	b.renderMenu(ctx, ev)
}

// Adding a restaurant: name, then location.

func (b *Bot) handleAddRestaurant(ctx context.Context, ev *Event, s *models.Session) {
	s.Reset(models.StateAddingRestName)
	b.answer(ctx, ev, "")
	b.send(ctx, ev.ChatID, msgAskRestName, cancelKeyboard())
}

func (b *Bot) handleRestaurantName(ctx context.Context, ev *Event, s *models.Session) {
	name, err := models.NormalizeRestaurantName(ev.Text)
	if err != nil {
		b.send(ctx, ev.ChatID, msgBadRestName, nil)
		return
	}

	s.Admin.PendingName = name
	s.State = models.StateAddingRestLocation
	b.send(ctx, ev.ChatID, msgAskRestLocation, adminLocationKeyboard())
}

func (b *Bot) handleRestaurantLocation(ctx context.Context, ev *Event, s *models.Session) {
	if !models.ValidCoordinates(ev.Lat, ev.Lon) {
		b.send(ctx, ev.ChatID, msgInvalidLocation, nil)
		return
	}

	rest, err := b.inventory.InsertRestaurant(ctx, s.Admin.PendingName, ev.Lat, ev.Lon, b.cfg.DefaultBoxes)
	if err != nil {
		b.storageError(ctx, ev, "insert restaurant", err)
		s.Reset(models.StateAdminMenu)
		b.send(ctx, ev.ChatID, msgCancelled, removeKeyboard())
		b.renderMenu(ctx, ev)
		return
	}

	b.logger(ctx).Info("restaurant added", zap.Int64("restaurant_id", rest.ID))
	b.mirror.RecordRestaurant(*rest)
	b.backToMenu(ctx, ev, s, fmt.Sprintf("✅ Restaurant «%s» added with %d boxes.", rest.Name, rest.Boxes))
}

// handleAddCommand is the one-line form: /add <name> <lat> <lon>.
func (b *Bot) handleAddCommand(ctx context.Context, ev *Event, _ *models.Session) {
	name, lat, lon, err := parseAddArgs(ev.Args)
	if err != nil {
		b.send(ctx, ev.ChatID, msgAddUsage, nil)
		return
	}

	rest, err := b.inventory.InsertRestaurant(ctx, name, lat, lon, b.cfg.DefaultBoxes)
	if errors.Is(err, models.ErrInvalidName) {
		b.send(ctx, ev.ChatID, msgBadRestName, nil)
		return
	}
	if err != nil {
		b.storageError(ctx, ev, "insert restaurant", err)
		return
	}

	b.logger(ctx).Info("restaurant added", zap.Int64("restaurant_id", rest.ID))
	b.mirror.RecordRestaurant(*rest)
	b.send(ctx, ev.ChatID, fmt.Sprintf("✅ Restaurant «%s» added with %d boxes.", rest.Name, rest.Boxes), nil)
}

func parseAddArgs(args string) (string, float64, float64, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return "", 0, 0, errors.New("not enough arguments")
	}
	n := len(fields)
	lat, err := strconv.ParseFloat(fields[n-2], 64)
	if err != nil {
		return "", 0, 0, err
	}
	lon, err := strconv.ParseFloat(fields[n-1], 64)
	if err != nil {
		return "", 0, 0, err
	}
	if !models.ValidCoordinates(lat, lon) {
		return "", 0, 0, errors.New("coordinates out of range")
	}
	return strings.Join(fields[:n-2], " "), lat, lon, nil
}

// Managing one restaurant.

func (b *Bot) handleSelectRestaurant(ctx context.Context, ev *Event, s *models.Session) {
	rest, err := b.inventory.GetRestaurant(ctx, ev.Action.ID)
	if err != nil {
		b.adminFailure(ctx, ev, s, "get restaurant", err)
		return
	}
	b.selectRestaurant(s, rest)
	b.renderRestaurant(ctx, ev, rest)
}

func (b *Bot) selectRestaurant(s *models.Session, rest *models.Restaurant) {
	s.Reset(models.StateRestSelected)
	s.Admin.SelectedID = rest.ID
	s.Admin.SelectedName = rest.Name
}

// handleQuickAdd adds boxes without leaving the restaurant view.
func (b *Bot) handleQuickAdd(ctx context.Context, ev *Event, s *models.Session) {
	rest, err := b.inventory.Increment(ctx, ev.Action.ID, models.QuickAddBoxes)
	if errors.Is(err, models.ErrInvalidQuantity) {
		b.alert(ctx, ev, msgBoxLimit)
		return
	}
	if err != nil {
		b.adminFailure(ctx, ev, s, "add boxes", err)
		return
	}
	b.selectRestaurant(s, rest)
	b.answer(ctx, ev, fmt.Sprintf("+%d boxes", models.QuickAddBoxes))
	b.renderRestaurant(ctx, ev, rest)
}

func (b *Bot) handleSetQuantityPrompt(ctx context.Context, ev *Event, s *models.Session) {
	rest, err := b.inventory.GetRestaurant(ctx, ev.Action.ID)
	if err != nil {
		b.adminFailure(ctx, ev, s, "get restaurant", err)
		return
	}
	b.selectRestaurant(s, rest)
	s.State = models.StateSettingQuantity
	b.answer(ctx, ev, "")
	b.send(ctx, ev.ChatID,
		fmt.Sprintf("Enter the new number of boxes for «%s» (currently %d):", rest.Name, rest.Boxes),
		cancelKeyboard())
}

func (b *Bot) handleQuantity(ctx context.Context, ev *Event, s *models.Session) {
	value, err := strconv.Atoi(strings.TrimSpace(ev.Text))
	if err != nil || value < 0 || value > models.MaxBoxes {
		b.send(ctx, ev.ChatID, msgBadQuantity, nil)
		return
	}

	rest, err := b.inventory.SetQuantity(ctx, s.Admin.SelectedID, value)
	if err != nil {
		b.send(ctx, ev.ChatID, msgCancelled, removeKeyboard())
		b.adminFailure(ctx, ev, s, "set boxes", err)
		return
	}

	b.logger(ctx).Info("boxes set", zap.Int64("restaurant_id", rest.ID), zap.Int("boxes", rest.Boxes))
	b.backToMenu(ctx, ev, s, fmt.Sprintf("✅ «%s» now has %d boxes.", rest.Name, rest.Boxes))
}

// Deleting, with confirmation.

func (b *Bot) handleDeletePrompt(ctx context.Context, ev *Event, s *models.Session) {
	rest, err := b.inventory.GetRestaurant(ctx, ev.Action.ID)
	if err != nil {
		b.adminFailure(ctx, ev, s, "get restaurant", err)
		return
	}
	b.selectRestaurant(s, rest)
	s.State = models.StateConfirmingDelete

	markup := confirmDeleteKeyboard(rest.ID)
	b.show(ctx, ev, confirmDeleteText(rest.Name), &markup)
}

func (b *Bot) handleDeleteConfirm(ctx context.Context, ev *Event, s *models.Session) {
	if s.State != models.StateConfirmingDelete || s.Admin.SelectedID != ev.Action.ID {
		b.alert(ctx, ev, msgActionExpired)
		s.Reset(models.StateAdminMenu)
		b.renderMenu(ctx, ev)
		return
	}

	name, err := b.inventory.DeleteRestaurant(ctx, ev.Action.ID)
	if err != nil {
		b.adminFailure(ctx, ev, s, "delete restaurant", err)
		return
	}

	b.logger(ctx).Info("restaurant deleted", zap.Int64("restaurant_id", ev.Action.ID))
	s.Reset(models.StateAdminMenu)
	b.answer(ctx, ev, fmt.Sprintf("«%s» deleted", name))
	b.renderMenu(ctx, ev)
}

func (b *Bot) handleDeleteCancel(ctx context.Context, ev *Event, s *models.Session) {
	s.Reset(models.StateAdminMenu)
	b.renderMenu(ctx, ev)
}
