package bot

import (
	"context"

	"go.uber.org/zap"

	"github.com/uvolbolmasin/boxbot/internal/models"
)

// handlerFunc handles one event. It mutates the session in place; the
// caller persists it if it changed.
type handlerFunc func(ctx context.Context, ev *Event, s *models.Session)

// route picks the transition for an event given the current state.
func (b *Bot) route(ev *Event, state models.State) handlerFunc {
	switch ev.Kind {
	case EventCommand:
		return b.routeCommand(ev, state)
	case EventButton:
		return b.routeButton(ev)
	case EventText:
		return b.routeText(ev, state)
	case EventContact:
		if state == models.StateAwaitingPhone {
			return b.handleContact
		}
	case EventLocation:
		switch state {
		case models.StateAwaitingLocation:
			return b.handleLocation
		case models.StateAddingRestLocation:
			return b.adminOnly(b.handleRestaurantLocation)
		}
	}
	return b.handleUnexpected
}

func (b *Bot) routeCommand(ev *Event, state models.State) handlerFunc {
	switch ev.Command {
	case "start":
		return b.handleStart
	case "help":
		return b.handleHelp
	case "offers":
		return b.handleOffers
	case "cancel":
		if state.IsAdmin() {
			return b.adminOnly(b.handleAdminCancel)
		}
		return b.handleCancel
	case "admin":
		return b.adminOnly(b.handleAdminPanel)
	case "add":
		return b.adminOnly(b.handleAddCommand)
	}
	return b.handleUnexpected
}

func (b *Bot) routeButton(ev *Event) handlerFunc {
	if IsAdminToken(ev.Token) {
		return b.adminOnly(b.adminAction(ev.Action.Kind))
	}
	if ev.Action.Kind == ActionBook {
		return b.handleBook
	}
	return b.handleStaleButton
}

func (b *Bot) adminAction(kind ActionKind) handlerFunc {
	switch kind {
	case ActionAdminAdd:
		return b.handleAddRestaurant
	case ActionAdminSelect:
		return b.handleSelectRestaurant
	case ActionAdminQuickAdd:
		return b.handleQuickAdd
	case ActionAdminSetQuantity:
		return b.handleSetQuantityPrompt
	case ActionAdminDelete:
		return b.handleDeletePrompt
	case ActionAdminConfirmDelete:
		return b.handleDeleteConfirm
	case ActionAdminCancelDelete:
		return b.handleDeleteCancel
	case ActionAdminBack:
		return b.handleBackToMenu
	case ActionAdminCancel:
		return b.handleAdminCancel
	}
	return b.handleStaleButton
}

func (b *Bot) routeText(ev *Event, state models.State) handlerFunc {
	if state.IsAdmin() && ev.Text == btnCancel {
		return b.adminOnly(b.handleAdminCancel)
	}

	switch state {
	case models.StateAwaitingName:
		return b.handleName
	case models.StateAwaitingPhone:
		return b.hint(msgPhoneHint)
	case models.StateAwaitingLocation:
		return b.hint(msgLocationHint)
	case models.StateAddingRestName:
		return b.adminOnly(b.handleRestaurantName)
	case models.StateAddingRestLocation:
		return b.adminOnly(b.hint(msgRestLocationHint))
	case models.StateSettingQuantity:
		return b.adminOnly(b.handleQuantity)
	case models.StateAdminMenu, models.StateRestSelected, models.StateConfirmingDelete:
		return b.adminOnly(b.hint(msgAdminHint))
	}
	return b.hint(msgIdleHint)
}

// adminOnly is the gate in front of every admin transition. Other
// identities get a denial and nothing else happens.
func (b *Bot) adminOnly(next handlerFunc) handlerFunc {
	return func(ctx context.Context, ev *Event, s *models.Session) {
		if ev.UserID != b.cfg.AdminID {
			b.logger(ctx).Warn("admin action denied", zap.String("token", ev.Token), zap.String("command", ev.Command))
			b.alert(ctx, ev, msgAccessDenied)
			return
		}
		next(ctx, ev, s)
	}
}

func (b *Bot) hint(text string) handlerFunc {
	return func(ctx context.Context, ev *Event, _ *models.Session) {
		b.send(ctx, ev.ChatID, text, nil)
	}
}

func (b *Bot) handleHelp(ctx context.Context, ev *Event, _ *models.Session) {
	text := msgHelp
	if ev.UserID == b.cfg.AdminID {
		text += msgAdminHelp
	}
	b.send(ctx, ev.ChatID, text, nil)
}

func (b *Bot) handleUnexpected(ctx context.Context, ev *Event, s *models.Session) {
	switch {
	case s.State == models.StateAwaitingPhone:
		b.send(ctx, ev.ChatID, msgPhoneHint, nil)
	case s.State == models.StateAwaitingLocation:
		b.send(ctx, ev.ChatID, msgLocationHint, nil)
	case s.State.IsAdmin() && ev.UserID == b.cfg.AdminID:
		b.send(ctx, ev.ChatID, msgAdminHint, nil)
	case ev.Kind == EventCommand:
		b.send(ctx, ev.ChatID, "Unknown command. Use /help to see available commands.", nil)
	default:
		b.send(ctx, ev.ChatID, msgIdleHint, nil)
	}
}

func (b *Bot) handleStaleButton(ctx context.Context, ev *Event, _ *models.Session) {
	b.alert(ctx, ev, msgActionExpired)
}
