package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/uvolbolmasin/boxbot/internal/geo"
	"github.com/uvolbolmasin/boxbot/internal/models"
)

const (
	msgWelcome         = "Xush kelibsiz! Welcome to «Uvol bo'lmasin» 😊\nWe rescue surplus food from local restaurants.\n\nPlease enter your first and last name:"
	msgAskPhone        = "Thanks! Now share your phone number using the button below."
	msgPhoneHint       = "Please use the 📱 button below to share your phone number."
	msgAskLocation     = "Almost done. Share your location so we can find boxes near you."
	msgLocationHint    = "Please use the 📍 button below to share your location."
	msgRegistered      = "✅ Registration complete!"
	msgNoOffers        = "There are no active offers near you right now. Check back later!"
	msgSoldOut         = "Sorry, the last box there has just been reserved."
	msgAllSoldOut      = "All boxes near you have been reserved. Check back later!"
	msgNotRegistered   = "You are not registered yet. Send /start to sign up."
	msgIdleHint        = "Send /start to register or /offers to see boxes near you."
	msgCancelled       = "Cancelled."
	msgGenericError    = "⚠️ Something went wrong. Please try again later."
	msgApology         = "⚠️ Sorry, an unexpected error occurred. Please try again."
	msgAccessDenied    = "⛔ Access denied."
	msgInvalidLocation = "That location does not look valid. Please try again."

	msgAskRestName       = "Enter the restaurant name (2-50 characters):"
	msgBadRestName       = "The name must be between 2 and 50 characters. Try again:"
	msgAskRestLocation   = "Now share the restaurant's location."
	msgRestLocationHint  = "Please share a location with the 📍 button, or press ❌ Cancel."
	msgBadQuantity       = "Please send a whole number of boxes from 0 to 100000:"
	msgBoxLimit          = "A restaurant can hold at most 100000 boxes."
	msgRestaurantMissing = "This restaurant no longer exists."
	msgActionExpired     = "This action has expired."
	msgAdminHint         = "Use the buttons of the admin panel, or /admin to reopen it."
	msgAddUsage          = "Usage: /add <name> <lat> <lon>\nExample: /add Bon! 41.31 69.27"

	btnSharePhone    = "📱 Share phone number"
	btnShareLocation = "📍 Share location"
	btnCancel        = "❌ Cancel"
)

const msgHelp = `Commands:
/start - register (or register again)
/offers - boxes available near you
/cancel - abort the current step
/help - show this help message`

const msgAdminHelp = `

Admin:
/admin - open the admin panel
/add <name> <lat> <lon> - add a restaurant in one step`

func removeKeyboard() tgbotapi.ReplyKeyboardRemove {
	return tgbotapi.NewRemoveKeyboard(true)
}

func contactKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(btnSharePhone)),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func locationKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonLocation(btnShareLocation)),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancel)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func adminLocationKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonLocation(btnShareLocation)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancel)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func offersText(price string, nearby []geo.Ranked) string {
	var sb strings.Builder
	sb.WriteString("🥡 Available boxes")
	if price != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", price))
	}
	sb.WriteString(":\n\n")
	for _, r := range nearby {
		sb.WriteString(fmt.Sprintf("• %s — %.1f km, %d left\n", r.Name, r.DistanceKm, r.Boxes))
	}
	return sb.String()
}

func offersKeyboard(nearby []geo.Ranked) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(nearby))
	for _, r := range nearby {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Reserve at "+r.Name, bookToken(r.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// withoutButton drops every button carrying token, and rows left empty.
func withoutButton(markup tgbotapi.InlineKeyboardMarkup, token string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(markup.InlineKeyboard))
	for _, row := range markup.InlineKeyboard {
		kept := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			if btn.CallbackData != nil && *btn.CallbackData == token {
				continue
			}
			kept = append(kept, btn)
		}
		if len(kept) > 0 {
			rows = append(rows, kept)
		}
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func reservedText(rest *models.Restaurant, code string) string {
	return fmt.Sprintf("✅ Reserved!\n\n🏠 Restaurant: %s\n🔑 Your code: %s\n\nShow this code at the counter to pick up your box.",
		rest.Name, code)
}

func adminMenuText(rests []models.Restaurant, users int) string {
	var sb strings.Builder
	sb.WriteString("🛠 ADMIN PANEL\n\n")
	sb.WriteString(fmt.Sprintf("Restaurants: %d", len(rests)))
	if users >= 0 {
		sb.WriteString(fmt.Sprintf(" • Users: %d", users))
	}
	sb.WriteString("\n")
	if len(rests) == 0 {
		sb.WriteString("\nNo restaurants yet. Add the first one below.")
	} else {
		sb.WriteString("\nPick a restaurant to manage it:")
	}
	return sb.String()
}

func adminMenuKeyboard(rests []models.Restaurant) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rests)+1)
	for _, r := range rests {
		label := fmt.Sprintf("%s — %d 📦", r.Name, r.Boxes)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, Action{Kind: ActionAdminSelect, ID: r.ID}.Token()),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➕ Add restaurant", Action{Kind: ActionAdminAdd}.Token()),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func restaurantText(rest *models.Restaurant) string {
	return fmt.Sprintf("🏠 %s\n📦 Boxes: %d\n📍 %.5f, %.5f", rest.Name, rest.Boxes, rest.Lat, rest.Lon)
}

func restaurantKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Set quantity", Action{Kind: ActionAdminSetQuantity, ID: id}.Token()),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("➕ Add %d", models.QuickAddBoxes), Action{Kind: ActionAdminQuickAdd, ID: id}.Token()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", Action{Kind: ActionAdminDelete, ID: id}.Token()),
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", Action{Kind: ActionAdminBack}.Token()),
		),
	)
}

func confirmDeleteText(name string) string {
	return fmt.Sprintf("Delete «%s»? This cannot be undone.", name)
}

func confirmDeleteKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Yes, delete", Action{Kind: ActionAdminConfirmDelete, ID: id}.Token()),
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, Action{Kind: ActionAdminCancelDelete, ID: id}.Token()),
		),
	)
}
