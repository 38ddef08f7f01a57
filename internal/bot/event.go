package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type EventKind int

const (
	EventUnknown EventKind = iota
	EventCommand
	EventText
	EventContact
	EventLocation
	EventButton
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	case EventContact:
		return "contact"
	case EventLocation:
		return "location"
	case EventButton:
		return "button"
	}
	return "unknown"
}

// Event is an inbound update reduced to what the conversation flows need.
type Event struct {
	Kind      EventKind
	UserID    int64
	Username  string
	ChatID    int64
	MessageID int

	Command string
	Args    string
	Text    string
	Phone   string
	Lat     float64
	Lon     float64

	CallbackID string
	Token      string
	Action     Action
	// Markup is the keyboard of the message the button was pressed on.
	Markup *tgbotapi.InlineKeyboardMarkup

	answered bool
}

// EventFromUpdate classifies an update. ok is false for updates the bot
// does not handle (edited messages, channel posts, inline queries...).
func EventFromUpdate(u tgbotapi.Update) (Event, bool) {
	if cq := u.CallbackQuery; cq != nil {
		if cq.From == nil {
			return Event{}, false
		}
		ev := Event{
			Kind:       EventButton,
			UserID:     cq.From.ID,
			Username:   cq.From.UserName,
			ChatID:     cq.From.ID,
			CallbackID: cq.ID,
			Token:      cq.Data,
			Action:     ParseAction(cq.Data),
		}
		if m := cq.Message; m != nil {
			if m.Chat != nil {
				ev.ChatID = m.Chat.ID
			}
			ev.MessageID = m.MessageID
			ev.Markup = m.ReplyMarkup
		}
		return ev, true
	}

	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return Event{}, false
	}

	ev := Event{
		UserID:    msg.From.ID,
		Username:  msg.From.UserName,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
	}

	switch {
	case msg.IsCommand():
		ev.Kind = EventCommand
		ev.Command = msg.Command()
		ev.Args = msg.CommandArguments()
	case msg.Contact != nil:
		ev.Kind = EventContact
		ev.Phone = msg.Contact.PhoneNumber
	case msg.Location != nil:
		ev.Kind = EventLocation
		ev.Lat = msg.Location.Latitude
		ev.Lon = msg.Location.Longitude
	case msg.Text != "":
		ev.Kind = EventText
		ev.Text = msg.Text
	default:
		ev.Kind = EventUnknown
	}
	return ev, true
}
