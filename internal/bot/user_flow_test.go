package bot

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvolbolmasin/boxbot/internal/models"
)

var codePattern = regexp.MustCompile(`Your code: ([A-Z0-9]{6})\b`)

func register(h *harness, id int64, lat, lon float64) {
	h.handle(command(id, "start", ""))
	h.handle(text(id, "Aziz Karimov"))
	h.handle(contact(id, "+998901234567"))
	h.handle(location(id, lat, lon))
}

func TestRegistrationAndBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rest := h.restaurant(t, "Bon!", 41.32, 69.28, 5)
	h.restaurant(t, "Far Away", 39.65, 66.96, 5)

	const user int64 = 555

	h.handle(command(user, "start", ""))
	assert.Equal(t, models.StateAwaitingName, h.state(t, user).State)
	assert.True(t, h.api.saw(msgWelcome))

	h.handle(text(user, "Aziz Karimov"))
	s := h.state(t, user)
	assert.Equal(t, models.StateAwaitingPhone, s.State)
	assert.Equal(t, "Aziz Karimov", s.User.Name)

	h.handle(contact(user, "+998901234567"))
	s = h.state(t, user)
	assert.Equal(t, models.StateAwaitingLocation, s.State)
	assert.Equal(t, "+998901234567", s.User.Phone)

	h.handle(location(user, 41.3111, 69.2797))
	assert.Equal(t, models.StateIdle, h.state(t, user).State)

	stored, err := h.db.GetUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.User{ID: user, Name: "Aziz Karimov", Phone: "+998901234567", Lat: 41.3111, Lon: 69.2797}, *stored)
	require.Len(t, h.mirror.users, 1)
	assert.Equal(t, user, h.mirror.users[0].ID)

	assert.True(t, h.api.saw(msgRegistered))
	assert.True(t, h.api.saw("Bon!"))
	assert.False(t, h.api.saw("Far Away"), "restaurants beyond the radius are not offered")

	h.api.reset()
	h.handle(button(user, bookToken(rest.ID)))

	assert.Equal(t, 4, h.boxes(t, rest.ID))
	var edited string
	for _, c := range h.api.all() {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			edited = e.Text
		}
	}
	assert.Contains(t, edited, "Bon!")
	assert.Regexp(t, codePattern, edited)
	assert.Equal(t, models.StateIdle, h.state(t, user).State)
}

func TestRegisterAgainOverwrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	register(h, 9, 41.3, 69.2)

	h.handle(command(9, "start", ""))
	h.handle(text(9, "New Name"))
	h.handle(contact(9, "+1"))
	h.handle(location(9, 40.1, 65.3))

	u, err := h.db.GetUser(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "New Name", u.Name)
	assert.Equal(t, 40.1, u.Lat)

	n, err := h.db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWrongInputWhileRegistering(t *testing.T) {
	h := newHarness(t)

	h.handle(command(3, "start", ""))
	h.handle(text(3, "Dilnoza"))

	// a typed phone number is not accepted
	h.handle(text(3, "+998901234567"))
	assert.True(t, h.api.saw(msgPhoneHint))
	assert.Equal(t, models.StateAwaitingPhone, h.state(t, 3).State)

	// a location before the phone is not accepted either
	h.handle(location(3, 41.3, 69.2))
	assert.Equal(t, models.StateAwaitingPhone, h.state(t, 3).State)

	h.handle(contact(3, "+998"))
	h.handle(text(3, "Tashkent"))
	assert.True(t, h.api.saw(msgLocationHint))
	assert.Equal(t, models.StateAwaitingLocation, h.state(t, 3).State)
}

func TestLongNameIsTruncated(t *testing.T) {
	h := newHarness(t)
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'я'
	}

	h.handle(command(4, "start", ""))
	h.handle(text(4, string(long)))
	assert.Len(t, []rune(h.state(t, 4).User.Name), models.MaxDisplayName)
}

func TestCancelRegistration(t *testing.T) {
	h := newHarness(t)

	h.handle(command(6, "start", ""))
	h.handle(text(6, "Bekzod"))
	h.handle(command(6, "cancel", ""))

	assert.Equal(t, models.StateIdle, h.state(t, 6).State)
	assert.True(t, h.api.saw(msgCancelled))
	_, err := h.db.GetUser(context.Background(), 6)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInvalidLocationKeepsState(t *testing.T) {
	h := newHarness(t)

	h.handle(command(2, "start", ""))
	h.handle(text(2, "Kamola"))
	h.handle(contact(2, "+998"))
	h.handle(location(2, 123, 500))

	assert.True(t, h.api.saw(msgInvalidLocation))
	assert.Equal(t, models.StateAwaitingLocation, h.state(t, 2).State)
}

func TestStorageFailureKeepsLocationStep(t *testing.T) {
	h := newHarness(t)

	h.handle(command(2, "start", ""))
	h.handle(text(2, "Kamola"))
	h.handle(contact(2, "+998"))
	require.NoError(t, h.db.Close())

	h.handle(location(2, 41.3, 69.2))
	assert.True(t, h.api.saw(msgGenericError))
	assert.Equal(t, models.StateAwaitingLocation, h.state(t, 2).State)
	assert.Empty(t, h.mirror.users)
}

func TestNoOffersNearby(t *testing.T) {
	h := newHarness(t)
	h.restaurant(t, "Empty", 41.31, 69.27, 0)

	register(h, 8, 41.31, 69.27)
	assert.True(t, h.api.saw(msgNoOffers))
}

func TestOffersCommand(t *testing.T) {
	h := newHarness(t)

	h.handle(command(8, "offers", ""))
	assert.True(t, h.api.saw(msgNotRegistered))

	register(h, 8, 41.31, 69.27)
	h.restaurant(t, "Late Opener", 41.311, 69.271, 2)
	h.api.reset()

	h.handle(command(8, "offers", ""))
	assert.True(t, h.api.saw("Late Opener"))
}

func TestBookingFromAnyState(t *testing.T) {
	h := newHarness(t)
	rest := h.restaurant(t, "Bon!", 41.31, 69.27, 1)

	h.handle(command(11, "start", ""))
	h.handle(button(11, bookToken(rest.ID)))

	assert.Equal(t, 0, h.boxes(t, rest.ID))
	assert.True(t, h.api.saw("Your code"))
	assert.Equal(t, models.StateAwaitingName, h.state(t, 11).State)
}

func TestBookingSoldOutRemovesButton(t *testing.T) {
	h := newHarness(t)
	gone := h.restaurant(t, "Gone", 41.31, 69.27, 0)
	other := h.restaurant(t, "Other", 41.31, 69.27, 3)

	ev := button(12, bookToken(gone.ID))
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Reserve at Gone", bookToken(gone.ID))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Reserve at Other", bookToken(other.ID))),
	)
	ev.Markup = &markup
	h.handle(ev)

	assert.True(t, h.api.saw(msgSoldOut))
	assert.Equal(t, 0, h.boxes(t, gone.ID))

	var edit *tgbotapi.EditMessageReplyMarkupConfig
	for _, c := range h.api.all() {
		if e, ok := c.(tgbotapi.EditMessageReplyMarkupConfig); ok {
			edit = &e
		}
	}
	require.NotNil(t, edit)
	require.Len(t, edit.ReplyMarkup.InlineKeyboard, 1)
	assert.Equal(t, bookToken(other.ID), *edit.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
}

func TestBookingLastOfferSoldOut(t *testing.T) {
	h := newHarness(t)
	gone := h.restaurant(t, "Gone", 41.31, 69.27, 0)

	ev := button(12, bookToken(gone.ID))
	markup := offersKeyboard(nil)
	markup.InlineKeyboard = append(markup.InlineKeyboard, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Reserve at Gone", bookToken(gone.ID))))
	ev.Markup = &markup
	h.handle(ev)

	assert.True(t, h.api.saw(msgAllSoldOut))
}

func TestBookingDeletedRestaurant(t *testing.T) {
	h := newHarness(t)

	h.handle(button(12, bookToken(424242)))
	assert.True(t, h.api.saw(msgSoldOut))
}

func TestConcurrentBookingNeverOversells(t *testing.T) {
	h := newHarness(t)
	rest := h.restaurant(t, "Popular", 41.31, 69.27, 3)

	const users = 10
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			h.handle(button(id, bookToken(rest.ID)))
		}(int64(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 0, h.boxes(t, rest.ID))
	assert.Equal(t, 3, h.api.count("Your code"))
	assert.Equal(t, users-3, h.api.count(msgSoldOut))
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t)

	h.handle(command(21, "start", ""))
	h.handle(text(21, "Alice"))
	before := h.state(t, 21)

	h.handle(command(22, "start", ""))
	h.handle(text(22, "Bob"))
	h.handle(command(22, "cancel", ""))

	assert.Equal(t, before, h.state(t, 21))
	assert.Equal(t, models.StateIdle, h.state(t, 22).State)

	// the admin adding a restaurant while a user is mid-registration
	h.handle(command(adminID, "admin", ""))
	h.handle(button(adminID, tok(ActionAdminAdd, 0)))
	h.handle(text(adminID, "Evos"))
	admin := h.state(t, adminID)
	require.Equal(t, models.StateAddingRestLocation, admin.State)
	require.Equal(t, models.StateAwaitingPhone, before.State)

	// input each flow would accept at its own step, sent by the other identity
	h.handle(text(21, "Caravan"))
	h.handle(contact(adminID, "+998900000000"))
	h.handle(location(21, 41.3, 69.2))
	h.handle(text(adminID, "Bob"))
	h.handle(command(21, "cancel", ""))
	h.handle(command(21, "start", ""))
	h.handle(text(21, "Alice"))

	assert.Equal(t, admin, h.state(t, adminID))
	assert.Equal(t, before, h.state(t, 21))

	h.handle(location(adminID, 41.31, 69.27))
	assert.Equal(t, models.StateAdminMenu, h.state(t, adminID).State)
	assert.Equal(t, before, h.state(t, 21))

	rests, err := h.db.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rests, 1)
	assert.Equal(t, "Evos", rests[0].Name)
	_, err = h.db.GetUser(context.Background(), 21)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHelpAndUnknownInput(t *testing.T) {
	h := newHarness(t)

	h.handle(command(5, "help", ""))
	assert.True(t, h.api.saw("/offers"))
	assert.False(t, h.api.saw("/admin"), "admin commands are listed for the admin only")

	h.api.reset()
	h.handle(command(adminID, "help", ""))
	assert.True(t, h.api.saw("/admin"))

	h.api.reset()
	h.handle(command(5, "frobnicate", ""))
	assert.True(t, h.api.saw("Unknown command"))

	h.api.reset()
	h.handle(text(5, "hello"))
	assert.True(t, h.api.saw(msgIdleHint))
}

func TestReservationCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := ReservationCode(6)
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)

	assert.Regexp(t, `^[A-Z0-9]{8}$`, fallbackCode(42, 8))
}

func TestReservationCodeFallback(t *testing.T) {
	h := newHarness(t)
	rest := h.restaurant(t, "Bon!", 41.31, 69.27, 1)
	h.bot.codes = func(int) (string, error) { return "", fmt.Errorf("entropy exhausted") }

	h.handle(button(1, bookToken(rest.ID)))
	assert.Equal(t, 0, h.boxes(t, rest.ID))
	assert.Equal(t, 1, h.api.count("Your code"))
}
