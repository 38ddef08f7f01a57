package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uvolbolmasin/boxbot/internal/config"
	"github.com/uvolbolmasin/boxbot/internal/db"
	"github.com/uvolbolmasin/boxbot/internal/models"
	"github.com/uvolbolmasin/boxbot/internal/session"
)

const adminID int64 = 1000

// fakeAPI records everything the bot sends.
type fakeAPI struct {
	mu    sync.Mutex
	calls []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) all() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.calls...)
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// texts returns the text of every message, edit and callback answer.
func (f *fakeAPI) texts() []string {
	var out []string
	for _, c := range f.all() {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		case tgbotapi.CallbackConfig:
			if m.Text != "" {
				out = append(out, m.Text)
			}
		}
	}
	return out
}

func (f *fakeAPI) count(substr string) int {
	n := 0
	for _, s := range f.texts() {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

func (f *fakeAPI) saw(substr string) bool { return f.count(substr) > 0 }

type recordingMirror struct {
	mu    sync.Mutex
	users []models.User
	rests []models.Restaurant
}

func (m *recordingMirror) RecordUser(u models.User, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
}

func (m *recordingMirror) RecordRestaurant(r models.Restaurant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rests = append(m.rests, r)
}

type harness struct {
	bot      *Bot
	api      *fakeAPI
	db       *db.DB
	sessions *session.MemoryStore
	mirror   *recordingMirror
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	database, err := db.New(config.DatabaseConfig{
		Driver: db.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "boxes.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	h := &harness{
		api:      &fakeAPI{},
		db:       database,
		sessions: session.NewMemoryStore(),
		mirror:   &recordingMirror{},
	}
	h.bot = New(Config{
		AdminID:  adminID,
		BoxPrice: "15 000 sum",
		Workers:  4,
	}, Deps{
		API:       h.api,
		Inventory: database,
		Users:     database,
		Sessions:  h.sessions,
		Mirror:    h.mirror,
		Logger:    zaptest.NewLogger(t),
	})
	return h
}

func (h *harness) handle(ev *Event) {
	h.bot.HandleEvent(context.Background(), ev)
}

func (h *harness) state(t *testing.T, id int64) models.Session {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (h *harness) restaurant(t *testing.T, name string, lat, lon float64, boxes int) *models.Restaurant {
	t.Helper()
	rest, err := h.db.InsertRestaurant(context.Background(), name, lat, lon, boxes)
	require.NoError(t, err)
	return rest
}

func (h *harness) boxes(t *testing.T, id int64) int {
	t.Helper()
	rest, err := h.db.GetRestaurant(context.Background(), id)
	require.NoError(t, err)
	return rest.Boxes
}

func command(user int64, cmd, args string) *Event {
	return &Event{Kind: EventCommand, UserID: user, ChatID: user, Command: cmd, Args: args}
}

func text(user int64, s string) *Event {
	return &Event{Kind: EventText, UserID: user, ChatID: user, Text: s}
}

func contact(user int64, phone string) *Event {
	return &Event{Kind: EventContact, UserID: user, ChatID: user, Phone: phone}
}

func location(user int64, lat, lon float64) *Event {
	return &Event{Kind: EventLocation, UserID: user, ChatID: user, Lat: lat, Lon: lon}
}

func button(user int64, token string) *Event {
	return &Event{
		Kind:       EventButton,
		UserID:     user,
		ChatID:     user,
		MessageID:  77,
		CallbackID: "cb-" + token,
		Token:      token,
		Action:     ParseAction(token),
	}
}

func TestNewFillsDefaults(t *testing.T) {
	b := New(Config{AdminID: adminID, DefaultBoxes: -3}, Deps{})
	assert.Equal(t, models.DefaultBoxes, b.cfg.DefaultBoxes)
	assert.Equal(t, defaultCodeLength, b.cfg.CodeLength)
	assert.Positive(t, b.cfg.RadiusKm)
	assert.Positive(t, b.cfg.Workers)

	b = New(Config{AdminID: adminID, DefaultBoxes: 12}, Deps{})
	assert.Equal(t, 12, b.cfg.DefaultBoxes)
}

func TestHandleEventAnswersCallbacks(t *testing.T) {
	h := newHarness(t)
	rest := h.restaurant(t, "Bon!", 41.31, 69.27, 5)

	token := Action{Kind: ActionAdminSelect, ID: rest.ID}.Token()
	h.handle(button(adminID, token))

	var answered bool
	for _, c := range h.api.all() {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			answered = true
			assert.Equal(t, "cb-"+token, cb.CallbackQueryID)
		}
	}
	assert.True(t, answered, "button presses must always be answered")
}

type panicky struct{ Inventory }

func TestHandleEventRecoversPanics(t *testing.T) {
	h := newHarness(t)
	h.bot.inventory = panicky{}

	assert.NotPanics(t, func() { h.handle(button(1, bookToken(3))) })
	assert.True(t, h.api.saw(msgApology))

	// the bot keeps working afterwards
	h.handle(command(1, "start", ""))
	assert.Equal(t, models.StateAwaitingName, h.state(t, 1).State)
}

func TestHandleEventIgnoresUnknownButtons(t *testing.T) {
	h := newHarness(t)

	h.handle(button(1, "something_else"))
	assert.True(t, h.api.saw(msgActionExpired))
	assert.Zero(t, h.sessions.Len())
}

func TestStartDispatchStop(t *testing.T) {
	h := newHarness(t)
	h.bot.Start()

	users := []int64{1, 2, 3, 4, 5, 6, 7}
	for _, id := range users {
		h.bot.Dispatch(startUpdate(id))
	}
	h.bot.Stop()

	for _, id := range users {
		assert.Equal(t, models.StateAwaitingName, h.state(t, id).State)
	}
	assert.Equal(t, len(users), h.api.count("Welcome"))

	// late updates are dropped, not handled and not panicking
	assert.NotPanics(t, func() { h.bot.Dispatch(startUpdate(99)) })
	assert.Equal(t, models.StateIdle, h.state(t, 99).State)

	// Stop is idempotent
	h.bot.Stop()
}

func TestDispatchKeepsPerIdentityOrder(t *testing.T) {
	h := newHarness(t)
	h.bot.Start()

	h.bot.Dispatch(startUpdate(5))
	h.bot.Dispatch(textUpdate(5, "Aziz"))
	h.bot.Stop()

	s := h.state(t, 5)
	assert.Equal(t, models.StateAwaitingPhone, s.State)
	assert.Equal(t, "Aziz", s.User.Name)
}

type fakePoller struct {
	ch      chan tgbotapi.Update
	stopped bool
}

func (p *fakePoller) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return p.ch }
func (p *fakePoller) StopReceivingUpdates()                                        { p.stopped = true }

func TestPoll(t *testing.T) {
	h := newHarness(t)
	p := &fakePoller{ch: make(chan tgbotapi.Update, 2)}
	p.ch <- startUpdate(8)
	close(p.ch)

	require.NoError(t, h.bot.Poll(context.Background(), p))

	var deleted bool
	for _, c := range h.api.all() {
		if _, ok := c.(tgbotapi.DeleteWebhookConfig); ok {
			deleted = true
		}
	}
	assert.True(t, deleted)
	assert.Equal(t, models.StateAwaitingName, h.state(t, 8).State)
}

func TestPollStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	p := &fakePoller{ch: make(chan tgbotapi.Update)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.bot.Poll(ctx, p))
	assert.True(t, p.stopped)
}

func startUpdate(id int64) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: id},
		Chat:     &tgbotapi.Chat{ID: id},
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}}
}

func textUpdate(id int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: id},
		Chat: &tgbotapi.Chat{ID: id},
		Text: s,
	}}
}
