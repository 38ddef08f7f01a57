package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uvolbolmasin/boxbot/internal/geo"
	"github.com/uvolbolmasin/boxbot/internal/mirror"
	"github.com/uvolbolmasin/boxbot/internal/models"
	"github.com/uvolbolmasin/boxbot/internal/session"
)

// API is the subset of *tgbotapi.BotAPI the bot talks through.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Poller delivers updates by long polling.
type Poller interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Inventory is the restaurant store.
type Inventory interface {
	ListActive(ctx context.Context) ([]models.Restaurant, error)
	ListAll(ctx context.Context) ([]models.Restaurant, error)
	GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error)
	DecrementIfAvailable(ctx context.Context, id int64) (*models.Restaurant, error)
	Increment(ctx context.Context, id int64, delta int) (*models.Restaurant, error)
	SetQuantity(ctx context.Context, id int64, value int) (*models.Restaurant, error)
	InsertRestaurant(ctx context.Context, name string, lat, lon float64, boxes int) (*models.Restaurant, error)
	DeleteRestaurant(ctx context.Context, id int64) (string, error)
}

// Users is the registrant store.
type Users interface {
	UpsertUser(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

type Config struct {
	AdminID        int64
	RadiusKm       float64
	DefaultBoxes   int
	CodeLength     int
	BoxPrice       string
	HandlerTimeout time.Duration
	PollTimeout    int
	Workers        int
}

type Deps struct {
	API       API
	Inventory Inventory
	Users     Users
	Sessions  session.Store
	Mirror    mirror.Recorder
	Logger    *zap.Logger
}

// Bot routes Telegram updates through the user and admin conversation flows.
type Bot struct {
	api       API
	inventory Inventory
	users     Users
	sessions  session.Store
	mirror    mirror.Recorder
	log       *zap.Logger
	cfg       Config
	codes     func(n int) (string, error)

	mu      sync.RWMutex
	shards  []chan tgbotapi.Update
	wg      sync.WaitGroup
	started bool
	stopped bool
}

func New(cfg Config, deps Deps) *Bot {
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = geo.DefaultRadiusKm
	}
	if cfg.DefaultBoxes <= 0 {
		cfg.DefaultBoxes = models.DefaultBoxes
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = defaultCodeLength
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 15 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if deps.Mirror == nil {
		deps.Mirror = mirror.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Bot{
		api:       deps.API,
		inventory: deps.Inventory,
		users:     deps.Users,
		sessions:  deps.Sessions,
		mirror:    deps.Mirror,
		log:       deps.Logger,
		cfg:       cfg,
		codes:     ReservationCode,
	}
}

// Start launches the workers. Updates of one identity always land on the
// same worker, so they are handled in order; different identities run in
// parallel.
func (b *Bot) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true

	b.shards = make([]chan tgbotapi.Update, b.cfg.Workers)
	for i := range b.shards {
		ch := make(chan tgbotapi.Update, 64)
		b.shards[i] = ch
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for u := range ch {
				b.HandleUpdate(context.Background(), u)
			}
		}()
	}
}

// Dispatch queues an update for its identity's worker. Updates arriving
// after Stop are dropped.
func (b *Bot) Dispatch(u tgbotapi.Update) {
	ev, ok := EventFromUpdate(u)
	if !ok {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.started || b.stopped {
		b.log.Warn("dropping update, bot is not running", zap.Int("update_id", u.UpdateID))
		return
	}
	shard := uint64(ev.UserID) % uint64(len(b.shards))
	b.shards[shard] <- u
}

// Stop waits for queued updates to be handled. It is safe to call more
// than once and from several goroutines.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	if !b.stopped {
		b.stopped = true
		for _, ch := range b.shards {
			close(ch)
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// Poll receives updates by long polling until ctx is cancelled.
func (b *Bot) Poll(ctx context.Context, poller Poller) error {
	// getUpdates is refused while a webhook is registered.
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	updates := poller.GetUpdatesChan(u)

	b.Start()
	defer b.Stop()

	for {
		select {
		case <-ctx.Done():
			poller.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.Dispatch(update)
		}
	}
}

// HandleUpdate processes one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	ev, ok := EventFromUpdate(u)
	if !ok {
		return
	}
	b.HandleEvent(ctx, &ev)
}

// HandleEvent runs one event through the gate and the state machine.
// Panics are contained here so one bad update cannot stop the worker.
func (b *Bot) HandleEvent(ctx context.Context, ev *Event) {
	log := b.log.With(
		zap.String("trace_id", uuid.NewString()),
		zap.Int64("user_id", ev.UserID),
		zap.Stringer("event", ev.Kind),
	)

	ctx, cancel := context.WithTimeout(ctx, b.cfg.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling update", zap.Any("panic", r), zap.Stack("stack"))
			b.send(ctx, ev.ChatID, msgApology, nil)
		}
	}()

	sess, err := b.sessions.Get(ctx, ev.UserID)
	if err != nil {
		log.Error("failed to load session", zap.Error(err))
		b.fail(ctx, ev)
		return
	}
	before := sess

	h := b.route(ev, sess.State)
	h(withLogger(ctx, log), ev, &sess)

	if ev.Kind == EventButton && !ev.answered {
		b.answer(ctx, ev, "")
	}

	if sess != before {
		if err := b.sessions.Save(ctx, ev.UserID, sess); err != nil {
			log.Error("failed to save session", zap.Error(err))
			b.send(ctx, ev.ChatID, msgGenericError, nil)
		}
	}
}

type loggerKey struct{}

func withLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// logger returns the per-event logger stored by HandleEvent.
func (b *Bot) logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return b.log
}

// storageError logs err and tells the user to retry. Not-found and
// sold-out results are handled by callers before this point.
func (b *Bot) storageError(ctx context.Context, ev *Event, op string, err error) {
	b.logger(ctx).Error("storage failure", zap.String("op", op), zap.Error(err))
	b.fail(ctx, ev)
}

func (b *Bot) fail(ctx context.Context, ev *Event) {
	if ev.Kind == EventButton {
		b.alert(ctx, ev, msgGenericError)
		return
	}
	b.send(ctx, ev.ChatID, msgGenericError, nil)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger(ctx).Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) request(ctx context.Context, c tgbotapi.Chattable) {
	if _, err := b.api.Request(c); err != nil {
		b.logger(ctx).Error("telegram request failed", zap.Error(err))
	}
}

// show edits the message the button was pressed on, or sends a new one
// when the event did not come from a button.
func (b *Bot) show(ctx context.Context, ev *Event, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if ev.Kind != EventButton || ev.MessageID == 0 {
		if markup != nil {
			b.send(ctx, ev.ChatID, text, *markup)
		} else {
			b.send(ctx, ev.ChatID, text, nil)
		}
		return
	}

	if markup != nil {
		b.request(ctx, tgbotapi.NewEditMessageTextAndMarkup(ev.ChatID, ev.MessageID, text, *markup))
		return
	}
	b.request(ctx, tgbotapi.NewEditMessageText(ev.ChatID, ev.MessageID, text))
}

func (b *Bot) answer(ctx context.Context, ev *Event, text string) {
	ev.answered = true
	b.request(ctx, tgbotapi.NewCallback(ev.CallbackID, text))
}

func (b *Bot) alert(ctx context.Context, ev *Event, text string) {
	if ev.Kind != EventButton {
		b.send(ctx, ev.ChatID, text, nil)
		return
	}
	ev.answered = true
	b.request(ctx, tgbotapi.NewCallbackWithAlert(ev.CallbackID, text))
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
