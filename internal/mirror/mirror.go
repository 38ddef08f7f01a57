// Package mirror copies registrations and new restaurants to an external
// append-only log. It is best effort: nothing on the reply path waits for it.
package mirror

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uvolbolmasin/boxbot/internal/models"
)

// Sink appends one record to the external log.
type Sink interface {
	AppendUser(ctx context.Context, u models.User, username string, at time.Time) error
	AppendRestaurant(ctx context.Context, r models.Restaurant, at time.Time) error
}

// Recorder is what the bot sees of the mirror.
type Recorder interface {
	RecordUser(u models.User, username string)
	RecordRestaurant(r models.Restaurant)
}

type recordKind int

const (
	kindUser recordKind = iota
	kindRestaurant
)

type record struct {
	kind       recordKind
	user       models.User
	username   string
	restaurant models.Restaurant
	at         time.Time
}

type Config struct {
	QueueSize  int
	MaxRetries int
	BaseDelay  time.Duration
}

// Mirror drains a bounded queue into a Sink from a single worker.
type Mirror struct {
	sink       Sink
	log        *zap.Logger
	queue      chan record
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	now    func() time.Time
}

// New starts the worker. Call Close on shutdown.
func New(sink Sink, cfg Config, log *zap.Logger) *Mirror {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Mirror{
		sink:       sink,
		log:        log.Named("mirror"),
		queue:      make(chan record, cfg.QueueSize),
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.BaseDelay * 16,
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}

	m.wg.Add(1)
	go m.run()
	return m
}

func (m *Mirror) RecordUser(u models.User, username string) {
	m.enqueue(record{kind: kindUser, user: u, username: username, at: m.now()})
}

func (m *Mirror) RecordRestaurant(r models.Restaurant) {
	m.enqueue(record{kind: kindRestaurant, restaurant: r, at: m.now()})
}

func (m *Mirror) enqueue(rec record) {
	if m.ctx.Err() != nil {
		return
	}
	select {
	case m.queue <- rec:
	default:
		m.log.Warn("mirror queue full, dropping record", zap.Int("kind", int(rec.kind)))
	}
}

// Close stops the worker. Records still queued are dropped.
func (m *Mirror) Close() {
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

func (m *Mirror) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			if n := len(m.queue); n > 0 {
				m.log.Info("mirror stopped with pending records", zap.Int("dropped", n))
			}
			return
		case rec := <-m.queue:
			m.deliver(rec)
		}
	}
}

func (m *Mirror) deliver(rec record) {
	for attempt := 0; ; attempt++ {
		err := m.write(rec)
		if err == nil {
			return
		}
		if attempt >= m.maxRetries || m.ctx.Err() != nil {
			m.log.Error("mirror write failed, dropping record",
				zap.Int("kind", int(rec.kind)), zap.Int("attempts", attempt+1), zap.Error(err))
			return
		}

		delay := m.backoff(attempt)
		m.log.Warn("mirror write failed, retrying", zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-time.After(delay):
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Mirror) write(rec record) error {
	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	switch rec.kind {
	case kindUser:
		return m.sink.AppendUser(ctx, rec.user, rec.username, rec.at)
	default:
		return m.sink.AppendRestaurant(ctx, rec.restaurant, rec.at)
	}
}

// backoff is base * 2^attempt with up to 25% jitter either way, capped.
func (m *Mirror) backoff(attempt int) time.Duration {
	d := m.baseDelay << attempt
	if d <= 0 || d > m.maxDelay {
		d = m.maxDelay
	}
	if quarter := int64(d / 4); quarter > 0 {
		d += time.Duration(rand.Int63n(2*quarter) - quarter)
	}
	return d
}

// Nop discards records. Used when mirroring is disabled.
type Nop struct{}

func (Nop) RecordUser(models.User, string)     {}
func (Nop) RecordRestaurant(models.Restaurant) {}
