// Package health serves the liveness probe the hosting platform pings, and
// the Telegram webhook when the bot runs in webhook mode.
package health

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/uvolbolmasin/boxbot/internal/config"
)

const aliveText = "Bot is alive"

// SecretHeader carries the secret_token given to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dispatcher accepts updates pushed by Telegram.
type Dispatcher interface {
	Dispatch(u tgbotapi.Update)
}

type Options struct {
	DB     Pinger
	Logger *zap.Logger
	// WebhookPath, WebhookSecret and Updates are set in webhook mode only.
	// The webhook route is not registered without a secret.
	WebhookPath   string
	WebhookSecret string
	Updates       Dispatcher
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(Logger(opts.Logger), gin.Recovery())

	alive := func(c *gin.Context) { c.String(http.StatusOK, aliveText) }
	r.GET("/", alive)
	r.HEAD("/", alive)
	r.GET("/healthz", alive)

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := opts.DB.Ping(ctx); err != nil {
			opts.Logger.Warn("readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.Updates != nil && opts.WebhookPath != "" && opts.WebhookSecret != "" {
		r.POST(opts.WebhookPath, webhook(opts.Updates, opts.WebhookSecret, opts.Logger))
	}
	return r
}

// webhook acknowledges every well-formed update at once; handling happens
// on the bot's workers. Requests without the registered secret are refused
// before the body is read.
func webhook(d Dispatcher, secret string, log *zap.Logger) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(SecretHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			log.Warn("webhook request with a bad secret token")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		var u tgbotapi.Update
		if err := c.ShouldBindJSON(&u); err != nil {
			log.Warn("malformed webhook payload", zap.Error(err))
			c.Status(http.StatusBadRequest)
			return
		}
		d.Dispatch(u)
		c.Status(http.StatusOK)
	}
}

// Logger logs every request after it is served.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= 400 {
			log.Warn("request failed", fields...)
		} else {
			log.Debug("request served", fields...)
		}
	}
}

type Server struct {
	httpServer *http.Server
}

func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ReadHeaderTimeout: 3 * time.Second,
	}}
}

// Run blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
