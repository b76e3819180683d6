// Package server runs the HTTP listener: the Telegram webhook, a health
// check and the Prometheus endpoint.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/config"
	"github.com/bandcoach/bandcoach/internal/metrics"
	"github.com/bandcoach/bandcoach/internal/telegram"
)

// WebhookPath is the route Telegram posts updates to.
const WebhookPath = "/telegram/webhook/:secret"

// Webhook decodes one update request.
type Webhook interface {
	HandleWebhook(ctx context.Context, r *http.Request, sink telegram.Sink) error
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the handlers. Webhook may be nil when the bot long-polls.
type Options struct {
	Webhook Webhook
	Secret  string
	Sink    telegram.Sink
	DB      Pinger
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

// Server owns the HTTP listener.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	log             *zap.Logger
}

// New builds the router and listener. Nothing is bound until Run.
func New(cfg config.HTTPConfig, o Options) *Server {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(o),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             o.Log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	return <-errCh
}

// NewRouter returns the gin engine serving every route.
func NewRouter(o Options) *gin.Engine {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(o.Log))
	if o.Metrics != nil {
		r.Use(o.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(o.Metrics.Handler()))
	}
	r.GET("/healthz", health(o.DB))
	if o.Webhook != nil {
		r.POST(WebhookPath, webhook(o))
	}
	return r
}

func health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func webhook(o Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(o.Secret)) != 1 {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		// The engine outlives the request.
		ctx := context.WithoutCancel(c.Request.Context())
		if err := o.Webhook.HandleWebhook(ctx, c.Request, o.Sink); err != nil {
			o.Log.Warn("bad webhook update", zap.Error(err))
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		// Dropped updates are still acknowledged so Telegram does not retry.
		c.Status(http.StatusOK)
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
