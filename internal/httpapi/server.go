// Package httpapi exposes availability checks, subscriptions and dispatch
// history as a small JSON API.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"seatwatch/internal/availability"
	"seatwatch/internal/notifier"
	logx "seatwatch/pkg/logx"
)

const (
	defaultAddr         = "127.0.0.1:8080"
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
)

// Availability is the facade the handlers call into.
type Availability interface {
	ResolveTerm(ctx context.Context, term string) (string, error)
	CheckAvailability(ctx context.Context, term, subject, catalog, section string) ([]availability.SectionView, error)
	Subscribe(ctx context.Context, email, term, subject, catalog, section string) (availability.SubscribeResult, error)
}

// History lists recent dispatch outcomes.
type History interface {
	History() []notifier.HistoryItem
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	cfg    Config
	router *gin.Engine
	svc    Availability
	hist   History
	log    logx.Logger
}

func New(cfg Config, svc Availability, hist History, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:    cfg,
		router: gin.New(),
		svc:    svc,
		hist:   hist,
		log:    log.With(logx.String("comp", "http")),
	}
	s.router.Use(recovery(s.log), requestLog(s.log))
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		api.POST("/availability", s.handleAvailability())
		api.POST("/subscriptions", s.handleSubscribe())
		api.GET("/notifications", s.handleNotifications())
	}
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn("http shutdown error", logx.Err(err))
		}
	})
	defer stop()

	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
