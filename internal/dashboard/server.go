// Package dashboard serves the story tree as a JSON API with a live event
// stream and a scheduled health scan.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/storytree/internal/logging"
	"github.com/zulandar/storytree/internal/notify"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB             *gorm.DB
	Port           int
	Out            io.Writer
	Logger         *slog.Logger
	Notifier       notify.Notifier
	HealthSchedule string // cron expression; empty disables the scan
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("dashboard: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	s := newServer(opts.DB, opts.Logger, opts.Notifier)
	router := s.router()

	if opts.HealthSchedule != "" {
		c, err := s.monitor.Schedule(opts.HealthSchedule)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		defer c.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}
	opts.Logger.Info("dashboard listening", "port", opts.Port, "health_schedule", opts.HealthSchedule)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// server bundles what the handlers share.
type server struct {
	db       *gorm.DB
	log      *slog.Logger
	notifier notify.Notifier
	hub      *hub
	monitor  *HealthMonitor
}

func newServer(db *gorm.DB, logger *slog.Logger, n notify.Notifier) *server {
	if n == nil {
		n = notify.Nop{}
	}
	logger = logger.With("component", "dashboard")
	h := newHub()
	return &server{
		db:       db,
		log:      logger,
		notifier: n,
		hub:      h,
		monitor:  NewHealthMonitor(db, n, logger, h),
	}
}

// NewHandler returns the API handler without starting a listener or the
// health schedule.
func NewHandler(db *gorm.DB, logger *slog.Logger, n notify.Notifier) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return newServer(db, logger, n).router()
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))
	registerRoutes(r, s)
	return r
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
