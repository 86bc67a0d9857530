package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/storytree/internal/notify"
	"github.com/zulandar/storytree/internal/story"
	"gorm.io/gorm"
)

// HealthMonitor runs the tree health scan. It notifies when issues are
// found and once more when the tree recovers; a steady healthy tree stays
// quiet.
type HealthMonitor struct {
	db       *gorm.DB
	notifier notify.Notifier
	log      *slog.Logger
	hub      *hub

	mu          sync.Mutex
	last        *story.HealthReport
	lastHealthy bool
}

// NewHealthMonitor returns a monitor. hub may be nil.
func NewHealthMonitor(db *gorm.DB, n notify.Notifier, logger *slog.Logger, h *hub) *HealthMonitor {
	if n == nil {
		n = notify.Nop{}
	}
	return &HealthMonitor{db: db, notifier: n, log: logger, hub: h, lastHealthy: true}
}

// Run performs one scan.
func (m *HealthMonitor) Run(ctx context.Context) (*story.HealthReport, error) {
	r, err := story.Health(m.db)
	if err != nil {
		m.log.Error("health scan failed", "error", err)
		return nil, err
	}

	m.mu.Lock()
	wasHealthy := m.lastHealthy
	m.last, m.lastHealthy = r, r.Healthy()
	m.mu.Unlock()

	if r.Healthy() {
		m.log.Info("health scan", "status", r.Status, "nodes", r.Stats.TotalNodes)
	} else {
		attrs := []any{"status", r.Status, "issues", r.TotalIssues}
		for _, c := range r.Issues.Categories() {
			if len(c.Issues) > 0 {
				attrs = append(attrs, c.Name, len(c.Issues))
			}
		}
		m.log.Warn("health scan found issues", attrs...)
	}

	if !r.Healthy() || !wasHealthy {
		if err := m.notifier.Notify(ctx, notify.HealthEvent(r)); err != nil {
			m.log.Warn("health notification failed", "error", err)
		}
	}
	if m.hub != nil {
		m.hub.publish("health", r)
	}
	return r, nil
}

// Last returns the most recent report, or nil before the first scan.
func (m *HealthMonitor) Last() *story.HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Schedule runs the scan on a standard five-field cron schedule. The caller
// stops the returned cron.
func (m *HealthMonitor) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		m.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("health schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
