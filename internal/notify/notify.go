// Package notify posts story tree events to chat platforms.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zulandar/storytree/internal/config"
	"github.com/zulandar/storytree/internal/logging"
)

// Severity drives the sidebar colour of a posted event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Sidebar colours per severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Color returns the sidebar colour for s.
func (s Severity) Color() string {
	switch s {
	case SeveritySuccess:
		return ColorSuccess
	case SeverityWarning:
		return ColorWarning
	case SeverityError:
		return ColorError
	default:
		return ColorInfo
	}
}

// Field is a key-value pair shown with an event.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Event is a single notification.
type Event struct {
	Title    string
	Body     string
	Severity Severity
	Fields   []Field
}

// Notifier delivers events somewhere.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the notifiers enabled in cfg. With none enabled it
// returns Nop.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger) (Notifier, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var out Multi
	if cfg.Slack.Enabled() {
		s, err := NewSlack(cfg.Slack, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if cfg.Discord.Enabled() {
		d, err := NewDiscord(cfg.Discord, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	switch len(out) {
	case 0:
		return Nop{}, nil
	case 1:
		return out[0], nil
	}
	return out, nil
}

const maxRetries = 3

// backoff returns the wait before retry attempt, doubling from base up to
// limit.
func backoff(attempt int, base, limit time.Duration) time.Duration {
	wait := base << attempt
	if wait > limit || wait <= 0 {
		return limit
	}
	return wait
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
