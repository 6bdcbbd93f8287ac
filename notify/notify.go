// Package notify delivers evaluation reports to chat webhooks and NATS.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/semaudit/aggregation"
	"github.com/c360studio/semaudit/report"
)

// Notifier delivers one report.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, run report.Run, rep *aggregation.Report) error
}

// Multi fans a report out to several notifiers. A failing notifier is
// logged and does not stop the others.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti creates a fan-out notifier. Nil entries are ignored.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Name implements Notifier.
func (m *Multi) Name() string { return "multi" }

// Len returns the number of configured notifiers.
func (m *Multi) Len() int { return len(m.notifiers) }

// Notify sends the report to every notifier and joins their errors.
func (m *Multi) Notify(ctx context.Context, run report.Run, rep *aggregation.Report) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, run, rep); err != nil {
			m.logger.Warn("Notification failed",
				"notifier", n.Name(),
				"run_id", run.ID,
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		m.logger.Debug("Notification sent", "notifier", n.Name(), "run_id", run.ID)
	}
	return errors.Join(errs...)
}
