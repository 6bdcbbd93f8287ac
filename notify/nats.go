package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/semaudit/aggregation"
	"github.com/c360studio/semaudit/report"
	"github.com/c360studio/semstreams/message"
)

// DefaultSubjectPrefix is the subject prefix reports are published under.
const DefaultSubjectPrefix = "semaudit.report"

// Publisher is the subset of *nats.Conn used to publish reports.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes reports as BaseMessage envelopes on
// <prefix>.<run_id>.
type NATSPublisher struct {
	pub    Publisher
	prefix string
	conn   *nats.Conn
}

// NewNATSPublisher wraps an existing publisher.
func NewNATSPublisher(pub Publisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{pub: pub, prefix: prefix}
}

// ConnectNATS dials the server and returns a publisher owning the connection.
func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("semaudit"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	p := NewNATSPublisher(conn, prefix)
	p.conn = conn
	return p, nil
}

// Name implements Notifier.
func (p *NATSPublisher) Name() string { return "nats" }

// Subject returns the subject a run is published on.
func (p *NATSPublisher) Subject(runID string) string {
	return p.prefix + "." + runID
}

// Notify implements Notifier.
func (p *NATSPublisher) Notify(ctx context.Context, run report.Run, rep *aggregation.Report) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}

	payload := NewReportPayload(run, rep)
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid report payload: %w", err)
	}

	baseMsg := message.NewBaseMessage(ReportType, payload, "semaudit")
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal report message: %w", err)
	}

	subject := p.Subject(run.ID)
	if err := p.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	if p.conn != nil {
		if err := p.conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("flush %s: %w", subject, err)
		}
	}
	return nil
}

// Close drains the owned connection, if any.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
