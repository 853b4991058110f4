package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/oshokin/warehouse-alarms/internal/logger"
	"github.com/oshokin/warehouse-alarms/internal/version"
)

const (
	natsMaxReconnects = 10
	natsReconnectWait = 2 * time.Second
)

// Publisher is the subset of a NATS connection used by NATSNotifier.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes each event as JSON to "<prefix>.<kind>".
type NATSNotifier struct {
	// publisher sends messages.
	publisher Publisher
	// prefix is the subject prefix.
	prefix string
	// conn is set when the notifier owns the connection.
	conn *nats.Conn
}

// NewNATSNotifier wraps an existing publisher.
func NewNATSNotifier(publisher Publisher, prefix string) *NATSNotifier {
	return &NATSNotifier{publisher: publisher, prefix: prefix}
}

// DialNATS connects to natsURL and returns a notifier owning the connection.
func DialNATS(ctx context.Context, natsURL, prefix string) (*NATSNotifier, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name(version.UserAgent()),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.InfoKV(ctx, "Connected to NATS", "url", natsURL, "subject_prefix", prefix)

	n := NewNATSNotifier(conn, prefix)
	n.conn = conn

	return n, nil
}

// Subject returns the subject an event kind is published to.
func (n *NATSNotifier) Subject(kind EventKind) string {
	return n.prefix + "." + string(kind)
}

// Notify publishes every event and joins the failures.
func (n *NATSNotifier) Notify(_ context.Context, events []Event) error {
	var errs []error

	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s: %w", e.Alarm.ID, err))

			continue
		}

		if err = n.publisher.Publish(n.Subject(e.Kind), data); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", e.Alarm.ID, err))
		}
	}

	return errors.Join(errs...)
}

// Close drains the owned connection, if any.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		_ = n.conn.Drain()
	}
}
