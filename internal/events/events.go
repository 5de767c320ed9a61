// Package events publishes action lifecycle records and transcript messages to NATS so
// other processes (dashboards, phone bridges) can follow the assistant.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to every subject.
const DefaultSubjectPrefix = "jarvis"

// Conn is the part of a NATS connection the publisher uses.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Publisher sends JSON-encoded events on core NATS subjects:
//
//	<prefix>.actions.<kind>.<event>
//	<prefix>.messages.<role>
type Publisher struct {
	conn   Conn
	nc     *nats.Conn
	prefix string
}

// Connect dials NATS and returns a Publisher.
func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("jarvispipe"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("Publisher: NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("Publisher: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	slog.Info("Publisher: connected to NATS", "url", url)
	p := NewPublisher(nc, DefaultSubjectPrefix)
	p.nc = nc
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// RecordAction publishes an action lifecycle record.
func (p *Publisher) RecordAction(_ context.Context, rec models.ActionRecord) error {
	return p.publish(fmt.Sprintf("%s.actions.%s.%s", p.prefix, rec.Kind, rec.Event), rec)
}

// PublishMessage publishes a committed conversation message.
func (p *Publisher) PublishMessage(session string, msg models.Message) error {
	return p.publish(fmt.Sprintf("%s.messages.%s", p.prefix, msg.Role), struct {
		Session string         `json:"session"`
		Message models.Message `json:"message"`
	}{session, msg})
}

func (p *Publisher) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing %s: %w", subject, err)
	}
	slog.Debug("Publisher.publish: event sent", "subject", subject)
	return nil
}

// Close drains the connection opened by Connect.
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		slog.Warn("Publisher.Close: draining NATS connection", "error", err)
	}
}

// ActionRecorder receives action lifecycle records.
type ActionRecorder interface {
	RecordAction(ctx context.Context, rec models.ActionRecord) error
}

// Recorders fans a record out to every recorder and joins their errors.
type Recorders []ActionRecorder

func (rs Recorders) RecordAction(ctx context.Context, rec models.ActionRecord) error {
	var errs []error
	for _, r := range rs {
		if err := r.RecordAction(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
