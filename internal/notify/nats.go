package notify

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
)

// NATSOptions configures NewNATSPublisher.
type NATSOptions struct {
	URL     string
	Subject string
	// JetStream publishes with acknowledgement into a stream covering Subject.>.
	JetStream bool
	Timeout   time.Duration
}

// NATSPublisher publishes events to a NATS server.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	host    string
	timeout time.Duration
}

// NewNATSPublisher connects to opts.URL.
func NewNATSPublisher(opts NATSOptions) (*NATSPublisher, error) {
	if opts.URL == "" {
		return nil, errors.ValidationError("nats url is required").Build()
	}
	if opts.Subject == "" {
		opts.Subject = "forpost.events"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name("forpostctl"),
		nats.Timeout(opts.Timeout),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", opts.URL).
			Build()
	}

	host, _ := os.Hostname()
	p := &NATSPublisher{conn: conn, subject: opts.Subject, host: host, timeout: opts.Timeout}

	if opts.JetStream {
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to create JetStream context").Build()
		}
		if err := ensureStream(js, opts.Subject, opts.Timeout); err != nil {
			conn.Close()
			return nil, err
		}
		p.js = js
	}

	slog.Info("NATS publisher initialized", "url", opts.URL, "subject", opts.Subject, "jetstream", opts.JetStream)
	return p, nil
}

func ensureStream(js jetstream.JetStream, subject string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        "FORPOST_EVENTS",
		Description: "forpostctl lifecycle events",
		Subjects:    []string{subject + ".>"},
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    16 * 1024 * 1024,
	})
	if err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to create event stream").
			WithContext("subject", subject).
			Build()
	}
	return nil
}

// Publish sends e on <subject>.<type>.
func (p *NATSPublisher) Publish(ctx context.Context, e eventstore.Event) error {
	data, err := Encode(e, p.host)
	if err != nil {
		return err
	}
	subject := SubjectFor(p.subject, e.Type())

	if p.js != nil {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if _, err := p.js.Publish(ctx, subject, data); err != nil {
			return errors.WrapError(err, errors.CategoryNetwork, "failed to publish event").
				WithContext("subject", subject).
				Build()
		}
	} else if err := p.conn.Publish(subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to publish event").
			WithContext("subject", subject).
			Build()
	}

	slog.Debug("Published event", "subject", subject, "operation_id", e.OperationID())
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
