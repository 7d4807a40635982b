package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubject prefixes every forwarded event
const DefaultSubject = "toposync.events"

// NATSConfig locates the NATS server
type NATSConfig struct {
	URL     string
	Subject string
	Name    string
}

// NATSForwarder publishes bus events to NATS on <subject>.<event type>
type NATSForwarder struct {
	conn    *nats.Conn
	subject string
	log     zerolog.Logger
}

var _ Publisher = (*NATSForwarder)(nil)

// NewNATSForwarder connects to the server. Reconnects are left to the
// client library.
func NewNATSForwarder(cfg NATSConfig, log zerolog.Logger) (*NATSForwarder, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Name == "" {
		cfg.Name = "toposync"
	}
	log = log.With().Str("component", "nats").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from nats")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("reconnected to nats")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}
	log.Info().Str("url", conn.ConnectedUrl()).Str("subject", cfg.Subject).Msg("connected to nats")
	return &NATSForwarder{conn: conn, subject: cfg.Subject, log: log}, nil
}

// Subject returns the subject an event type is published on
func (f *NATSForwarder) Subject(t Type) string {
	return f.subject + "." + string(t)
}

// Publish sends one event. Failures are logged; the run never waits on NATS.
func (f *NATSForwarder) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		f.log.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to marshal event")
		return
	}
	if err := f.conn.Publish(f.Subject(event.Type), data); err != nil {
		f.log.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to publish event")
	}
}

// Forward relays every bus event to NATS until ctx is done, then flushes
func (f *NATSForwarder) Forward(ctx context.Context, bus *Bus) {
	ch := make(chan Event, 256)
	bus.Subscribe(ch)
	defer bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			if err := f.conn.FlushTimeout(2 * time.Second); err != nil {
				f.log.Debug().Err(err).Msg("flush on shutdown")
			}
			return
		case e := <-ch:
			f.Publish(e)
		}
	}
}

// Close drains the connection
func (f *NATSForwarder) Close() error {
	return f.conn.Drain()
}
