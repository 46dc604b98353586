package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// jetStream is the subset of nats.JetStreamContext used for publishing.
type jetStream interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// NATS publishes events to JetStream under "<prefix>.created" and
// "<prefix>.emergency".
type NATS struct {
	nc     *nats.Conn
	js     jetStream
	prefix string
}

// NewNATS connects to the NATS server at url, retrying in the background if
// it is not reachable yet.
func NewNATS(url, prefix string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("cardiosense-server"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("events: nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("events: nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect nats %q: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("events: jetstream context: %w", err)
	}

	slog.Info("events: connected to nats", "url", url, "subject", prefix)
	return &NATS{nc: nc, js: js, prefix: prefix}, nil
}

// Subject returns the subject e is published on.
func (p *NATS) Subject(e Event) string {
	return p.prefix + "." + e.suffix()
}

// Publish sends e asynchronously; acknowledgement failures are not reported.
func (p *NATS) Publish(_ context.Context, e Event) error {
	data, err := e.encode()
	if err != nil {
		return err
	}
	subject := p.Subject(e)
	if _, err := p.js.PublishAsync(subject, data, nats.MsgId(e.ID)); err != nil {
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}
	slog.Debug("events: published", "subject", subject, "size", len(data))
	return nil
}

// Close drains the connection.
func (p *NATS) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("events: drain nats: %w", err)
	}
	return nil
}
