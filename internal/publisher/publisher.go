// Package publisher emits order events on the message bus. Publishing is
// fire-and-forget: no queueing, no retries, no delivery guarantee.
package publisher

import (
	"context"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"order-service/internal/telemetry"
)

// Connection states reported by Status.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Publisher is the event publishing capability. When the bus is unavailable
// at start-up the service runs with Noop instead.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Status() string
	Close()
}

// Connect dials the NATS server at url. An empty url or a failed dial yields
// a Noop publisher; the service keeps running without events.
func Connect(url, name string, timeout time.Duration, logger *logrus.Entry) Publisher {
	l := logger.WithField("component", "publisher")
	if url == "" {
		l.Warn("NATS_URL not set, event publishing disabled")
		return Noop{}
	}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.WithError(err).Warn("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Infof("Reconnected to NATS at %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		l.WithError(err).Errorf("Failed to connect to NATS at %s, event publishing disabled", url)
		return Noop{}
	}
	l.Infof("Connected to NATS server at %s", url)
	return &NATS{nc: nc, log: l}
}

// NATS publishes on a core NATS connection. The trace context of the
// publishing request travels in the message headers.
type NATS struct {
	nc  *nats.Conn
	log *logrus.Entry
}

// Publish sends data on subject. Core NATS gives no delivery guarantee; an
// error means the message never left this process.
func (p *NATS) Publish(ctx context.Context, subject string, data []byte) error {
	return p.nc.PublishMsg(newMsg(ctx, subject, data))
}

// Status reports StatusConnected only while the connection is up.
func (p *NATS) Status() string {
	if p.nc.Status() == nats.CONNECTED {
		return StatusConnected
	}
	return StatusDisconnected
}

// Close drains pending messages and closes the connection.
func (p *NATS) Close() {
	p.log.Info("Draining NATS connection...")
	if err := p.nc.Drain(); err != nil {
		p.log.WithError(err).Error("Error draining NATS connection")
	}
}

func newMsg(ctx context.Context, subject string, data []byte) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = data
	telemetry.InjectHTTP(ctx, http.Header(msg.Header))
	return msg
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }
func (Noop) Status() string                                { return StatusDisconnected }
func (Noop) Close()                                        {}
