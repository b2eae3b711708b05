package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "missions.events"

// Connect dials NATS with reconnect settings suited to a long-running bot.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("household-missions"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

// NATSForwarder publishes every bus event to <prefix>.<type> as JSON so notification
// services outside this process can react to completions and level-ups.
type NATSForwarder struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
}

func NewNATSForwarder(conn *nats.Conn, prefix string, logger *slog.Logger) *NATSForwarder {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSForwarder{conn: conn, prefix: prefix, log: logger}
}

// Subject returns the subject an event type is published on.
func (f *NATSForwarder) Subject(t Type) string {
	return f.prefix + "." + string(t)
}

// Attach subscribes the forwarder to every event on bus.
func (f *NATSForwarder) Attach(bus *Bus) {
	bus.SubscribeAll(f.Handle)
}

// Handle publishes one event. Failures are logged; the in-process flow never depends
// on the external subscribers.
func (f *NATSForwarder) Handle(_ context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		f.log.Error("marshal event", slog.String("event_id", ev.ID), slog.String("error", err.Error()))
		return
	}
	msg := nats.NewMsg(f.Subject(ev.Type))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	if err := f.conn.PublishMsg(msg); err != nil {
		f.log.Warn("publish event", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
	}
}
