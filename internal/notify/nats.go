package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
)

// ChatMessage is the payload published for every persisted message.
type ChatMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Room      string `json:"room"`
	Seq       uint64 `json:"seq"`
}

// NATSPublisher publishes posted messages to "<subject>.<room>".
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	log     *zerolog.Logger
}

// Connect dials NATS and returns a publisher. Reconnects are retried forever.
func Connect(url, subject string, logger *zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("wirechat-rooms"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Str("subject", subject).Msg("connected to nats")
	return &NATSPublisher{nc: nc, subject: subject, log: logger}, nil
}

// Publish implements core.Publisher. Only posted events are published.
func (p *NATSPublisher) Publish(_ context.Context, ev core.ChatEvent) error {
	if ev.Kind != core.EventPosted {
		return nil
	}
	data, err := json.Marshal(FromEvent(ev))
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	if err := p.nc.Publish(Subject(p.subject, ev.Room), data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
		p.log.Warn().Err(err).Msg("flush nats")
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

// FromEvent converts a posted event to its published form.
func FromEvent(ev core.ChatEvent) ChatMessage {
	return ChatMessage{
		User:      ev.Author,
		Text:      ev.Body,
		Timestamp: ev.Timestamp,
		Room:      ev.Room,
		Seq:       ev.Seq,
	}
}

var subjectReplacer = strings.NewReplacer(
	".", "_",
	"*", "_",
	">", "_",
	" ", "_",
	"\t", "_",
	"\r", "_",
	"\n", "_",
)

// Subject builds the subject for room. Room ids are reduced to a single token
// so they can never add levels or wildcards to the subject.
func Subject(prefix, room string) string {
	token := subjectReplacer.Replace(room)
	if token == "" {
		token = "_"
	}
	return prefix + "." + token
}
