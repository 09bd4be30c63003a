package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events on <prefix>.<type>[.<hospital>] subjects,
// e.g. triage.patient.escalated.42.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
	MaxReconnects int
}

func NewNATSPublisher(cfg NATSConfig, logger zerolog.Logger) (*NATSPublisher, error) {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
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
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return newNATSPublisher(conn, cfg.SubjectPrefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(evt Event) string {
	parts := make([]string, 0, 3)
	if p.prefix != "" {
		parts = append(parts, p.prefix)
	}
	parts = append(parts, subjectToken(evt.Type))
	if evt.HospitalID != "" {
		parts = append(parts, subjectToken(evt.HospitalID))
	}
	return strings.Join(parts, ".")
}

func (p *NATSPublisher) Publish(_ context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(evt), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close drains pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// subjectToken maps ':' separators and NATS wildcard characters to '.'
// or '_' so an id cannot widen a subscription.
func subjectToken(s string) string {
	return strings.NewReplacer(":", ".", " ", "_", "*", "_", ">", "_").Replace(s)
}
