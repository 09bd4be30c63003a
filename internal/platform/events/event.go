// Package events fans triage notifications out to brokers and dashboards.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	PatientEscalated = "patient:escalated"
	CrowdSurge       = "crowd:surge"
)

// GovernmentTopic receives region wide surge alerts.
const GovernmentTopic = "government"

// HospitalTopic is the per-hospital dashboard topic.
func HospitalTopic(hospitalID string) string {
	return "hospital:" + hospitalID
}

// Event is one notification. Data carries the type specific payload.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	HospitalID string          `json:"hospitalId,omitempty"`
	PatientID  string          `json:"patientId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// New builds an event with a fresh id and the payload encoded as JSON.
func New(typ, topic string, payload any) (Event, error) {
	evt := Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		evt.Data = data
	}
	return evt, nil
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Multi publishes to every destination and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
