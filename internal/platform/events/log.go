package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the structured log. It is always wired so
// escalations leave a trace even without a broker.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event_id", evt.ID).
		Str("type", evt.Type).
		Str("topic", evt.Topic).
		Str("hospital_id", evt.HospitalID).
		Str("patient_id", evt.PatientID).
		RawJSON("data", dataOrNull(evt.Data)).
		Msg("event published")
	return nil
}

func dataOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
