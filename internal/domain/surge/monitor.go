package surge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edtriage/edtriage/internal/platform/events"
)

// SurgeAlert is the payload of a crowd:surge event.
type SurgeAlert struct {
	Hospital        HospitalRef      `json:"hospital"`
	PeakTime        time.Time        `json:"peakTime"`
	PeakCount       int              `json:"peakCount"`
	Threshold       float64          `json:"threshold"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Monitor periodically forecasts every active hospital and publishes a
// crowd:surge event for each predicted surge.
type Monitor struct {
	svc        *Service
	publisher  events.Publisher
	interval   time.Duration
	hoursAhead int
	logger     zerolog.Logger
}

func NewMonitor(svc *Service, publisher events.Publisher, interval time.Duration, hoursAhead int, logger zerolog.Logger) *Monitor {
	return &Monitor{
		svc:        svc,
		publisher:  publisher,
		interval:   interval,
		hoursAhead: hoursAhead,
		logger:     logger.With().Str("component", "surge-monitor").Logger(),
	}
}

// Run checks immediately and then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info().Dur("interval", m.interval).Msg("surge monitor started")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if n, err := m.RunOnce(ctx); err != nil {
			m.logger.Error().Err(err).Msg("surge check failed")
		} else {
			m.logger.Debug().Int("surges", n).Msg("surge check complete")
		}
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("surge monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce forecasts all hospitals and publishes alerts. It returns the number
// of surges found.
func (m *Monitor) RunOnce(ctx context.Context) (int, error) {
	overview, err := m.svc.Overview(ctx, m.hoursAhead)
	if err != nil {
		return 0, err
	}
	surges := 0
	for _, hf := range overview {
		f := hf.Forecast
		if !f.SurgeDetected || f.Peak == nil {
			continue
		}
		surges++
		alert := SurgeAlert{
			Hospital:        hf.Hospital,
			PeakTime:        f.Peak.Timestamp,
			PeakCount:       f.Peak.PredictedCount,
			Threshold:       f.SurgeThreshold,
			Recommendations: f.Recommendations,
		}
		m.logger.Warn().
			Str("hospital_id", hf.Hospital.ID.String()).
			Int("peak_count", alert.PeakCount).
			Time("peak_time", alert.PeakTime).
			Msg("surge predicted")
		m.publish(ctx, events.HospitalTopic(hf.Hospital.ID.String()), alert)
		m.publish(ctx, events.GovernmentTopic, alert)
	}
	return surges, nil
}

func (m *Monitor) publish(ctx context.Context, topic string, alert SurgeAlert) {
	if m.publisher == nil {
		return
	}
	evt, err := events.New(events.CrowdSurge, topic, alert)
	if err != nil {
		m.logger.Error().Err(err).Msg("build surge event")
		return
	}
	evt.HospitalID = alert.Hospital.ID.String()
	if err := m.publisher.Publish(ctx, evt); err != nil {
		m.logger.Warn().Err(err).Str("topic", topic).Msg("publish surge event")
	}
}
