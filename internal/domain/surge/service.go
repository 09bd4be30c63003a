package surge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrHistoryUnavailable is returned by stored-history operations when no
// database is configured.
var ErrHistoryUnavailable = errors.New("arrival history is not configured")

const overviewConcurrency = 8

// Recorder receives one observation per forecast.
type Recorder interface {
	ObserveForecast(baseline, surge bool)
}

// HospitalForecast pairs a hospital with its forecast in the overview.
type HospitalForecast struct {
	Hospital HospitalRef `json:"hospital"`
	Forecast *Forecast   `json:"forecast"`
}

type Service struct {
	forecaster  *Forecaster
	history     HistoryRepository
	historyDays int
	recorder    Recorder
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(f *Forecaster, history HistoryRepository, historyDays int, logger zerolog.Logger) *Service {
	if historyDays <= 0 {
		historyDays = 7
	}
	return &Service{
		forecaster:  f,
		history:     history,
		historyDays: historyDays,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Service) SetRecorder(r Recorder) { s.recorder = r }

// SetClock replaces the reference time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) IsReady() bool { return s != nil && s.forecaster.IsReady() }

func (s *Service) HistoryEnabled() bool { return s.history != nil }

func (s *Service) Forecaster() *Forecaster { return s.forecaster }

// Forecast projects caller supplied samples from the current time.
func (s *Service) Forecast(hospitalID string, samples []Sample, hoursAhead int) *Forecast {
	f := s.forecaster.Forecast(samples, hoursAhead, s.now())
	f.HospitalID = hospitalID
	if s.recorder != nil {
		s.recorder.ObserveForecast(f.Baseline, f.SurgeDetected)
	}
	return f
}

// ForecastHospital forecasts from stored arrival history.
func (s *Service) ForecastHospital(ctx context.Context, hospitalID uuid.UUID, hoursAhead int) (*Forecast, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	if _, err := s.history.GetHospital(ctx, hospitalID); err != nil {
		return nil, err
	}
	return s.forecastStored(ctx, hospitalID, hoursAhead)
}

func (s *Service) forecastStored(ctx context.Context, hospitalID uuid.UUID, hoursAhead int) (*Forecast, error) {
	until := s.now().Truncate(time.Hour)
	since := until.Add(-time.Duration(s.historyDays) * 24 * time.Hour)
	samples, err := s.history.HourlyArrivals(ctx, hospitalID, since, until)
	if err != nil {
		return nil, fmt.Errorf("load arrivals for %s: %w", hospitalID, err)
	}
	return s.Forecast(hospitalID.String(), samples, hoursAhead), nil
}

// Overview forecasts every active hospital concurrently. Results keep the
// repository's hospital order.
func (s *Service) Overview(ctx context.Context, hoursAhead int) ([]HospitalForecast, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	hospitals, err := s.history.ListActiveHospitals(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]HospitalForecast, len(hospitals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)
	for i, h := range hospitals {
		i, h := i, h
		g.Go(func() error {
			f, err := s.forecastStored(gctx, h.ID, hoursAhead)
			if err != nil {
				return err
			}
			out[i] = HospitalForecast{Hospital: h, Forecast: f}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
