package surge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrHospitalNotFound = errors.New("hospital not found")

// HospitalRef identifies a hospital the monitor and overview forecast.
type HospitalRef struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Region string    `json:"region,omitempty"`
}

// HistoryRepository reads arrival history.
type HistoryRepository interface {
	// HourlyArrivals returns one sample per hour in [since, until), including
	// hours without arrivals.
	HourlyArrivals(ctx context.Context, hospitalID uuid.UUID, since, until time.Time) ([]Sample, error)
	GetHospital(ctx context.Context, id uuid.UUID) (*HospitalRef, error)
	ListActiveHospitals(ctx context.Context) ([]HospitalRef, error)
}
