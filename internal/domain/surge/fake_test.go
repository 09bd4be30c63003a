package surge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type fakeHistory struct {
	mu        sync.Mutex
	hospitals []HospitalRef
	samples   map[uuid.UUID][]Sample
	err       error
	calls     int
	lastSince time.Time
	lastUntil time.Time
}

func (f *fakeHistory) HourlyArrivals(_ context.Context, id uuid.UUID, since, until time.Time) ([]Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSince, f.lastUntil = since, until
	if f.err != nil {
		return nil, f.err
	}
	return f.samples[id], nil
}

func (f *fakeHistory) GetHospital(_ context.Context, id uuid.UUID) (*HospitalRef, error) {
	for _, h := range f.hospitals {
		if h.ID == id {
			h := h
			return &h, nil
		}
	}
	return nil, ErrHospitalNotFound
}

func (f *fakeHistory) ListActiveHospitals(context.Context) ([]HospitalRef, error) {
	return f.hospitals, nil
}

var (
	busyID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	quietID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func quietWeek() []Sample {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Sample, 168)
	for i := range out {
		out[i] = Sample{Timestamp: start.Add(time.Duration(i) * time.Hour), PatientCount: float64(8 + i%3)}
	}
	return out
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		hospitals: []HospitalRef{
			{ID: busyID, Name: "City General", Region: "north"},
			{ID: quietID, Name: "Valley Clinic", Region: "south"},
		},
		samples: map[uuid.UUID][]Sample{
			busyID:  weekWithAfternoonPeak(),
			quietID: quietWeek(),
		},
	}
}
