package surge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rowFunc func(dest ...interface{}) error

func (f rowFunc) Scan(dest ...interface{}) error { return f(dest...) }

type stubDB struct {
	queryErr error
	row      pgx.Row
}

func (s *stubDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, s.queryErr
}

func (s *stubDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return s.row
}

func TestHistoryRepoPG_GetHospital(t *testing.T) {
	repo := &historyRepoPG{db: &stubDB{row: rowFunc(func(dest ...interface{}) error {
		*dest[0].(*uuid.UUID) = busyID
		*dest[1].(*string) = "General"
		*dest[2].(*string) = "north"
		return nil
	})}}

	h, err := repo.GetHospital(context.Background(), busyID)
	require.NoError(t, err)
	assert.Equal(t, busyID, h.ID)
	assert.Equal(t, "General", h.Name)
	assert.Equal(t, "north", h.Region)
}

func TestHistoryRepoPG_GetHospitalNotFound(t *testing.T) {
	repo := &historyRepoPG{db: &stubDB{row: rowFunc(func(...interface{}) error { return pgx.ErrNoRows })}}

	_, err := repo.GetHospital(context.Background(), busyID)
	assert.ErrorIs(t, err, ErrHospitalNotFound)
}

func TestHistoryRepoPG_WrapsErrors(t *testing.T) {
	down := errors.New("connection refused")
	repo := &historyRepoPG{db: &stubDB{
		queryErr: down,
		row:      rowFunc(func(...interface{}) error { return down }),
	}}
	ctx := context.Background()

	_, err := repo.GetHospital(ctx, busyID)
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, ErrHospitalNotFound)

	_, err = repo.HourlyArrivals(ctx, busyID, refNow.Add(-24*time.Hour), refNow)
	assert.ErrorIs(t, err, down)

	_, err = repo.ListActiveHospitals(ctx)
	assert.ErrorIs(t, err, down)
}
