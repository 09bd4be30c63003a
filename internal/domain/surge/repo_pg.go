package surge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type historyRepoPG struct{ db queryable }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository { return &historyRepoPG{db: pool} }

func (r *historyRepoPG) conn() queryable { return r.db }

const hourlyArrivalsSQL = `
	SELECT h.bucket, COUNT(p.id)
	FROM generate_series(
		date_trunc('hour', $2::timestamptz),
		date_trunc('hour', $3::timestamptz) - interval '1 hour',
		interval '1 hour') AS h(bucket)
	LEFT JOIN patients p
		ON p.hospital_id = $1
		AND p.arrived_at >= h.bucket
		AND p.arrived_at < h.bucket + interval '1 hour'
	GROUP BY h.bucket
	ORDER BY h.bucket`

func (r *historyRepoPG) HourlyArrivals(ctx context.Context, hospitalID uuid.UUID, since, until time.Time) ([]Sample, error) {
	rows, err := r.conn().Query(ctx, hourlyArrivalsSQL, hospitalID, since, until)
	if err != nil {
		return nil, fmt.Errorf("query hourly arrivals: %w", err)
	}
	defer rows.Close()
	var out []Sample
	for rows.Next() {
		var (
			bucket time.Time
			count  int64
		)
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan hourly arrivals: %w", err)
		}
		out = append(out, Sample{Timestamp: bucket, PatientCount: float64(count)})
	}
	return out, rows.Err()
}

func (r *historyRepoPG) GetHospital(ctx context.Context, id uuid.UUID) (*HospitalRef, error) {
	var h HospitalRef
	err := r.conn().QueryRow(ctx, `SELECT id, name, region FROM hospitals WHERE id = $1`, id).
		Scan(&h.ID, &h.Name, &h.Region)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHospitalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hospital: %w", err)
	}
	return &h, nil
}

func (r *historyRepoPG) ListActiveHospitals(ctx context.Context) ([]HospitalRef, error) {
	rows, err := r.conn().Query(ctx, `SELECT id, name, region FROM hospitals WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list hospitals: %w", err)
	}
	defer rows.Close()
	var out []HospitalRef
	for rows.Next() {
		var h HospitalRef
		if err := rows.Scan(&h.ID, &h.Name, &h.Region); err != nil {
			return nil, fmt.Errorf("scan hospital: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
