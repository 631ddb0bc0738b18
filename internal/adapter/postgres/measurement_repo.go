package postgres

import (
	"context"
	"database/sql"
	"time"

	"soma/internal/domain"
)

var _ domain.MeasurementRepository = (*DB)(nil)

// ListMeasurements returns the user's measurements, newest date first.
func (d *DB) ListMeasurements(ctx context.Context, userID int64) ([]domain.Measurement, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT id, user_id, date, weight, waist, chest, arm, leg, created_at FROM measurements WHERE user_id = $1 ORDER BY date DESC, id DESC;",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Measurement, 0)
	for rows.Next() {
		var (
			m                              domain.Measurement
			weight, waist, chest, arm, leg sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Date, &weight, &waist, &chest, &arm, &leg, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Weight, m.Waist, m.Chest, m.Arm, m.Leg = weight.Float64, waist.Float64, chest.Float64, arm.Float64, leg.Float64
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMeasurement inserts a measurement owned by userID.
func (d *DB) AddMeasurement(ctx context.Context, userID int64, m domain.Measurement, createdAt time.Time) (int64, error) {
	var id int64
	err := d.sql.QueryRowContext(ctx,
		"INSERT INTO measurements(user_id, date, weight, waist, chest, arm, leg, created_at) VALUES($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id;",
		userID, m.Date, m.Weight, m.Waist, m.Chest, m.Arm, m.Leg, createdAt.UTC(),
	).Scan(&id)
	return id, err
}

// UpdateMeasurement overwrites one of the user's measurements.
func (d *DB) UpdateMeasurement(ctx context.Context, userID int64, m domain.Measurement) error {
	res, err := d.sql.ExecContext(ctx,
		"UPDATE measurements SET date=$1, weight=$2, waist=$3, chest=$4, arm=$5, leg=$6 WHERE id=$7 AND user_id=$8;",
		m.Date, m.Weight, m.Waist, m.Chest, m.Arm, m.Leg, m.ID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrMeasurementNotFound
	}
	return nil
}

// DeleteMeasurement removes one of the user's measurements. Missing rows are ignored.
func (d *DB) DeleteMeasurement(ctx context.Context, userID int64, id int64) error {
	_, err := d.sql.ExecContext(ctx, "DELETE FROM measurements WHERE id=$1 AND user_id=$2;", id, userID)
	return err
}
