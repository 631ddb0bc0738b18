// Package domain contains the core business entities, ports and the pure
// functions that derive progress figures from a measurement series.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for Measurement.Date.
const DateLayout = "2006-01-02"

// ErrMeasurementNotFound is returned when an update targets an id that does
// not exist (or belongs to another user).
var ErrMeasurementNotFound = errors.New("measurement not found")

// Measurement is one dated record of the five tracked body metrics.
// An ID of zero marks a measurement that has not been stored yet.
type Measurement struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId,omitempty"`
	Date      string    `json:"date"`
	Weight    float64   `json:"weight"`
	Chest     float64   `json:"chest"`
	Waist     float64   `json:"waist"`
	Arm       float64   `json:"arm"`
	Leg       float64   `json:"leg"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Day parses the measurement date as a UTC calendar day.
func (m Measurement) Day() (time.Time, error) {
	return time.Parse(DateLayout, m.Date)
}

// Validate checks the date format and rejects negative values.
func (m Measurement) Validate() error {
	if _, err := m.Day(); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %q", m.Date)
	}
	for _, metric := range Metrics {
		if metric.Value(m) < 0 {
			return fmt.Errorf("%s must not be negative", metric)
		}
	}
	return nil
}

// MeasurementStore is the port for a single measurement collection. The
// embedded snapshot store and the remote API client both implement it.
//
// List returns rows ordered by date, most recent first. Add returns the
// generated id. Update returns ErrMeasurementNotFound for an unknown id;
// Remove of an unknown id is a no-op.
type MeasurementStore interface {
	List(ctx context.Context) ([]Measurement, error)
	Add(ctx context.Context, m Measurement) (int64, error)
	Update(ctx context.Context, m Measurement) error
	Remove(ctx context.Context, id int64) error
}

// MeasurementRepository is the multi-user persistence port used by the server.
type MeasurementRepository interface {
	ListMeasurements(ctx context.Context, userID int64) ([]Measurement, error)
	AddMeasurement(ctx context.Context, userID int64, m Measurement, createdAt time.Time) (int64, error)
	UpdateMeasurement(ctx context.Context, userID int64, m Measurement) error
	DeleteMeasurement(ctx context.Context, userID int64, id int64) error
}
