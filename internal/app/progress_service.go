package app

import (
	"context"
	"errors"
	"time"

	"soma/internal/domain"
)

// ErrInvalidUnit means a chart was requested in a unit other than kg or lb.
var ErrInvalidUnit = errors.New("unit must be \"kg\" or \"lb\"")

// ProgressService derives history, chart and summary views from a store.
type ProgressService struct {
	store domain.MeasurementStore
	now   func() time.Time
}

// NewProgressService creates a ProgressService backed by store.
func NewProgressService(store domain.MeasurementStore) *ProgressService {
	return &ProgressService{store: store, now: time.Now}
}

// WithClock replaces the clock used for range cutoffs.
func (s *ProgressService) WithClock(now func() time.Time) *ProgressService {
	s.now = now
	return s
}

// ChartData is a chronological series ready for plotting.
type ChartData struct {
	Range  domain.TimeRange     `json:"range"`
	Unit   string               `json:"unit"`
	Points []domain.Measurement `json:"points"`
}

// History returns every entry with its deltas to the previous entry.
func (s *ProgressService) History(ctx context.Context) ([]domain.HistoryRow, error) {
	series, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return domain.BuildHistory(series), nil
}

// Chart returns the entries inside r in ascending date order, with weights
// converted to unit.
func (s *ProgressService) Chart(ctx context.Context, r domain.TimeRange, unit string) (ChartData, error) {
	if unit == "" {
		unit = domain.UnitKg
	}
	if unit != domain.UnitKg && unit != domain.UnitLb {
		return ChartData{}, ErrInvalidUnit
	}
	series, err := s.store.List(ctx)
	if err != nil {
		return ChartData{}, err
	}

	points := domain.FilterByRange(series, r, s.now())
	for i := range points {
		points[i].Weight = domain.ConvertWeight(points[i].Weight, domain.UnitKg, unit)
	}
	return ChartData{Range: r, Unit: unit, Points: points}, nil
}

// Summary compares the newest entry with the oldest. It returns nil when
// there are fewer than two entries.
func (s *ProgressService) Summary(ctx context.Context, metrics ...domain.Metric) (*domain.Summary, error) {
	series, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sum, ok := domain.Summarize(series, metrics...)
	if !ok {
		return nil, nil
	}
	return &sum, nil
}
