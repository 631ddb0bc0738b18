// Package app holds the application services and business logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soma/internal/domain"
)

// ErrInvalidMeasurement wraps every validation failure.
var ErrInvalidMeasurement = errors.New("invalid measurement")

// MeasurementService encapsulates measurement CRUD use cases. It is the only
// place input is validated; stores accept what they are given.
type MeasurementService struct {
	store domain.MeasurementStore
}

// NewMeasurementService creates a MeasurementService backed by store.
func NewMeasurementService(store domain.MeasurementStore) *MeasurementService {
	return &MeasurementService{store: store}
}

// List returns all measurements, most recent date first.
func (s *MeasurementService) List(ctx context.Context) ([]domain.Measurement, error) {
	return s.store.List(ctx)
}

// Add validates and stores m, returning it with its new id.
func (s *MeasurementService) Add(ctx context.Context, m domain.Measurement) (domain.Measurement, error) {
	if err := m.Validate(); err != nil {
		return domain.Measurement{}, fmt.Errorf("%w: %w", ErrInvalidMeasurement, err)
	}
	id, err := s.store.Add(ctx, m)
	if err != nil {
		return domain.Measurement{}, err
	}
	m.ID = id
	return m, nil
}

// Update validates m and overwrites the stored row with the same id.
func (s *MeasurementService) Update(ctx context.Context, m domain.Measurement) error {
	if m.ID <= 0 {
		return fmt.Errorf("%w: id must be > 0", ErrInvalidMeasurement)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMeasurement, err)
	}
	return s.store.Update(ctx, m)
}

// Remove deletes a measurement. Unknown ids are not an error.
func (s *MeasurementService) Remove(ctx context.Context, id int64) error {
	return s.store.Remove(ctx, id)
}

// userStore adapts the multi-user repository to a single user's store.
type userStore struct {
	repo   domain.MeasurementRepository
	userID int64
	now    func() time.Time
}

// ForUser returns a MeasurementStore that reads and writes only the rows of
// userID.
func ForUser(repo domain.MeasurementRepository, userID int64) domain.MeasurementStore {
	return &userStore{repo: repo, userID: userID, now: time.Now}
}

func (u *userStore) List(ctx context.Context) ([]domain.Measurement, error) {
	return u.repo.ListMeasurements(ctx, u.userID)
}

func (u *userStore) Add(ctx context.Context, m domain.Measurement) (int64, error) {
	return u.repo.AddMeasurement(ctx, u.userID, m, u.now())
}

func (u *userStore) Update(ctx context.Context, m domain.Measurement) error {
	return u.repo.UpdateMeasurement(ctx, u.userID, m)
}

func (u *userStore) Remove(ctx context.Context, id int64) error {
	return u.repo.DeleteMeasurement(ctx, u.userID, id)
}
