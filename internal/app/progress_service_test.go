package app_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"soma/internal/app"
	"soma/internal/domain"
)

func fixedStore(ms ...domain.Measurement) *mockStore {
	return &mockStore{
		listFn: func(context.Context) ([]domain.Measurement, error) { return ms, nil },
	}
}

func TestProgressService_Chart(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	store := fixedStore(
		domain.Measurement{ID: 3, Date: "2024-03-10", Weight: 100},
		domain.Measurement{ID: 2, Date: "2024-02-20", Weight: 101},
		domain.Measurement{ID: 1, Date: "2023-01-01", Weight: 110},
	)
	svc := app.NewProgressService(store).WithClock(func() time.Time { return now })

	data, err := svc.Chart(context.Background(), domain.Range1Month, "lb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.Unit != "lb" || data.Range != domain.Range1Month {
		t.Errorf("unexpected header %+v", data)
	}
	if len(data.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(data.Points))
	}
	if data.Points[0].Date != "2024-02-20" {
		t.Errorf("expected ascending order, first = %s", data.Points[0].Date)
	}
	if got := data.Points[1].Weight; math.Abs(got-220.46) > 0.01 {
		t.Errorf("expected ~220.46 lb, got %v", got)
	}

	// Converting the chart must not leak into the stored series.
	list, _ := store.List(context.Background())
	if list[0].Weight != 100 {
		t.Errorf("store value changed to %v", list[0].Weight)
	}
}

func TestProgressService_Chart_BadUnit(t *testing.T) {
	svc := app.NewProgressService(fixedStore())
	if _, err := svc.Chart(context.Background(), domain.RangeAll, "stones"); !errors.Is(err, app.ErrInvalidUnit) {
		t.Fatalf("expected ErrInvalidUnit, got %v", err)
	}
}

func TestProgressService_Summary(t *testing.T) {
	ctx := context.Background()

	svc := app.NewProgressService(fixedStore(domain.Measurement{Date: "2024-01-01"}))
	sum, err := svc.Summary(ctx)
	if err != nil || sum != nil {
		t.Fatalf("expected no summary for one entry, got %+v, %v", sum, err)
	}

	svc = app.NewProgressService(fixedStore(
		domain.Measurement{Date: "2024-02-01", Weight: 78, Waist: 88},
		domain.Measurement{Date: "2024-01-01", Weight: 80, Waist: 90},
	))
	sum, err = svc.Summary(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sum.Changes) != 2 || sum.Changes[0].Diff != -2 || sum.Changes[0].Trend != domain.TrendImprovement {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestProgressService_History(t *testing.T) {
	svc := app.NewProgressService(fixedStore(
		domain.Measurement{Date: "2024-02-01", Weight: 78},
		domain.Measurement{Date: "2024-01-01", Weight: 80},
	))
	rows, err := svc.History(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := rows[0].Deltas[domain.MetricWeight]; !d.Valid || d.Value != -2 {
		t.Errorf("unexpected weight delta %+v", d)
	}
}

func TestProgressService_StoreError(t *testing.T) {
	boom := errors.New("boom")
	svc := app.NewProgressService(&mockStore{
		listFn: func(context.Context) ([]domain.Measurement, error) { return nil, boom },
	})
	if _, err := svc.History(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected store error, got %v", err)
	}
	if _, err := svc.Summary(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected store error, got %v", err)
	}
}
