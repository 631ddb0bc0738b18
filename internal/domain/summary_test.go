package domain_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"soma/internal/domain"
)

func TestSummarize_TooShort(t *testing.T) {
	for _, s := range [][]domain.Measurement{nil, series("2024-01-01")} {
		if _, ok := domain.Summarize(s); ok {
			t.Errorf("Summarize(len=%d) reported a summary", len(s))
		}
	}
}

func TestSummarize(t *testing.T) {
	desc := []domain.Measurement{
		{Date: "2024-03-01", Weight: 76.5, Waist: 86, Arm: 32},
		{Date: "2024-02-01", Weight: 78, Waist: 88, Arm: 31},
		{Date: "2024-01-01", Weight: 80, Waist: 90, Arm: 30},
	}

	got, ok := domain.Summarize(desc)
	if !ok {
		t.Fatal("expected a summary")
	}
	want := domain.Summary{
		Since:   "2024-01-01",
		Current: "2024-03-01",
		Changes: []domain.Change{
			{Metric: domain.MetricWeight, Diff: -3.5, Trend: domain.TrendImprovement},
			{Metric: domain.MetricWaist, Diff: -4, Trend: domain.TrendImprovement},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}

	arm, _ := domain.Summarize(desc, domain.MetricArm)
	if len(arm.Changes) != 1 || arm.Changes[0].Diff != 2 || arm.Changes[0].Trend != domain.TrendImprovement {
		t.Errorf("unexpected arm summary: %+v", arm)
	}
}

func TestBuildHistory(t *testing.T) {
	desc := []domain.Measurement{
		{ID: 2, Date: "2024-02-01", Weight: 78, Chest: 100, Waist: 90.02, Arm: 29, Leg: 55},
		{ID: 1, Date: "2024-01-01", Weight: 80, Chest: 100, Waist: 90, Arm: 30, Leg: 55},
	}
	rows := domain.BuildHistory(desc)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	newest := rows[0].Deltas
	if d := newest[domain.MetricWeight]; !d.Valid || d.Value != -2 || d.Trend != domain.TrendImprovement {
		t.Errorf("weight delta = %+v", d)
	}
	if d := newest[domain.MetricWaist]; d.Trend != domain.TrendNeutral {
		t.Errorf("waist noise should be neutral, got %+v", d)
	}
	if d := newest[domain.MetricArm]; d.Trend != domain.TrendRegression {
		t.Errorf("arm loss should regress, got %+v", d)
	}

	for metric, d := range rows[1].Deltas {
		if d.Valid || d.Trend != domain.TrendNeutral {
			t.Errorf("oldest row %s delta should be empty, got %+v", metric, d)
		}
	}
}

func TestBuildHistory_Empty(t *testing.T) {
	if rows := domain.BuildHistory(nil); len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}
