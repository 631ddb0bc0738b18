package plot_test

import (
	"bytes"
	"errors"
	"image/png"
	"testing"

	"soma/internal/domain"
	"soma/internal/plot"
)

func TestRenderPNG(t *testing.T) {
	points := []domain.Measurement{
		{Date: "2024-01-01", Weight: 80, Waist: 90, Chest: 100},
		{Date: "2024-02-01", Weight: 78, Waist: 88, Chest: 101},
		{Date: "2024-03-01", Weight: 76.5, Waist: 86},
	}
	var buf bytes.Buffer
	if err := plot.RenderPNG(&buf, points, plot.Options{Title: "Progress", Width: 640, Height: 320}); err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 320 {
		t.Errorf("unexpected size %v", b)
	}
}

func TestRenderPNG_EdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		points  []domain.Measurement
		metrics []domain.Metric
	}{
		{"single point", []domain.Measurement{{Date: "2024-01-01", Weight: 80}}, nil},
		{"flat line", []domain.Measurement{{Date: "2024-01-01", Leg: 55}, {Date: "2024-02-01", Leg: 55}}, []domain.Metric{domain.MetricLeg}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := plot.RenderPNG(&buf, tc.points, plot.Options{Metrics: tc.metrics}); err != nil {
				t.Fatalf("RenderPNG: %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
				t.Error("missing PNG signature")
			}
		})
	}
}

func TestRenderPNG_NoData(t *testing.T) {
	var buf bytes.Buffer
	err := plot.RenderPNG(&buf, nil, plot.Options{})
	if !errors.Is(err, plot.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	// Arm was never recorded.
	err = plot.RenderPNG(&buf, []domain.Measurement{{Date: "2024-01-01", Weight: 80}}, plot.Options{Metrics: []domain.Metric{domain.MetricArm}})
	if !errors.Is(err, plot.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}
