// Package plot renders measurement series as PNG line charts.
package plot

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"soma/internal/domain"
)

// ErrNoData is returned when no selected metric has a recorded value.
var ErrNoData = errors.New("plot: nothing to draw")

// Options control chart rendering. Zero values fall back to defaults.
type Options struct {
	Title   string
	Width   int
	Height  int
	Metrics []domain.Metric
	// Unit labels the weight series; values are drawn as given.
	Unit string
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 960
	}
	if o.Height <= 0 {
		o.Height = 480
	}
	if len(o.Metrics) == 0 {
		o.Metrics = domain.Metrics
	}
	if o.Unit == "" {
		o.Unit = domain.UnitKg
	}
	return o
}

func seriesStyle(hex string) chart.Style {
	col := drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 2,
		DotColor:    col,
		DotWidth:    3,
	}
}

// RenderPNG draws one line per metric for points in ascending date order.
// A value of zero is treated as not recorded and left out of its line.
func RenderPNG(w io.Writer, points []domain.Measurement, opts Options) error {
	opts = opts.withDefaults()

	var (
		series     []chart.Series
		minY, maxY = math.Inf(1), math.Inf(-1)
	)
	for _, metric := range opts.Metrics {
		info := metric.Info()
		var (
			xs []time.Time
			ys []float64
		)
		for _, p := range points {
			v := metric.Value(p)
			if v == 0 {
				continue
			}
			day, err := p.Day()
			if err != nil {
				continue
			}
			xs = append(xs, day)
			ys = append(ys, v)
			minY, maxY = math.Min(minY, v), math.Max(maxY, v)
		}
		if len(xs) == 0 {
			continue
		}
		// go-chart cannot compute an x range from a single point.
		if len(xs) == 1 {
			xs = append(xs, xs[0].Add(24*time.Hour))
			ys = append(ys, ys[0])
		}

		unit := info.Unit
		if metric == domain.MetricWeight {
			unit = opts.Unit
		}
		series = append(series, chart.TimeSeries{
			Name:    fmt.Sprintf("%s (%s)", info.Label, unit),
			Style:   seriesStyle(info.Color),
			XValues: xs,
			YValues: ys,
		})
	}
	if len(series) == 0 {
		return ErrNoData
	}

	yAxis := chart.YAxis{}
	if maxY-minY < 1e-9 {
		yAxis.Range = &chart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}

	ch := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat(domain.DateLayout),
		},
		YAxis:  yAxis,
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("plot: render: %w", err)
	}
	return nil
}
