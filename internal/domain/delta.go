package domain

import (
	"fmt"
	"math"
)

// NeutralThreshold is the absolute change below which a delta counts as noise.
const NeutralThreshold = 0.05

// Delta is the change of a value against the chronologically previous one.
// Valid is false when there was no previous value.
type Delta struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// ComputeDelta returns current - *previous, or an invalid Delta when previous
// is nil. The result is not rounded.
func ComputeDelta(current float64, previous *float64) Delta {
	if previous == nil {
		return Delta{}
	}
	return Delta{Value: current - *previous, Valid: true}
}

// Trend classifies a delta relative to a metric's polarity.
type Trend int

const (
	TrendNeutral Trend = iota
	TrendImprovement
	TrendRegression
)

func (t Trend) String() string {
	switch t {
	case TrendImprovement:
		return "improvement"
	case TrendRegression:
		return "regression"
	default:
		return "neutral"
	}
}

// MarshalText encodes the trend by name.
func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a trend name. Unknown names are an error.
func (t *Trend) UnmarshalText(b []byte) error {
	switch string(b) {
	case "neutral":
		*t = TrendNeutral
	case "improvement":
		*t = TrendImprovement
	case "regression":
		*t = TrendRegression
	default:
		return fmt.Errorf("unknown trend %q", string(b))
	}
	return nil
}

// ClassifyDelta reports whether delta is an improvement, a regression or
// noise, given whether higher values are better for the metric.
func ClassifyDelta(delta float64, higherIsBetter bool) Trend {
	if math.Abs(delta) < NeutralThreshold {
		return TrendNeutral
	}
	if (delta > 0) == higherIsBetter {
		return TrendImprovement
	}
	return TrendRegression
}

// Trend classifies d for metric m. An invalid delta is neutral.
func (d Delta) Trend(m Metric) Trend {
	if !d.Valid {
		return TrendNeutral
	}
	return ClassifyDelta(d.Value, m.Info().HigherIsBetter)
}
