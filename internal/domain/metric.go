package domain

import "fmt"

// Metric identifies one of the tracked body measurements.
type Metric string

// The closed set of metrics, in display order.
const (
	MetricWeight Metric = "weight"
	MetricChest  Metric = "chest"
	MetricWaist  Metric = "waist"
	MetricArm    Metric = "arm"
	MetricLeg    Metric = "leg"
)

// Metrics lists every metric in display order.
var Metrics = []Metric{MetricWeight, MetricChest, MetricWaist, MetricArm, MetricLeg}

// MetricInfo describes how a metric is labeled, colored and judged.
type MetricInfo struct {
	Key            Metric `json:"key"`
	Label          string `json:"label"`
	Unit           string `json:"unit"`
	Color          string `json:"color"`
	HigherIsBetter bool   `json:"higherIsBetter"`
}

var catalog = map[Metric]MetricInfo{
	MetricWeight: {Key: MetricWeight, Label: "Weight", Unit: "kg", Color: "#3b82f6", HigherIsBetter: false},
	MetricChest:  {Key: MetricChest, Label: "Chest", Unit: "cm", Color: "#ec4899", HigherIsBetter: true},
	MetricWaist:  {Key: MetricWaist, Label: "Waist", Unit: "cm", Color: "#8b5cf6", HigherIsBetter: false},
	MetricArm:    {Key: MetricArm, Label: "Arm", Unit: "cm", Color: "#10b981", HigherIsBetter: true},
	MetricLeg:    {Key: MetricLeg, Label: "Leg", Unit: "cm", Color: "#f59e0b", HigherIsBetter: true},
}

// Info returns the catalog entry for m. It panics for a metric outside the
// closed set; use ParseMetric for untrusted input.
func (m Metric) Info() MetricInfo {
	info, ok := catalog[m]
	if !ok {
		panic(fmt.Sprintf("domain: unknown metric %q", string(m)))
	}
	return info
}

// Value returns the field of ms that m refers to.
func (m Metric) Value(ms Measurement) float64 {
	switch m {
	case MetricWeight:
		return ms.Weight
	case MetricChest:
		return ms.Chest
	case MetricWaist:
		return ms.Waist
	case MetricArm:
		return ms.Arm
	case MetricLeg:
		return ms.Leg
	}
	panic(fmt.Sprintf("domain: unknown metric %q", string(m)))
}

// ParseMetric converts user input into a Metric.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if _, ok := catalog[m]; !ok {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return m, nil
}

// Catalog returns the catalog entries in display order.
func Catalog() []MetricInfo {
	out := make([]MetricInfo, 0, len(Metrics))
	for _, m := range Metrics {
		out = append(out, m.Info())
	}
	return out
}
