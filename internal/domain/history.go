package domain

// MetricDelta is a delta for one metric with its classification.
type MetricDelta struct {
	Delta
	Trend Trend `json:"trend"`
}

// HistoryRow is one entry of the history list with its deltas against the
// next older entry.
type HistoryRow struct {
	Measurement Measurement            `json:"measurement"`
	Deltas      map[Metric]MetricDelta `json:"deltas"`
}

// BuildHistory pairs each entry of a date-descending series with the entry
// after it. The oldest entry has only invalid deltas.
func BuildHistory(series []Measurement) []HistoryRow {
	rows := make([]HistoryRow, 0, len(series))
	for i, m := range series {
		var prev *Measurement
		if i+1 < len(series) {
			prev = &series[i+1]
		}
		deltas := make(map[Metric]MetricDelta, len(Metrics))
		for _, metric := range Metrics {
			var pv *float64
			if prev != nil {
				v := metric.Value(*prev)
				pv = &v
			}
			d := ComputeDelta(metric.Value(m), pv)
			deltas[metric] = MetricDelta{Delta: d, Trend: d.Trend(metric)}
		}
		rows = append(rows, HistoryRow{Measurement: m, Deltas: deltas})
	}
	return rows
}
