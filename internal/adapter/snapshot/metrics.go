package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	persistTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soma_snapshot_persist_total",
		Help: "Snapshot writes to the storage slot by result",
	}, []string{"result"})

	snapshotBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "soma_snapshot_size_bytes",
		Help: "Size of the last serialized snapshot before encoding",
	})

	initTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soma_snapshot_initializations_total",
		Help: "Store initializations by outcome",
	}, []string{"outcome"})
)
