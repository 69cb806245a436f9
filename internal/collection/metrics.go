package collection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docbridge"

var (
	readsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Read operations routed to each backing store",
		},
		[]string{"collection", "target"},
	)

	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Write operations sent to each backing store, by result",
		},
		[]string{"collection", "target", "result"},
	)
)

func recordRead(collection string, target ReadTarget) {
	readsTotal.WithLabelValues(collection, string(target)).Inc()
}

func recordWrite(collection, target string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	writesTotal.WithLabelValues(collection, target, result).Inc()
}
