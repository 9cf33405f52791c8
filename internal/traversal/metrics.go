package traversal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// nodesTotal counts expanded nodes by final state.
	nodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xspider_traversal_nodes_total",
		Help: "Expanded nodes by final state",
	}, []string{"state"})

	// edgesTotal counts follow edges handed to the store.
	edgesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xspider_traversal_edges_total",
		Help: "Follow edges discovered during traversal",
	})

	// inFlightNodes is the number of nodes being fetched right now.
	inFlightNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xspider_traversal_in_flight_nodes",
		Help: "Nodes whose following list is being fetched",
	})
)
