/*
Package metrics provides Prometheus instrumentation for Burrow.

Counters and gauges cover the connection lifecycle (attempts, per-node session
state), registration health (creations, corruption detections, repairs), and
control-message traffic (sent, handled, duplicates suppressed). Metrics are
registered at package init and served over HTTP via Handler().

# Usage

Serving metrics:

	http.Handle("/metrics", metrics.Handler())
	go http.ListenAndServe(metricsAddr, nil)

Recording from other packages:

	metrics.ConnectAttemptsTotal.WithLabelValues("success").Inc()
	metrics.SetSessionState(nodeID, "connected")

# Integration Points

  - pkg/cluster: connect attempts and session state transitions
  - pkg/registry: registration creations, corruption detections, repairs
  - pkg/messaging: messages sent, handled, duplicates
  - cmd/burrow: exposes the HTTP endpoint when metrics-addr is configured
*/
package metrics
