// Package metrics provides Prometheus metrics for observability.
//
// This package exposes metrics for:
//   - Registered drops by status and phase
//   - Manager-driven transitions (solid, lost, expired, deleted)
//   - Replication attempts and latency
//   - Failed per-drop checks by kind
//   - Sweep duration and size
//   - Object store operation latency, counts and bytes
//
// Metrics are exposed via a dedicated HTTP server on /metrics in Prometheus format.
//
// Usage:
//
//	lifecycleMetrics := metrics.NewLifecycleMetrics()
//	storeMetrics := metrics.NewObjectStoreMetrics()
//
//	store := objectstore.NewInstrumentedStore(s3Store, storeMetrics)
//	mgr, err := lifecycle.New(cfg, lifecycle.Options{Metrics: lifecycleMetrics})
//
//	metricsServer := metrics.NewServer(":9090")
//	metricsServer.Start()
package metrics

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

const namespace = "droplife"

func statusLabel(success bool) string {
	if success {
		return StatusSuccess
	}
	return StatusFailure
}
