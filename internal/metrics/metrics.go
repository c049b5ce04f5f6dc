// Package metrics registers the counters the verifier and chain publish,
// the same way the teacher's work/worker.go and node/sc/bridge_tx_pool.go
// register theirs: through a shared rcrowley/go-metrics registry. A gauge
// helper is provided as well; no gauge is registered in this module.
package metrics

import gometrics "github.com/rcrowley/go-metrics"

// Registry is the process-wide metrics registry every counter below is
// registered against.
var Registry = gometrics.NewRegistry()

// NewRegisteredCounter returns (creating if necessary) the named counter.
func NewRegisteredCounter(name string) gometrics.Counter {
	return gometrics.GetOrRegisterCounter(name, Registry)
}

// NewRegisteredGauge returns (creating if necessary) the named gauge.
func NewRegisteredGauge(name string) gometrics.Gauge {
	return gometrics.GetOrRegisterGauge(name, Registry)
}
