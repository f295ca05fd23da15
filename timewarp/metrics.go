package timewarp

import "sync/atomic"

// Metrics tracks a single actor's dispatch-loop activity. Counters are
// cheap atomics rather than a full metrics library; wiring a real exporter
// (prometheus, etc.) is left to the host application, the way the reference
// runtime's own Histogram leaves aggregation to "production use".
type Metrics struct {
	Name              string
	EventsApplied     atomic.Int64
	Rollbacks         atomic.Int64
	Annihilations     atomic.Int64
	TickTocks         atomic.Int64
	FossilCollections atomic.Int64
	AntiEventsSent    atomic.Int64
	DroppedMessages   atomic.Int64
	Panics            atomic.Int64
	Restarts          atomic.Int32
}

func newMetrics(name string) *Metrics {
	return &Metrics{Name: name}
}
