package metrics

import (
	"runtime"
	"time"
)

// ReportMemstatsMetrics samples runtime memory stats into gauges every 10
// seconds, and will block forever.
func ReportMemstatsMetrics() {
	memStats := &runtime.MemStats{}
	var lastPauseNs uint64

	sleep := 10 * time.Second

	for {
		runtime.ReadMemStats(memStats)

		Gauge("novactl.goroutines", int64(runtime.NumGoroutine()))
		Gauge("novactl.memory.allocated", int64(memStats.Alloc))
		Gauge("novactl.memory.mallocs", int64(memStats.Mallocs))
		Gauge("novactl.memory.frees", int64(memStats.Frees))
		Gauge("novactl.memory.gc.total_pause", int64(memStats.PauseTotalNs))
		Gauge("novactl.memory.gc.heap", int64(memStats.HeapAlloc))
		Gauge("novactl.memory.gc.stack", int64(memStats.StackInuse))

		if lastPauseNs > 0 {
			pauseSinceLastSample := memStats.PauseTotalNs - lastPauseNs
			Gauge("novactl.memory.gc.pause_per_second",
				int64(float64(pauseSinceLastSample)/sleep.Seconds()))
		}
		lastPauseNs = memStats.PauseTotalNs

		time.Sleep(sleep)
	}
}
