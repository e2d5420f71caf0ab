// Package metrics provides easy helpers on top of the process-wide
// go-metrics default registry.
package metrics

import (
	"log"
	"os"
	"time"

	librato "github.com/mihasya/go-metrics-librato"
	gometrics "github.com/rcrowley/go-metrics"
)

// Mark increases the meter with the given name by 1.
func Mark(name string) {
	gometrics.GetOrRegisterMeter(name, gometrics.DefaultRegistry).Mark(1)
}

// Gauge sets the gauge with the given name to the given value.
func Gauge(name string, value int64) {
	gometrics.GetOrRegisterGauge(name, gometrics.DefaultRegistry).Update(value)
}

// TimeSince updates the timer with the given name with the duration since
// the given start time.
func TimeSince(name string, start time.Time) {
	gometrics.GetOrRegisterTimer(name, gometrics.DefaultRegistry).UpdateSince(start)
}

// StartLibratoReporter ships the default registry to librato once a
// minute.
func StartLibratoReporter(email, token, source string) {
	go librato.Librato(gometrics.DefaultRegistry, time.Minute,
		email, token, source,
		[]float64{0.50, 0.75, 0.90, 0.95, 0.99, 0.999, 1.0}, time.Millisecond)
}

// StartLogReporter dumps the default registry to stderr once a minute.
func StartLogReporter() {
	go gometrics.Log(gometrics.DefaultRegistry, time.Minute,
		log.New(os.Stderr, "metrics: ", log.Lmicroseconds))
}
