// Package prometheus exposes authcore engine metrics as a client_golang Collector.
//
// The collector reads [authcore.Engine.MetricsSnapshot] on every scrape and emits
// const metrics, so engine counters stay lock-free and nothing is registered in
// the global registry unless the caller does so.
package prometheus
