// Package metrics exposes Prometheus counters for background rewrite processes
// and can persist them in the node-exporter textfile format.
package metrics
