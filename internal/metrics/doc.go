// Package metrics exposes Prometheus collectors for the analysis pipeline.
//
// A Collector registers its histograms and counters on a caller-supplied
// registry, so tests and the CLI each use their own. The scan command
// writes the registry to a node-exporter textfile with WriteTextfile when
// --metrics-file is set.
//
// All Collector methods are safe on a nil receiver so components can take
// an optional *Collector without guarding every call.
package metrics
