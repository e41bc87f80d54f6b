package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nao1215/imgguard/internal/model"
)

// Namespace prefixes every metric name.
const Namespace = "imgguard"

// Collector holds the pipeline metrics.
type Collector struct {
	AnalyzeDuration *prometheus.HistogramVec
	ScanDuration    *prometheus.HistogramVec
	Threats         *prometheus.CounterVec
	DetectorErrors  *prometheus.CounterVec
	Lookups         *prometheus.CounterVec
	Downloads       *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheEvictions  prometheus.Counter
	SinkErrors      prometheus.Counter
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		AnalyzeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "analyze_duration_seconds",
				Help:      "Time spent in one analyze call, download included",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"verdict"},
		),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "scan_duration_seconds",
				Help:      "Time spent in each scan category",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"category"},
		),
		Threats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "threats_total",
				Help:      "Threats detected by type and severity",
			},
			[]string{"type", "severity"},
		),
		DetectorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "detector_errors_total",
				Help:      "Detector failures treated as no threat",
			},
			[]string{"category"},
		),
		Lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "url_lookups_total",
				Help:      "Malicious URL lookups by outcome",
			},
			[]string{"outcome"},
		),
		Downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "downloads_total",
				Help:      "Image downloads by outcome",
			},
			[]string{"outcome"},
		),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verdict_cache_hits_total",
			Help:      "Verdict cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verdict_cache_misses_total",
			Help:      "Verdict cache misses",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verdict_cache_evictions_total",
			Help:      "Verdict cache evictions",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scan_log_errors_total",
			Help:      "Scan log records that could not be stored",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.AnalyzeDuration, c.ScanDuration, c.Threats, c.DetectorErrors, c.Lookups,
		c.Downloads, c.CacheHits, c.CacheMisses, c.CacheEvictions, c.SinkErrors,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return c, nil
}

// ObserveAnalyze records one analyze call.
func (c *Collector) ObserveAnalyze(result *model.AnalysisResult, d time.Duration) {
	if c == nil || result == nil {
		return
	}
	verdict := "safe"
	if !result.IsSafe {
		verdict = "unsafe"
	}
	c.AnalyzeDuration.WithLabelValues(verdict).Observe(d.Seconds())
	for _, t := range result.Threats {
		c.Threats.WithLabelValues(string(t.Type), t.Severity.String()).Inc()
	}
}

// ObserveScan records the duration of one scan category.
func (c *Collector) ObserveScan(category model.ThreatType, d time.Duration) {
	if c == nil {
		return
	}
	c.ScanDuration.WithLabelValues(string(category)).Observe(d.Seconds())
}

// ObserveDetectorError counts a failed scan category.
func (c *Collector) ObserveDetectorError(category model.ThreatType) {
	if c == nil {
		return
	}
	c.DetectorErrors.WithLabelValues(string(category)).Inc()
}

// ObserveLookup counts a malicious URL lookup outcome.
func (c *Collector) ObserveLookup(outcome string) {
	if c == nil {
		return
	}
	c.Lookups.WithLabelValues(outcome).Inc()
}

// ObserveDownload counts a download outcome: "ok" or "error".
func (c *Collector) ObserveDownload(err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.Downloads.WithLabelValues(outcome).Inc()
}

// CacheHit counts a verdict cache hit.
func (c *Collector) CacheHit() {
	if c != nil {
		c.CacheHits.Inc()
	}
}

// CacheMiss counts a verdict cache miss.
func (c *Collector) CacheMiss() {
	if c != nil {
		c.CacheMisses.Inc()
	}
}

// CacheEviction counts a verdict cache eviction.
func (c *Collector) CacheEviction() {
	if c != nil {
		c.CacheEvictions.Inc()
	}
}

// SinkError counts a failed scan log write.
func (c *Collector) SinkError() {
	if c != nil {
		c.SinkErrors.Inc()
	}
}

// WriteTextfile writes every metric gathered from g to path in the
// node_exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
