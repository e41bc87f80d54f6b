package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/imgguard/internal/fetch"
	"github.com/nao1215/imgguard/internal/links"
	"github.com/nao1215/imgguard/internal/malcode"
	"github.com/nao1215/imgguard/internal/metrics"
	"github.com/nao1215/imgguard/internal/model"
	"github.com/nao1215/imgguard/internal/pixel"
	"github.com/nao1215/imgguard/internal/stego"
)

// DefaultSinkTimeout bounds one background scan log write.
const DefaultSinkTimeout = 10 * time.Second

// Scanner runs one scan category over image bytes.
type Scanner interface {
	Scan(ctx context.Context, data []byte) ([]model.Threat, error)
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc func(ctx context.Context, data []byte) ([]model.Threat, error)

// Scan implements Scanner.
func (f ScannerFunc) Scan(ctx context.Context, data []byte) ([]model.Threat, error) {
	return f(ctx, data)
}

// GridScanner is a Scanner that can read pixels decoded once per image
// instead of decoding the bytes itself. A nil grid means the bytes are not
// a decodable image. The grid must only be read.
type GridScanner interface {
	Scanner
	ScanGrid(ctx context.Context, data []byte, grid *pixel.Grid) ([]model.Threat, error)
}

// Fetcher downloads an image into a temporary file.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Download, error)
}

// ScanLogSink stores one record per analysis that carried a user identity.
type ScanLogSink interface {
	Record(ctx context.Context, record model.ScanLogRecord) error
}

// Coordinator runs the enabled scan categories for one image and merges
// their threats into an AnalysisResult.
type Coordinator struct {
	fetcher     Fetcher
	scanners    map[model.ThreatType]Scanner
	sink        ScanLogSink
	cache       *VerdictCache
	metrics     *metrics.Collector
	logger      *slog.Logger
	timeout     time.Duration
	sinkTimeout time.Duration
	now         func() time.Time

	// pending tracks background scan log writes.
	pending sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithScanner replaces the scanner for one category.
func WithScanner(category model.ThreatType, s Scanner) Option {
	return func(c *Coordinator) {
		c.scanners[category] = s
	}
}

// WithSink sets the scan log sink. Without one, scan logs are dropped.
func WithSink(sink ScanLogSink) Option {
	return func(c *Coordinator) {
		c.sink = sink
	}
}

// WithCache enables the verdict cache.
func WithCache(cache *VerdictCache) Option {
	return func(c *Coordinator) {
		c.cache = cache
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithAnalyzeTimeout bounds each Analyze call, download included.
// Categories still running at the deadline are abandoned and the result is
// marked Partial. Zero disables the bound.
func WithAnalyzeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithSinkTimeout bounds each background scan log write.
func WithSinkTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.sinkTimeout = d
	}
}

// NewCoordinator creates a Coordinator. Unless replaced with WithScanner,
// it uses the default steganography and malicious code detectors and a
// link extractor without a malicious URL lookup.
func NewCoordinator(fetcher Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher: fetcher,
		scanners: map[model.ThreatType]Scanner{
			model.ThreatEmbeddedLink:  links.NewExtractor(nil),
			model.ThreatSteganography: stego.NewDetector(),
			model.ThreatMaliciousCode: malcode.NewDetector(),
		},
		logger:      slog.Default(),
		sinkTimeout: DefaultSinkTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache != nil && c.metrics != nil {
		c.cache.onEvict = c.metrics.CacheEviction
	}
	return c
}

// Analyze downloads imageURL, runs the categories enabled in opts and
// returns the verdict. The only error is a *fetch.DownloadError. When
// userID is not empty a scan log record is written in the background.
func (c *Coordinator) Analyze(ctx context.Context, imageURL string, opts model.ScanOptions, userID string) (*model.AnalysisResult, error) {
	start := c.now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	download, err := c.fetcher.Fetch(ctx, imageURL)
	c.metrics.ObserveDownload(err)
	if err != nil {
		var dlErr *fetch.DownloadError
		if !errors.As(err, &dlErr) {
			err = &fetch.DownloadError{URL: imageURL, Err: err}
		}
		return nil, err
	}
	defer func() {
		if err := download.Close(); err != nil {
			c.logger.Warn("failed to remove downloaded image", "path", download.Path, "error", err)
		}
	}()

	data, err := download.Bytes()
	if err != nil {
		return nil, &fetch.DownloadError{URL: imageURL, Err: err}
	}

	digest := Digest(data)
	result := c.cached(digest, opts)
	if result == nil {
		result = c.scan(ctx, data, opts)
		if c.cache != nil && !result.Partial {
			c.cache.Set(cacheKey(digest, opts), result)
		}
	}

	c.metrics.ObserveAnalyze(result, c.now().Sub(start))
	c.logger.Info("image analyzed",
		"url", imageURL,
		"safe", result.IsSafe,
		"confidence", result.Confidence,
		"threats", len(result.Threats),
		"partial", result.Partial,
	)

	if userID != "" {
		c.record(model.NewScanLogRecord(userID, imageURL, digest, result, c.now().UTC()))
	}
	return result, nil
}

// AnalyzeRequest validates req and analyzes its image.
func (c *Coordinator) AnalyzeRequest(ctx context.Context, req *model.AnalyzeRequest, userID string) (*model.AnalysisResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return c.Analyze(ctx, req.ImageURL, req.Options(), userID)
}

func (c *Coordinator) cached(digest string, opts model.ScanOptions) *model.AnalysisResult {
	if c.cache == nil {
		return nil
	}
	if result, ok := c.cache.Get(cacheKey(digest, opts)); ok {
		c.metrics.CacheHit()
		c.logger.Debug("verdict cache hit", "digest", digest)
		return result
	}
	c.metrics.CacheMiss()
	return nil
}

// slot holds the outcome of one scan category. An aborted category was
// stopped by the analysis deadline; its threats are the ones it found
// before stopping.
type slot struct {
	threats []model.Threat
	done    bool
	aborted bool
}

// scan decodes the pixels once, runs every enabled category concurrently
// and merges the threats of those that finished in category order.
func (c *Coordinator) scan(ctx context.Context, data []byte, opts model.ScanOptions) *model.AnalysisResult {
	var (
		mu    sync.Mutex
		slots = make([]slot, len(model.ThreatTypes))
		g     errgroup.Group
	)

	grid := c.decodeShared(data, opts)

	for i, category := range model.ThreatTypes {
		scanner, ok := c.scanners[category]
		if !opts.Enabled(category) || !ok || scanner == nil {
			slots[i].done = true
			continue
		}
		g.Go(func() error {
			s := c.runScanner(ctx, category, scanner, data, grid)
			mu.Lock()
			slots[i] = s
			mu.Unlock()
			return nil
		})
	}

	finished := make(chan struct{})
	go func() {
		_ = g.Wait() //nolint:errcheck // scanners never return errors to the group
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		c.logger.Warn("analysis deadline reached, abandoning running scans", "error", ctx.Err())
	}

	mu.Lock()
	defer mu.Unlock()

	var threats []model.Threat
	partial := false
	for i, category := range model.ThreatTypes {
		switch {
		case !slots[i].done:
			partial = true
			c.logger.Warn("scan did not finish", "category", category)
			continue
		case slots[i].aborted:
			partial = true
			c.logger.Warn("scan stopped at deadline", "category", category, "threats", len(slots[i].threats))
		}
		threats = append(threats, slots[i].threats...)
	}

	result := model.NewAnalysisResult(threats)
	result.Partial = partial
	return result
}

// decodeShared decodes data once for every enabled GridScanner. It returns
// nil when no such scanner runs or the bytes are not a decodable image.
func (c *Coordinator) decodeShared(data []byte, opts model.ScanOptions) *pixel.Grid {
	needed := false
	for _, category := range model.ThreatTypes {
		if _, ok := c.scanners[category].(GridScanner); ok && opts.Enabled(category) {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}

	grid, err := pixel.Decode(data)
	if err != nil {
		c.logger.Debug("pixel scans skipped", "error", err)
		return nil
	}
	return grid
}

// runScanner runs one category. Errors and panics become a logged
// DetectorError with no threats. A scanner stopped by ctx keeps the threats
// it returned and is marked aborted.
func (c *Coordinator) runScanner(ctx context.Context, category model.ThreatType, scanner Scanner, data []byte, grid *pixel.Grid) (s slot) {
	start := c.now()
	defer func() {
		if r := recover(); r != nil {
			c.detectorFailed(&DetectorError{
				Category: category,
				Err:      fmt.Errorf("%w: %v", ErrDetectorPanic, r),
			})
			c.logger.Debug("detector panic stack", "category", category, "stack", string(debug.Stack()))
			s = slot{done: true}
		}
		c.metrics.ObserveScan(category, c.now().Sub(start))
	}()

	var (
		threats []model.Threat
		err     error
	)
	if gs, ok := scanner.(GridScanner); ok {
		threats, err = gs.ScanGrid(ctx, data, grid)
	} else {
		threats, err = scanner.Scan(ctx, data)
	}

	switch {
	case err != nil && ctx.Err() != nil:
		return slot{threats: threats, done: true, aborted: true}
	case err != nil:
		c.detectorFailed(&DetectorError{Category: category, Err: err})
		return slot{done: true}
	case ctx.Err() != nil:
		// The scanner may have skipped work without reporting it.
		return slot{threats: threats, done: true, aborted: true}
	}
	return slot{threats: threats, done: true}
}

func (c *Coordinator) detectorFailed(err *DetectorError) {
	c.metrics.ObserveDetectorError(err.Category)
	c.logger.Warn("detector failed, treating as no threat", "category", err.Category, "error", err)
}

// record writes a scan log record in the background. Failures are logged.
func (c *Coordinator) record(rec model.ScanLogRecord) {
	if c.sink == nil {
		return
	}

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				c.sinkFailed(rec, &SinkError{Err: fmt.Errorf("sink panicked: %v", r)})
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), c.sinkTimeout)
		defer cancel()
		if err := c.sink.Record(ctx, rec); err != nil {
			c.sinkFailed(rec, &SinkError{Err: err})
		}
	}()
}

func (c *Coordinator) sinkFailed(rec model.ScanLogRecord, err *SinkError) {
	c.metrics.SinkError()
	c.logger.Warn("scan log dropped", "url", rec.ImageURL, "user_id", rec.UserID, "error", err)
}

// Wait blocks until every background scan log write has finished.
// Analyze never waits; call Wait before shutting down.
func (c *Coordinator) Wait() {
	c.pending.Wait()
}

var (
	_ GridScanner = (*links.Extractor)(nil)
	_ GridScanner = (*stego.Detector)(nil)
	_ GridScanner = (*malcode.Detector)(nil)
)
