package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/imgguard/internal/model"
)

// DefaultConcurrency is the number of images analyzed at once.
const DefaultConcurrency = 4

// Analyzer analyzes one image URL.
type Analyzer interface {
	Analyze(ctx context.Context, imageURL string, opts model.ScanOptions, userID string) (*model.AnalysisResult, error)
}

// BatchProcessor handles concurrent analysis of many image URLs.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it is simpler and errgroup handles the concurrency correctly.
type BatchProcessor struct {
	analyzer    Analyzer
	concurrency int
	options     model.ScanOptions
	userID      string
	logger      *slog.Logger
	now         func() time.Time
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent analyses.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithScanOptions sets the scan categories used for every image.
func WithScanOptions(opts model.ScanOptions) BatchOption {
	return func(b *BatchProcessor) {
		b.options = opts
	}
}

// WithUserID attributes every analysis to userID in the scan log.
func WithUserID(userID string) BatchOption {
	return func(b *BatchProcessor) {
		b.userID = userID
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(analyzer Analyzer, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		analyzer:    analyzer,
		concurrency: DefaultConcurrency,
		options:     model.DefaultScanOptions(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch analyzes every URL and returns the reports in input order.
// The error is non-nil only when ctx was cancelled; URLs that never started
// carry the cancellation error in their report.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, urls []string) (*model.BatchReport, error) {
	bp.logger.Info("starting batch analysis",
		"total_images", len(urls),
		"concurrency", bp.concurrency,
	)
	startTime := bp.now()

	images := make([]model.ImageReport, len(urls))
	for i, u := range urls {
		images[i] = model.ImageReport{URL: u}
	}

	var mu sync.Mutex
	err := bp.run(ctx, urls, func(report model.ImageReport, index int) {
		mu.Lock()
		images[index] = report
		mu.Unlock()
	})

	if err != nil {
		for i := range images {
			if images[i].Result == nil && images[i].Error == "" {
				images[i].Error = err.Error()
			}
		}
	}

	bp.logger.Info("batch analysis complete",
		"total_images", len(urls),
		"elapsed", bp.now().Sub(startTime),
	)
	return model.NewBatchReport(images, startTime.UTC()), err
}

// ProcessBatchWithCallback analyzes every URL and calls callback for each
// completed analysis with the URL's index. The callback runs on the worker
// goroutine and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	urls []string,
	callback func(report model.ImageReport, index int),
) error {
	return bp.run(ctx, urls, callback)
}

func (bp *BatchProcessor) run(ctx context.Context, urls []string, callback func(model.ImageReport, int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, imageURL := range urls {
		// Stop scheduling once cancelled; SetLimit blocks in Go.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			bp.logger.Debug("analyzing image", "url", imageURL, "index", i+1, "total", len(urls))

			start := bp.now()
			result, err := bp.analyzer.Analyze(gctx, imageURL, bp.options, bp.userID)
			report := model.ImageReport{
				URL:        imageURL,
				Result:     result,
				DurationMS: bp.now().Sub(start).Milliseconds(),
			}
			if err != nil {
				report.Result = nil
				report.Error = err.Error()
				bp.logger.Warn("analysis failed", "url", imageURL, "error", err)
			}

			callback(report, i)
			// Individual failures are recorded, not propagated.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
