package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nao1215/imgguard/internal/analysis"
	"github.com/nao1215/imgguard/internal/config"
	"github.com/nao1215/imgguard/internal/database"
	"github.com/nao1215/imgguard/internal/fetch"
	"github.com/nao1215/imgguard/internal/links"
	"github.com/nao1215/imgguard/internal/malcode"
	"github.com/nao1215/imgguard/internal/metrics"
	"github.com/nao1215/imgguard/internal/model"
	"github.com/nao1215/imgguard/internal/pipeline"
	"github.com/nao1215/imgguard/internal/report"
	"github.com/nao1215/imgguard/internal/stego"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [image-url]...",
		Short: "Scan images for hidden threats",
		Long: `Scan downloads each image and runs the enabled scan categories:

- Embedded links: QR codes, metadata text and pixel bit planes are searched
  for URLs, which are checked against the malicious URL database
- Steganography: LSB distribution, histogram and embedded file signatures
- Malicious code: script and executable signatures in extracted text

The exit code is 0 when every image is safe, 2 when any threat is found
and 1 on errors.

Examples:
  # Scan a single image
  imgguard scan https://example.com/banner.png

  # Scan every URL listed in a file, four at a time
  imgguard scan --list urls.txt --batch-size 4

  # Skip steganography and write a Markdown report
  imgguard scan --no-stego --markdown -o report.md https://example.com/a.jpg

  # Record the scans for a user and export metrics
  imgguard scan --user alice --metrics-file imgguard.prom https://example.com/a.jpg

  # Read an analyze request body ({"imageUrl": ..., "scanOptions": {...}})
  imgguard scan --request request.json`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	// Target flags
	cmd.Flags().StringP("list", "l", "",
		"File with one image URL per line ('#' starts a comment)")
	cmd.Flags().String("request", "",
		"JSON analyze request file ('-' for stdin)")

	// Scan category flags
	cmd.Flags().Bool("no-links", false, "Disable the embedded link scan")
	cmd.Flags().Bool("no-stego", false, "Disable the steganography scan")
	cmd.Flags().Bool("no-code", false, "Disable the malicious code scan")
	cmd.Flags().StringP("user", "u", "",
		"User identity recorded in the scan log (empty disables the scan log)")

	// Scan behavior flags
	cmd.Flags().IntP("batch-size", "b", config.DefaultBatchSize,
		"Number of images analyzed concurrently")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Download timeout for each image")
	cmd.Flags().Duration("analyze-timeout", config.DefaultAnalyzeTimeout,
		"Deadline for each analysis; unfinished scans are reported as partial (0 disables)")
	cmd.Flags().Int64("max-size", config.DefaultMaxImageSize,
		"Maximum image size in bytes")
	cmd.Flags().StringP("proxy", "x", "",
		"SOCKS5 proxy for downloads (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("no-cache", false,
		"Disable the in-memory verdict cache")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("show-safe", false,
		"List safe images in the text report")
	cmd.Flags().String("metrics-file", "",
		"Write Prometheus metrics to this file after the scan")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildScanConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batch, err := runScan(ctx, cfg, logger)
	if batch != nil {
		showSafe, _ := cmd.Flags().GetBool("show-safe") //nolint:errcheck // flag defined above
		if werr := outputReport(cfg, batch, cmd.OutOrStdout(), showSafe); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}

	switch {
	case batch.HasThreats():
		return ErrThreatsFound
	case batch.HasFailures():
		return fmt.Errorf("%d of %d images could not be analyzed", batch.Summary().Failed, len(batch.Images))
	default:
		return nil
	}
}

// buildScanConfig creates a Config from the configuration sources and the
// scan command flags. Only flags set on the command line override the
// configuration file and environment.
func buildScanConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("batch-size") {
		if cfg.BatchSize, err = flags.GetInt("batch-size"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("analyze-timeout") {
		if cfg.AnalyzeTimeout, err = flags.GetDuration("analyze-timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-size") {
		if cfg.MaxImageSize, err = flags.GetInt64("max-size"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("user") {
		if cfg.UserID, err = flags.GetString("user"); err != nil {
			return nil, err
		}
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache { //nolint:errcheck // flag defined in NewScanCmd
		cfg.CacheSize = 0
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.MetricsFile, err = flags.GetString("metrics-file"); err != nil {
		return nil, err
	}

	cfg.Targets = append(cfg.Targets, args...)

	listPath, err := flags.GetString("list")
	if err != nil {
		return nil, err
	}
	if listPath != "" {
		targets, err := readTargets(listPath)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, targets...)
	}

	requestPath, err := flags.GetString("request")
	if err != nil {
		return nil, err
	}
	if requestPath != "" {
		req, err := readRequest(cmd.InOrStdin(), requestPath)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, strings.TrimSpace(req.ImageURL))
		cfg.ScanOptions = req.Options()
	}

	// The --no-* flags win over both the config file and a request file.
	disableScans(cmd, &cfg.ScanOptions)

	return cfg, nil
}

// disableScans turns off the categories named by --no-links, --no-stego
// and --no-code.
func disableScans(cmd *cobra.Command, opts *model.ScanOptions) {
	flags := cmd.Flags()
	if v, _ := flags.GetBool("no-links"); v { //nolint:errcheck // flag defined in NewScanCmd
		opts.CheckEmbeddedLinks = false
	}
	if v, _ := flags.GetBool("no-stego"); v { //nolint:errcheck // flag defined in NewScanCmd
		opts.CheckSteganography = false
	}
	if v, _ := flags.GetBool("no-code"); v { //nolint:errcheck // flag defined in NewScanCmd
		opts.CheckMaliciousCode = false
	}
}

// readTargets reads one URL per line, skipping blank lines and comments.
func readTargets(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open target list: %w", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read target list: %w", err)
	}
	return targets, nil
}

// readRequest decodes and validates an analyze request from path or stdin.
func readRequest(stdin io.Reader, path string) (*model.AnalyzeRequest, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // User-provided request path is intentional
		if err != nil {
			return nil, fmt.Errorf("failed to open request: %w", err)
		}
		defer f.Close()
		r = f
	}

	req, err := model.DecodeRequest(r)
	if err != nil {
		return nil, fmt.Errorf("invalid analyze request: %w", err)
	}
	return req, nil
}

// scanEnv bundles everything a scan run needs.
type scanEnv struct {
	store       *database.Store
	registry    *prometheus.Registry
	coordinator *analysis.Coordinator
}

// newScanEnv wires the database, metrics, fetcher and coordinator.
// The caller must call close.
func newScanEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*scanEnv, error) {
	if cfg.ProxyAddress != "" {
		if err := fetch.CheckProxy(ctx, cfg.ProxyAddress); err != nil {
			return nil, fmt.Errorf("proxy check failed (make sure a SOCKS5 proxy is running at %s): %w",
				cfg.ProxyAddress, err)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	}

	store, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "path", store.Path())

	if err := seedBlocklist(ctx, store, cfg.File); err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	fetchOpts := []fetch.Option{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithMaxSize(cfg.MaxImageSize),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithLogger(logger),
	}
	if cfg.ProxyAddress != "" {
		fetchOpts = append(fetchOpts, fetch.WithProxy(cfg.ProxyAddress))
	}
	fetcher, err := fetch.NewFetcher(fetchOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	coordOpts := []analysis.Option{
		analysis.WithLogger(logger),
		analysis.WithScanner(model.ThreatEmbeddedLink, links.NewExtractor(store,
			links.WithLogger(logger),
			links.WithLookupRecorder(collector),
		)),
		analysis.WithScanner(model.ThreatSteganography, stego.NewDetector(stego.WithLogger(logger))),
		analysis.WithScanner(model.ThreatMaliciousCode, malcode.NewDetector(malcode.WithLogger(logger))),
		analysis.WithSink(store),
		analysis.WithMetrics(collector),
		analysis.WithAnalyzeTimeout(cfg.AnalyzeTimeout),
	}
	if cfg.CacheSize > 0 {
		coordOpts = append(coordOpts, analysis.WithCache(analysis.NewVerdictCache(cfg.CacheSize, cfg.CacheTTL)))
	}

	return &scanEnv{
		store:       store,
		registry:    registry,
		coordinator: analysis.NewCoordinator(fetcher, coordOpts...),
	}, nil
}

// close waits for background scan log writes before closing the database.
func (s *scanEnv) close() error {
	s.coordinator.Wait()
	return s.store.Close()
}

// seedBlocklist adds the configuration file's blocklist to the database.
func seedBlocklist(ctx context.Context, store *database.Store, file *config.File) error {
	if file == nil {
		return nil
	}
	for _, entry := range file.Blocklist {
		err := store.AddMaliciousURL(ctx, model.MaliciousURLRecord{
			URL:      entry.URL,
			Severity: entry.Severity,
			Source:   "config",
		})
		if err != nil {
			return fmt.Errorf("failed to seed blocklist entry %s: %w", entry.URL, err)
		}
	}
	return nil
}

// runScan analyzes every target and returns the batch report.
// The report is returned even when the scan was interrupted.
func runScan(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*model.BatchReport, error) {
	logger.Info("starting scan",
		"targets", len(cfg.Targets),
		"batchSize", cfg.BatchSize,
		"scanOptions", cfg.ScanOptions.Key(),
	)

	s, err := newScanEnv(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	bp := pipeline.NewBatchProcessor(s.coordinator,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithScanOptions(cfg.ScanOptions),
		pipeline.WithUserID(cfg.UserID),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	batch, scanErr := bp.ProcessBatch(ctx, cfg.Targets)
	logger.Info("scan completed", "elapsed", time.Since(startTime).Round(time.Millisecond))

	if err := s.close(); err != nil {
		logger.Warn("failed to close database", "error", err)
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile, s.registry); err != nil {
			return batch, err
		}
	}
	return batch, scanErr
}

// outputReport writes the batch report in the requested format.
func outputReport(cfg *config.Config, batch *model.BatchReport, stdout io.Writer, showSafe bool) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports list image URLs, which may carry access tokens; keep them owner-only.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided path is intentional
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output,
			report.WithShowSafe(showSafe),
			report.WithVerbose(cfg.Verbose),
			report.WithColor(cfg.ReportFile == "" && stdout == os.Stdout && !color.NoColor),
		)
	}

	if _, err := writer.Write(batch); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
