package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/imgguard/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "imgguard"

	// DefaultTimeout bounds a single image download.
	DefaultTimeout = 30 * time.Second

	// DefaultAnalyzeTimeout of zero means analysis has no deadline of its
	// own; only the download timeout applies.
	DefaultAnalyzeTimeout = time.Duration(0)

	// DefaultBatchSize is the number of images analyzed concurrently.
	DefaultBatchSize = 4

	// DefaultMaxImageSize limits how many bytes of an image are downloaded.
	DefaultMaxImageSize = 20 * 1024 * 1024 // 20MB

	// DefaultUserAgent identifies imgguard in HTTP requests.
	DefaultUserAgent = "imgguard/1.0 (+https://github.com/nao1215/imgguard)"

	// DefaultCacheSize is the number of verdicts kept in memory.
	// Zero disables the verdict cache.
	DefaultCacheSize = 1024

	// DefaultCacheTTL is how long a cached verdict stays valid.
	DefaultCacheTTL = 10 * time.Minute
)

// Config holds all configuration options for imgguard.
// This struct is populated from the config file, the environment and CLI
// flags and passed through the application rather than kept as global state.
type Config struct {
	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	// Empty means images are downloaded directly.
	ProxyAddress string

	// Timeout bounds each image download.
	Timeout time.Duration

	// AnalyzeTimeout bounds a whole analysis. Zero disables it.
	AnalyzeTimeout time.Duration

	// MaxImageSize is the maximum image size in bytes.
	MaxImageSize int64

	// UserAgent is the User-Agent header sent with downloads.
	UserAgent string

	// BatchSize is the number of images analyzed concurrently.
	BatchSize int

	// ScanOptions selects the scan categories.
	ScanOptions model.ScanOptions

	// UserID attributes scans in the scan log. Empty disables the scan log.
	UserID string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches the log output to JSON.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// File is the loaded configuration file, if any.
	File *File

	// JSONReport and MarkdownReport select the report format.
	// They are mutually exclusive; neither means the simple text report.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// Targets is the list of image URLs to analyze.
	Targets []string

	// DBDir is the directory holding the SQLite database.
	// Defaults to XDG data directory (~/.local/share/imgguard on Linux).
	DBDir string

	// MetricsFile is a Prometheus textfile written after a scan.
	// Empty disables metrics output.
	MetricsFile string

	// CacheSize and CacheTTL configure the verdict cache.
	CacheSize int
	CacheTTL  time.Duration
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:        DefaultTimeout,
		AnalyzeTimeout: DefaultAnalyzeTimeout,
		MaxImageSize:   DefaultMaxImageSize,
		UserAgent:      DefaultUserAgent,
		BatchSize:      DefaultBatchSize,
		ScanOptions:    model.DefaultScanOptions(),
		DBDir:          XDGDataDir(),
		CacheSize:      DefaultCacheSize,
		CacheTTL:       DefaultCacheTTL,
	}
}

// XDGDataDir returns the XDG data directory for imgguard.
// On Linux: ~/.local/share/imgguard
// On macOS: ~/Library/Application Support/imgguard
// On Windows: %LOCALAPPDATA%\imgguard
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for imgguard.
// On Linux: ~/.config/imgguard
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.AnalyzeTimeout < 0 {
		return ErrInvalidAnalyzeTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxImageSize <= 0 {
		return ErrInvalidMaxImageSize
	}
	if c.CacheSize < 0 || c.CacheTTL < 0 {
		return ErrInvalidCache
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}
