package config

import (
	"time"

	"github.com/nao1215/imgguard/internal/model"
)

// File represents the structure of the .imgguard.yaml configuration file.
// Every field is optional; absent fields keep the current value.
type File struct {
	// Defaults overrides the built-in defaults.
	Defaults Defaults `yaml:"defaults,omitempty"`

	// ScanOptions overrides individual scan categories.
	ScanOptions FileScanOptions `yaml:"scanOptions,omitempty"`

	// UserAgent overrides the download User-Agent.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Blocklist seeds the malicious URL database on every scan.
	Blocklist []BlocklistEntry `yaml:"blocklist,omitempty"`
}

// Defaults holds scalar settings from the configuration file.
type Defaults struct {
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	AnalyzeTimeout time.Duration `yaml:"analyzeTimeout,omitempty"`
	BatchSize      int           `yaml:"batchSize,omitempty"`
	MaxImageSize   int64         `yaml:"maxImageSize,omitempty"`
	Proxy          string        `yaml:"proxy,omitempty"`
	DBDir          string        `yaml:"dbDir,omitempty"`
	User           string        `yaml:"user,omitempty"`
	CacheSize      *int          `yaml:"cacheSize,omitempty"`
	CacheTTL       time.Duration `yaml:"cacheTTL,omitempty"`
}

// FileScanOptions uses pointers so an absent key is distinguishable
// from an explicit false.
type FileScanOptions struct {
	CheckEmbeddedLinks *bool `yaml:"checkEmbeddedLinks,omitempty"`
	CheckSteganography *bool `yaml:"checkSteganography,omitempty"`
	CheckMaliciousCode *bool `yaml:"checkMaliciousCode,omitempty"`
}

// BlocklistEntry is a known-malicious URL. Severity defaults to high.
type BlocklistEntry struct {
	URL      string         `yaml:"url"`
	Severity model.Severity `yaml:"severity,omitempty"`
}

// Apply copies every value set in the file onto c.
func (f *File) Apply(c *Config) {
	if f == nil {
		return
	}

	d := f.Defaults
	if d.Timeout > 0 {
		c.Timeout = d.Timeout
	}
	if d.AnalyzeTimeout > 0 {
		c.AnalyzeTimeout = d.AnalyzeTimeout
	}
	if d.BatchSize > 0 {
		c.BatchSize = d.BatchSize
	}
	if d.MaxImageSize > 0 {
		c.MaxImageSize = d.MaxImageSize
	}
	if d.Proxy != "" {
		c.ProxyAddress = d.Proxy
	}
	if d.DBDir != "" {
		c.DBDir = d.DBDir
	}
	if d.User != "" {
		c.UserID = d.User
	}
	if d.CacheSize != nil {
		c.CacheSize = *d.CacheSize
	}
	if d.CacheTTL > 0 {
		c.CacheTTL = d.CacheTTL
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}

	so := f.ScanOptions
	if so.CheckEmbeddedLinks != nil {
		c.ScanOptions.CheckEmbeddedLinks = *so.CheckEmbeddedLinks
	}
	if so.CheckSteganography != nil {
		c.ScanOptions.CheckSteganography = *so.CheckSteganography
	}
	if so.CheckMaliciousCode != nil {
		c.ScanOptions.CheckMaliciousCode = *so.CheckMaliciousCode
	}

	c.File = f
}
