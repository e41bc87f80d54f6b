package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by ApplyEnv.
const (
	EnvProxy          = "IMGGUARD_PROXY"
	EnvTimeout        = "IMGGUARD_TIMEOUT"
	EnvAnalyzeTimeout = "IMGGUARD_ANALYZE_TIMEOUT"
	EnvBatchSize      = "IMGGUARD_BATCH_SIZE"
	EnvMaxImageSize   = "IMGGUARD_MAX_IMAGE_SIZE"
	EnvUserAgent      = "IMGGUARD_USER_AGENT"
	EnvDBDir          = "IMGGUARD_DB_DIR"
	EnvUser           = "IMGGUARD_USER"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides c with IMGGUARD_* variables.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvProxy); ok {
		c.ProxyAddress = v
	}
	if v, ok := lookup(EnvUserAgent); ok && v != "" {
		c.UserAgent = v
	}
	if v, ok := lookup(EnvDBDir); ok && v != "" {
		c.DBDir = v
	}
	if v, ok := lookup(EnvUser); ok {
		c.UserID = v
	}

	if v, ok := lookup(EnvTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidEnv, EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v, ok := lookup(EnvAnalyzeTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidEnv, EnvAnalyzeTimeout, err)
		}
		c.AnalyzeTimeout = d
	}
	if v, ok := lookup(EnvBatchSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidEnv, EnvBatchSize, err)
		}
		c.BatchSize = n
	}
	if v, ok := lookup(EnvMaxImageSize); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidEnv, EnvMaxImageSize, err)
		}
		c.MaxImageSize = n
	}
	return nil
}
