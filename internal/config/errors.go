package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no image URL or list file is specified.
	ErrNoTarget = errors.New("no target specified: provide an image URL or use --list")

	// ErrInvalidTimeout is returned when the download timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidAnalyzeTimeout is returned when the analyze timeout is negative.
	// Zero disables the deadline.
	ErrInvalidAnalyzeTimeout = errors.New("invalid analyze timeout: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxImageSize is returned when the max image size is not positive.
	ErrInvalidMaxImageSize = errors.New("invalid max image size: must be positive")

	// ErrInvalidCache is returned when the verdict cache size or TTL is negative.
	ErrInvalidCache = errors.New("invalid verdict cache: size and ttl must be non-negative")

	// ErrInvalidEnv is returned when an IMGGUARD_* variable cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment variable")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrConfigExists is returned by WriteTemplate when the file already exists.
	ErrConfigExists = errors.New("configuration file already exists")
)
