package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrDownload matches every *DownloadError.
	ErrDownload = errors.New("image download failed")

	// ErrImageTooLarge is returned when the body exceeds the configured
	// maximum image size.
	ErrImageTooLarge = errors.New("image exceeds maximum size")

	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyNotSOCKS5 is returned when the proxy responds but does not
	// speak SOCKS5 without authentication.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")
)

// DownloadError is the only error an analysis surfaces to its caller:
// without image bytes there is nothing to scan.
type DownloadError struct {
	// URL is the image URL that failed.
	URL string

	// StatusCode is the HTTP status for non-2xx responses, 0 otherwise.
	StatusCode int

	// Err is the transport, size or filesystem error. Nil for status errors.
	Err error
}

// Error implements error.
func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDownload.
func (e *DownloadError) Is(target error) bool {
	return target == ErrDownload
}
