package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout bounds one download including the body.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxImageSize is the largest body accepted, in bytes.
	DefaultMaxImageSize int64 = 20 << 20

	// DefaultUserAgent is sent with every image request.
	DefaultUserAgent = "imgguard/1.0"

	// maxRedirects limits redirect chains.
	maxRedirects = 10
)

// Fetcher downloads images into temporary files.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxSize   int64
	tempDir   string
	proxyAddr string
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. WithProxy and WithTimeout are
// ignored when a client is supplied.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxSize sets the maximum accepted body size in bytes.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) {
		f.maxSize = n
	}
}

// WithTempDir sets the directory for downloaded files.
func WithTempDir(dir string) Option {
	return func(f *Fetcher) {
		f.tempDir = dir
	}
}

// WithProxy routes downloads through the SOCKS5 proxy at "host:port".
func WithProxy(address string) Option {
	return func(f *Fetcher) {
		f.proxyAddr = address
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher. It fails only for an invalid proxy address;
// it does not contact the proxy.
func NewFetcher(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		userAgent: DefaultUserAgent,
		maxSize:   DefaultMaxImageSize,
		tempDir:   os.TempDir(),
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.client == nil {
		client, err := f.newHTTPClient()
		if err != nil {
			return nil, err
		}
		f.client = client
	}
	return f, nil
}

func (f *Fetcher) newHTTPClient() (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}

	if f.proxyAddr != "" {
		dial, err := newSOCKS5Dialer(f.proxyAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dial(ctx, network, addr)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   f.timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// Download is an image saved to a temporary file.
type Download struct {
	// URL is the requested image URL.
	URL string

	// Path is the temporary file holding the body.
	Path string

	// Size is the body size in bytes.
	Size int64

	// ContentType is the response Content-Type header.
	ContentType string

	closeOnce sync.Once
	closeErr  error
}

// Bytes reads the downloaded image.
func (d *Download) Bytes() ([]byte, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded image: %w", err)
	}
	return data, nil
}

// Close removes the temporary file. It is safe to call more than once.
func (d *Download) Close() error {
	d.closeOnce.Do(func() {
		if err := os.Remove(d.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.closeErr = fmt.Errorf("failed to remove downloaded image: %w", err)
		}
	})
	return d.closeErr
}

// tempName returns a unique file name for one download.
func tempName() string {
	return fmt.Sprintf("img_%d_%s", time.Now().UnixNano(), uuid.NewString())
}

// Fetch downloads rawURL. The caller must Close the returned Download.
// Every error is a *DownloadError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, &DownloadError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > f.maxSize {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("%w: %d bytes", ErrImageTooLarge, resp.ContentLength)}
	}

	path := filepath.Join(f.tempDir, tempName())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600) //nolint:gosec // path is built from a uuid
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("failed to create temp file: %w", err)}
	}

	d := &Download{URL: rawURL, Path: path, ContentType: resp.Header.Get("Content-Type")}

	n, copyErr := io.Copy(file, io.LimitReader(resp.Body, f.maxSize+1))
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = d.Close()
		return nil, &DownloadError{URL: rawURL, Err: copyErr}
	case n > f.maxSize:
		_ = d.Close()
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("%w: limit %d bytes", ErrImageTooLarge, f.maxSize)}
	case closeErr != nil:
		_ = d.Close()
		return nil, &DownloadError{URL: rawURL, Err: closeErr}
	}

	d.Size = n
	f.logger.Debug("image downloaded", "url", rawURL, "bytes", n, "content_type", d.ContentType)
	return d, nil
}
