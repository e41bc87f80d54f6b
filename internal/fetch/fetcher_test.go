package fetch

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func newImageServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/image.png":
			if got := r.Header.Get("User-Agent"); got != "imgguard-test" {
				http.Error(w, "bad agent "+got, http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(body)
		case "/redirect":
			http.Redirect(w, r, "/image.png", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// dirEntries returns the number of files in dir.
func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	return len(entries)
}

// TestFetch tests successful downloads and temp file lifecycle.
func TestFetch(t *testing.T) {
	t.Parallel()

	body := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 256)
	srv := newImageServer(t, body)

	for _, path := range []string{"/image.png", "/redirect"} {
		t.Run(path, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			f, err := NewFetcher(WithTempDir(dir), WithUserAgent("imgguard-test"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			d, err := f.Fetch(context.Background(), srv.URL+path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Size != int64(len(body)) || d.ContentType != "image/png" {
				t.Errorf("unexpected download %+v", d)
			}
			if !strings.HasPrefix(d.Path, dir) || !strings.Contains(d.Path, "img_") {
				t.Errorf("unexpected temp path %s", d.Path)
			}

			got, err := d.Bytes()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, body) {
				t.Error("downloaded bytes differ")
			}

			if err := d.Close(); err != nil {
				t.Errorf("unexpected close error: %v", err)
			}
			if err := d.Close(); err != nil {
				t.Errorf("second close should be a no-op, got %v", err)
			}
			if _, err := os.Stat(d.Path); !os.IsNotExist(err) {
				t.Error("expected temp file to be removed")
			}
		})
	}
}

// TestFetchErrors tests that every failure is a DownloadError and leaves
// no temp file behind.
func TestFetchErrors(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, bytes.Repeat([]byte{1}, 2048))

	t.Run("non-2xx status", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		f, _ := NewFetcher(WithTempDir(dir), WithUserAgent("imgguard-test"))
		_, err := f.Fetch(context.Background(), srv.URL+"/missing.png")

		var dlErr *DownloadError
		if !errors.As(err, &dlErr) {
			t.Fatalf("expected DownloadError, got %v", err)
		}
		if dlErr.StatusCode != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", dlErr.StatusCode)
		}
		if !errors.Is(err, ErrDownload) {
			t.Error("expected error to match ErrDownload")
		}
		if n := dirEntries(t, dir); n != 0 {
			t.Errorf("expected no temp files, got %d", n)
		}
	})

	t.Run("body too large", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		f, _ := NewFetcher(WithTempDir(dir), WithUserAgent("imgguard-test"), WithMaxSize(1024))
		_, err := f.Fetch(context.Background(), srv.URL+"/image.png")
		if !errors.Is(err, ErrImageTooLarge) || !errors.Is(err, ErrDownload) {
			t.Errorf("expected ErrImageTooLarge download error, got %v", err)
		}
		if n := dirEntries(t, dir); n != 0 {
			t.Errorf("expected no temp files, got %d", n)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		addr := ln.Addr().String()
		_ = ln.Close()

		f, _ := NewFetcher(WithTempDir(t.TempDir()))
		_, err = f.Fetch(context.Background(), "http://"+addr+"/x.png")
		var dlErr *DownloadError
		if !errors.As(err, &dlErr) || dlErr.StatusCode != 0 || dlErr.Err == nil {
			t.Errorf("expected transport DownloadError, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		f, _ := NewFetcher(WithTempDir(t.TempDir()), WithUserAgent("imgguard-test"))
		_, err := f.Fetch(ctx, srv.URL+"/image.png")
		if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrDownload) {
			t.Errorf("expected cancelled download error, got %v", err)
		}
	})

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()

		f, _ := NewFetcher()
		_, err := f.Fetch(context.Background(), "http://[::1")
		if !errors.Is(err, ErrDownload) {
			t.Errorf("expected ErrDownload, got %v", err)
		}
	})
}

// TestDownloadErrorMessage tests the error text.
func TestDownloadErrorMessage(t *testing.T) {
	t.Parallel()

	status := &DownloadError{URL: "http://img.example/a.png", StatusCode: 500}
	if !strings.Contains(status.Error(), "500") {
		t.Errorf("expected status in message, got %q", status.Error())
	}
	transport := &DownloadError{URL: "http://img.example/a.png", Err: errors.New("reset")}
	if !strings.Contains(transport.Error(), "reset") {
		t.Errorf("expected cause in message, got %q", transport.Error())
	}
}

// TestIsValidProxyAddress tests proxy address validation.
func TestIsValidProxyAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		address  string
		expected bool
	}{
		{name: "ipv4", address: "127.0.0.1:9050", expected: true},
		{name: "hostname", address: "localhost:1080", expected: true},
		{name: "ipv6", address: "[::1]:1080", expected: true},
		{name: "empty", address: "", expected: false},
		{name: "no port", address: "127.0.0.1", expected: false},
		{name: "empty host", address: ":9050", expected: false},
		{name: "port zero", address: "127.0.0.1:0", expected: false},
		{name: "port too large", address: "127.0.0.1:65536", expected: false},
		{name: "non-numeric port", address: "127.0.0.1:abc", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := isValidProxyAddress(tc.address); got != tc.expected {
				t.Errorf("isValidProxyAddress(%q) = %v, expected %v", tc.address, got, tc.expected)
			}
		})
	}
}

// TestNewFetcherProxy tests proxy configuration.
func TestNewFetcherProxy(t *testing.T) {
	t.Parallel()

	t.Run("invalid proxy is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewFetcher(WithProxy("nope"))
		if !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})

	t.Run("unreachable proxy fails the download", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		addr := ln.Addr().String()
		_ = ln.Close()

		f, err := NewFetcher(WithProxy(addr), WithTimeout(2*time.Second), WithTempDir(t.TempDir()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := f.Fetch(context.Background(), "http://img.example/a.png"); !errors.Is(err, ErrDownload) {
			t.Errorf("expected ErrDownload, got %v", err)
		}
	})
}

// fakeProxy accepts one connection and answers the greeting with reply.
func fakeProxy(t *testing.T, reply []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 3)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		_, _ = conn.Write(reply)
	}()
	return ln.Addr().String()
}

// TestCheckProxy tests the SOCKS5 greeting check.
func TestCheckProxy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("socks5 without auth", func(t *testing.T) {
		t.Parallel()
		if err := CheckProxy(ctx, fakeProxy(t, []byte{0x05, 0x00})); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("requires auth", func(t *testing.T) {
		t.Parallel()
		if err := CheckProxy(ctx, fakeProxy(t, []byte{0x05, 0xFF})); !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("expected ErrProxyNotSOCKS5, got %v", err)
		}
	})

	t.Run("http server", func(t *testing.T) {
		t.Parallel()
		if err := CheckProxy(ctx, fakeProxy(t, []byte("HTTP/1.1 400 Bad Request\r\n"))); !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("expected ErrProxyNotSOCKS5, got %v", err)
		}
	})

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		addr := ln.Addr().String()
		_ = ln.Close()
		if err := CheckProxy(ctx, addr); !errors.Is(err, ErrProxyCannotConnect) {
			t.Errorf("expected ErrProxyCannotConnect, got %v", err)
		}
	})

	t.Run("invalid address", func(t *testing.T) {
		t.Parallel()
		if err := CheckProxy(ctx, "bad"); !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})
}
