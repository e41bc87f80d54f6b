// Package fetch downloads images into scoped temporary files.
//
// A Fetcher performs one GET per image, optionally through a SOCKS5 proxy,
// and streams the body into a uniquely named file under the temp directory.
// The returned Download owns that file; Close removes it. Every failure is
// a *DownloadError, which also matches ErrDownload with errors.Is.
package fetch
