package database

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/willf/bloom"
	"golang.org/x/net/idna"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/imgguard/internal/model"
)

// DatabaseFile is the file name of the store inside its directory.
const DatabaseFile = "imgguard.db"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// bloomBits and bloomHashes size the exact-URL prefilter for roughly 100k
// entries at a 1% false positive rate.
const (
	bloomBits   = 1 << 20
	bloomHashes = 7
)

// Store provides SQLite-based storage for the malicious URL blocklist and
// the scan log.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string

	// mu guards urls.
	mu sync.RWMutex

	// urls holds every known malicious URL. A negative answer skips the
	// exact-match query.
	urls *bloom.BloomFilter
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a Store in dbDir.
// If CreateIfNotExists is false and the database doesn't exist,
// ErrDatabaseNotFound is returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, DatabaseFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
		urls:   bloom.New(bloomBits, bloomHashes),
	}

	ctx := context.Background()
	if opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := s.loadFilter(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load blocklist filter: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	schema := `
	-- Known malicious URLs consulted for embedded links
	CREATE TABLE IF NOT EXISTS malicious_urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		hostname TEXT NOT NULL,
		severity TEXT NOT NULL DEFAULT 'high',
		source TEXT,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_malicious_hostname ON malicious_urls(hostname);

	-- One row per analysis that carried a user identity
	CREATE TABLE IF NOT EXISTS scan_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		image_url TEXT NOT NULL,
		image_digest TEXT,
		is_safe INTEGER NOT NULL,
		confidence REAL NOT NULL,
		threat_details TEXT,
		threat_count INTEGER NOT NULL DEFAULT 0,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scan_logs_user ON scan_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_scan_logs_timestamp ON scan_logs(timestamp);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// loadFilter seeds the bloom filter from the malicious_urls table.
func (s *Store) loadFilter(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT url FROM malicious_urls")
	if err != nil {
		return err
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return err
		}
		s.urls.AddString(u)
	}
	return rows.Err()
}

// NormalizeHostname extracts the hostname of rawURL in lowercase ASCII
// (punycode) form. It returns "" when rawURL has no host.
func NormalizeHostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(u.Hostname(), ".")
	if host == "" {
		return ""
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(ascii)
}

// IsKnownMalicious reports whether rawURL is on the blocklist, or its
// hostname occurs inside a blocklisted URL.
func (s *Store) IsKnownMalicious(ctx context.Context, rawURL string) (bool, error) {
	rawURL = strings.TrimSpace(rawURL)

	s.mu.RLock()
	maybe := s.urls.TestString(rawURL)
	s.mu.RUnlock()

	if maybe {
		var count int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM malicious_urls WHERE url = ?", rawURL,
		).Scan(&count)
		if err != nil {
			return false, fmt.Errorf("failed to query malicious url: %w", err)
		}
		if count > 0 {
			return true, nil
		}
	}

	host := NormalizeHostname(rawURL)
	if host == "" {
		return false, nil
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM malicious_urls WHERE hostname = ? OR instr(lower(url), ?) > 0",
		host, host,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query malicious hostname: %w", err)
	}
	return count > 0, nil
}

// AddMaliciousURL inserts or updates a blocklist entry. Hostname and
// AddedAt are derived when empty.
func (s *Store) AddMaliciousURL(ctx context.Context, record model.MaliciousURLRecord) error {
	record.URL = strings.TrimSpace(record.URL)
	u, err := url.Parse(record.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, record.URL)
	}
	if record.Hostname == "" {
		record.Hostname = NormalizeHostname(record.URL)
	}
	if record.Severity == 0 {
		record.Severity = model.SeverityHigh
	}
	if record.AddedAt.IsZero() {
		record.AddedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO malicious_urls (url, hostname, severity, source, added_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		hostname = excluded.hostname,
		severity = excluded.severity,
		source = excluded.source
	`
	_, err = s.db.ExecContext(ctx, query,
		record.URL,
		record.Hostname,
		record.Severity.String(),
		record.Source,
		record.AddedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert malicious url: %w", err)
	}

	s.mu.Lock()
	s.urls.AddString(record.URL)
	s.mu.Unlock()
	return nil
}

// ListMaliciousURLs returns every blocklist entry, newest first.
func (s *Store) ListMaliciousURLs(ctx context.Context) ([]model.MaliciousURLRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT url, hostname, severity, source, added_at
	FROM malicious_urls
	ORDER BY added_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list malicious urls: %w", err)
	}
	defer rows.Close()

	var results []model.MaliciousURLRecord
	for rows.Next() {
		var (
			record    model.MaliciousURLRecord
			severity  string
			source    sql.NullString
			timestamp string
		)
		if err := rows.Scan(&record.URL, &record.Hostname, &severity, &source, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan malicious url: %w", err)
		}
		if record.Severity, err = model.ParseSeverity(severity); err != nil {
			record.Severity = model.SeverityHigh
		}
		record.Source = source.String
		record.AddedAt = parseTimestamp(timestamp)
		results = append(results, record)
	}
	return results, rows.Err()
}

// ImportMaliciousURLs reads one URL per line, optionally followed by a
// severity, and adds each with the given source. Blank lines and lines
// starting with '#' are skipped. It returns the number of entries added.
func (s *Store) ImportMaliciousURLs(ctx context.Context, r io.Reader, source string) (int, error) {
	scanner := bufio.NewScanner(r)
	added := 0
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		record := model.MaliciousURLRecord{
			URL:    fields[0],
			Source: source,
		}
		if len(fields) > 1 {
			severity, err := model.ParseSeverity(fields[1])
			if err != nil {
				return added, fmt.Errorf("line %d: %w", line, err)
			}
			record.Severity = severity
		}
		if err := s.AddMaliciousURL(ctx, record); err != nil {
			return added, fmt.Errorf("line %d: %w", line, err)
		}
		added++
	}
	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("failed to read blocklist: %w", err)
	}
	return added, nil
}

// Record stores a scan log entry.
func (s *Store) Record(ctx context.Context, record model.ScanLogRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	query := `
	INSERT INTO scan_logs (user_id, image_url, image_digest, is_safe, confidence, threat_details, threat_count, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.UserID,
		record.ImageURL,
		record.ImageDigest,
		record.IsSafe,
		record.Confidence,
		record.ThreatDetails,
		record.ThreatCount,
		record.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan log: %w", err)
	}
	return nil
}

// RecentScanLogs returns the newest scan logs, optionally filtered by user.
// A non-positive limit returns every matching row.
func (s *Store) RecentScanLogs(ctx context.Context, userID string, limit int) ([]model.ScanLogRecord, error) {
	query := `
	SELECT user_id, image_url, image_digest, is_safe, confidence, threat_details, threat_count, timestamp
	FROM scan_logs
	WHERE 1=1
	`
	args := make([]interface{}, 0, 2)

	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan logs: %w", err)
	}
	defer rows.Close()

	var results []model.ScanLogRecord
	for rows.Next() {
		var (
			record    model.ScanLogRecord
			digest    sql.NullString
			details   sql.NullString
			timestamp string
		)
		err := rows.Scan(
			&record.UserID,
			&record.ImageURL,
			&digest,
			&record.IsSafe,
			&record.Confidence,
			&details,
			&record.ThreatCount,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan log: %w", err)
		}
		record.ImageDigest = digest.String
		record.ThreatDetails = details.String
		record.Timestamp = parseTimestamp(timestamp)
		results = append(results, record)
	}
	return results, rows.Err()
}

// Stats summarizes the store contents.
type Stats struct {
	// MaliciousURLs is the blocklist size.
	MaliciousURLs int `json:"maliciousUrls"`

	// ScanLogs is the number of recorded scans.
	ScanLogs int `json:"scanLogs"`

	// UnsafeScans is the number of recorded scans with at least one threat.
	UnsafeScans int `json:"unsafeScans"`

	// Users is the number of distinct user identities in the scan log.
	Users int `json:"users"`
}

// Stats returns row counts for both tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM malicious_urls").Scan(&st.MaliciousURLs); err != nil {
		return Stats{}, fmt.Errorf("failed to count malicious urls: %w", err)
	}

	var unsafe sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), SUM(CASE WHEN is_safe = 0 THEN 1 ELSE 0 END), COUNT(DISTINCT user_id) FROM scan_logs",
	).Scan(&st.ScanLogs, &unsafe, &st.Users)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, fmt.Errorf("failed to count scan logs: %w", err)
	}
	st.UnsafeScans = int(unsafe.Int64)
	return st, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known format and returns the zero time when
// none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
