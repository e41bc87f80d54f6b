package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/imgguard/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) (*Store, func()) {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return db, cleanup
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, DatabaseFile)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, DatabaseFile) {
			t.Errorf("unexpected path %s", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrDatabaseNotFound) {
			t.Errorf("expected ErrDatabaseNotFound, got %v", err)
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		if err := db.AddMaliciousURL(context.Background(), model.MaliciousURLRecord{URL: "http://evil.example/a"}); err != nil {
			t.Fatalf("failed to add url: %v", err)
		}
		_ = db.Close()

		reopened, err := Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer reopened.Close()

		// The bloom filter is rebuilt from disk.
		got, err := reopened.IsKnownMalicious(context.Background(), "http://evil.example/a")
		if err != nil || !got {
			t.Errorf("expected persisted url to be malicious, got %v %v", got, err)
		}
	})
}

// TestDefaultOptions tests default option values.
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("expected CreateIfNotExists to be true")
	}
	if !opts.EnableWAL {
		t.Error("expected EnableWAL to be true")
	}
}

// TestNormalizeHostname tests hostname extraction.
func TestNormalizeHostname(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lowercases host", input: "http://EVIL.Example/x", expected: "evil.example"},
		{name: "drops port", input: "https://evil.example:8443/", expected: "evil.example"},
		{name: "drops trailing dot", input: "http://evil.example./", expected: "evil.example"},
		{name: "punycode", input: "http://bücher.example/", expected: "xn--bcher-kva.example"},
		{name: "no host", input: "not a url", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeHostname(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// TestIsKnownMalicious tests exact and hostname matching.
func TestIsKnownMalicious(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	for _, u := range []string{"http://evil.example/payload", "https://cdn.bad.example/a.png"} {
		if err := db.AddMaliciousURL(ctx, model.MaliciousURLRecord{URL: u, Source: "test"}); err != nil {
			t.Fatalf("failed to add %s: %v", u, err)
		}
	}

	tests := []struct {
		name     string
		url      string
		expected bool
	}{
		{name: "exact url", url: "http://evil.example/payload", expected: true},
		{name: "same host different path", url: "https://evil.example/other", expected: true},
		{name: "host is substring of known url", url: "http://bad.example/", expected: true},
		{name: "uppercase host", url: "http://EVIL.EXAMPLE/", expected: true},
		{name: "unrelated host", url: "http://good.example/", expected: false},
		{name: "no host", url: "just text", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := db.IsKnownMalicious(ctx, tt.url)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %v for %s, got %v", tt.expected, tt.url, got)
			}
		})
	}
}

// TestIsKnownMaliciousClosed tests that a failing database surfaces an error.
func TestIsKnownMaliciousClosed(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	cleanup()

	if _, err := db.IsKnownMalicious(context.Background(), "http://evil.example/"); err == nil {
		t.Error("expected error from closed database")
	}
}

// TestAddMaliciousURL tests insert, defaults and validation.
func TestAddMaliciousURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("derives defaults and upserts", func(t *testing.T) {
		t.Parallel()
		db, cleanup := setupTestDB(t)
		defer cleanup()

		if err := db.AddMaliciousURL(ctx, model.MaliciousURLRecord{URL: " http://Evil.example/x "}); err != nil {
			t.Fatalf("failed to add: %v", err)
		}
		if err := db.AddMaliciousURL(ctx, model.MaliciousURLRecord{
			URL:      "http://Evil.example/x",
			Severity: model.SeverityMedium,
			Source:   "feed",
		}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		records, err := db.ListMaliciousURLs(ctx)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		r := records[0]
		if r.URL != "http://Evil.example/x" || r.Hostname != "evil.example" {
			t.Errorf("unexpected record %+v", r)
		}
		if r.Severity != model.SeverityMedium || r.Source != "feed" {
			t.Errorf("expected upserted severity and source, got %+v", r)
		}
		if r.AddedAt.IsZero() {
			t.Error("expected AddedAt to be set")
		}
	})

	t.Run("rejects non-web urls", func(t *testing.T) {
		t.Parallel()
		db, cleanup := setupTestDB(t)
		defer cleanup()

		for _, u := range []string{"", "ftp://evil.example/", "evil.example"} {
			err := db.AddMaliciousURL(ctx, model.MaliciousURLRecord{URL: u})
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("expected ErrInvalidURL for %q, got %v", u, err)
			}
		}
	})
}

// TestImportMaliciousURLs tests the line-oriented import format.
func TestImportMaliciousURLs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("imports entries and skips comments", func(t *testing.T) {
		t.Parallel()
		db, cleanup := setupTestDB(t)
		defer cleanup()

		input := `# blocklist
http://a.example/1

http://b.example/2 low
  # indented comment
https://c.example/3 MEDIUM
`
		added, err := db.ImportMaliciousURLs(ctx, strings.NewReader(input), "import")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if added != 3 {
			t.Errorf("expected 3 entries, got %d", added)
		}

		records, err := db.ListMaliciousURLs(ctx)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		bySeverity := make(map[string]model.Severity)
		for _, r := range records {
			bySeverity[r.URL] = r.Severity
			if r.Source != "import" {
				t.Errorf("expected source import, got %q", r.Source)
			}
		}
		if bySeverity["http://a.example/1"] != model.SeverityHigh ||
			bySeverity["http://b.example/2"] != model.SeverityLow ||
			bySeverity["https://c.example/3"] != model.SeverityMedium {
			t.Errorf("unexpected severities %v", bySeverity)
		}
	})

	t.Run("reports the failing line", func(t *testing.T) {
		t.Parallel()
		db, cleanup := setupTestDB(t)
		defer cleanup()

		added, err := db.ImportMaliciousURLs(ctx, strings.NewReader("http://a.example/\nhttp://b.example/ critical\n"), "import")
		if !errors.Is(err, model.ErrUnknownSeverity) {
			t.Errorf("expected ErrUnknownSeverity, got %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "line 2") {
			t.Errorf("expected line number in error, got %v", err)
		}
		if added != 1 {
			t.Errorf("expected 1 entry before the failure, got %d", added)
		}
	})
}

// TestScanLogs tests recording and querying scan logs.
func TestScanLogs(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []model.ScanLogRecord{
		{UserID: "alice", ImageURL: "http://img.example/1.png", IsSafe: true, Confidence: 1, Timestamp: base},
		{UserID: "bob", ImageURL: "http://img.example/2.png", IsSafe: false, Confidence: 0.7,
			ThreatDetails: "Malicious link embedded in image: http://evil.example/", ThreatCount: 1, Timestamp: base.Add(time.Second)},
		{UserID: "alice", ImageURL: "http://img.example/3.png", ImageDigest: "abc", IsSafe: false, Confidence: 0.5,
			ThreatDetails: "a; b", ThreatCount: 2, Timestamp: base.Add(1500 * time.Millisecond)},
	}
	for _, r := range records {
		if err := db.Record(ctx, r); err != nil {
			t.Fatalf("failed to record: %v", err)
		}
	}

	t.Run("filters by user newest first", func(t *testing.T) {
		got, err := db.RecentScanLogs(ctx, "alice", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 records, got %d", len(got))
		}
		if got[0].ImageURL != "http://img.example/3.png" || got[1].ImageURL != "http://img.example/1.png" {
			t.Errorf("unexpected order %+v", got)
		}
		if got[0].ImageDigest != "abc" || got[0].ThreatCount != 2 || got[0].IsSafe {
			t.Errorf("unexpected record %+v", got[0])
		}
		if !got[0].Timestamp.Equal(base.Add(1500 * time.Millisecond)) {
			t.Errorf("expected timestamp round trip, got %v", got[0].Timestamp)
		}
	})

	t.Run("limit applies across users", func(t *testing.T) {
		got, err := db.RecentScanLogs(ctx, "", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].UserID != "alice" {
			t.Errorf("unexpected records %+v", got)
		}
	})

	t.Run("stats", func(t *testing.T) {
		st, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if st.ScanLogs != 3 || st.UnsafeScans != 2 || st.Users != 2 || st.MaliciousURLs != 0 {
			t.Errorf("unexpected stats %+v", st)
		}
	})
}

// TestStatsEmpty tests stats on a fresh database.
func TestStatsEmpty(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()

	st, err := db.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != (Stats{}) {
		t.Errorf("expected zero stats, got %+v", st)
	}
}

// TestConcurrentRecordAndLookup tests the store under concurrent use.
func TestConcurrentRecordAndLookup(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := db.AddMaliciousURL(ctx, model.MaliciousURLRecord{URL: "http://evil.example/"}); err != nil {
		t.Fatalf("failed to add: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := db.Record(ctx, model.ScanLogRecord{UserID: "u", ImageURL: "http://img.example/"}); err != nil {
				t.Errorf("record failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if ok, err := db.IsKnownMalicious(ctx, "http://evil.example/"); err != nil || !ok {
				t.Errorf("lookup failed: %v %v", ok, err)
			}
		}()
	}
	wg.Wait()

	logs, err := db.RecentScanLogs(ctx, "u", 0)
	if err != nil || len(logs) != 10 {
		t.Errorf("expected 10 logs, got %d %v", len(logs), err)
	}
}
