package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/nao1215/imgguard/internal/model"
	"github.com/nao1215/imgguard/internal/report"
)

const maliciousURL = "https://malware.example/payload"

// cliEnv runs the CLI against its own configuration file and database.
type cliEnv struct {
	t          *testing.T
	dir        string
	configPath string
	dbDir      string
}

func newCLIEnv(t *testing.T, configYAML string) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	env := &cliEnv{
		t:          t,
		dir:        dir,
		configPath: filepath.Join(dir, "imgguard.yaml"),
		dbDir:      filepath.Join(dir, "db"),
	}
	if err := os.WriteFile(env.configPath, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return env
}

// run executes the CLI and returns the exit code, stdout and stderr.
func (e *cliEnv) run(args ...string) (int, string, string) {
	e.t.Helper()

	args = append(args, "--config="+e.configPath, "--db-dir="+e.dbDir)
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// cleanImage returns a 100x100 photo-like image with smooth histograms and
// balanced least significant bits.
func cleanImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			o := img.PixOffset(x, y)
			img.Pix[o] = uint8((x + 3*y) % 256)
			img.Pix[o+1] = uint8((5*x + y) % 256)
			img.Pix[o+2] = uint8((3*x + y + 64) % 256)
			img.Pix[o+3] = 255
		}
	}
	return img
}

// qrPhoto returns a light gradient with a QR code of text in the middle.
func qrPhoto(t *testing.T, text string) *image.NRGBA {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 400, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 400; x++ {
			o := img.PixOffset(x, y)
			p := uint8((x + y) & 1)
			v := uint8(160+2*((x/4)%40)) + p
			img.Pix[o] = v
			img.Pix[o+1] = v
			img.Pix[o+2] = 200 + p
			img.Pix[o+3] = 255
		}
	}

	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	if err != nil {
		t.Fatalf("failed to encode qr: %v", err)
	}
	code := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	draw.Draw(code, code.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(code, code.Bounds(), matrix, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(100, 100, 300, 300), code, image.Point{}, draw.Src)
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// newImageServer serves /clean.png and /qr.png; everything else is 404.
func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()

	bodies := map[string][]byte{
		"/clean.png": encodePNG(t, cleanImage()),
		"/qr.png":    encodePNG(t, qrPhoto(t, maliciousURL)),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestNewRootCmd tests the root command creation.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "imgguard" {
			t.Errorf("expected use 'imgguard', got %q", cmd.Use)
		}
	})

	t.Run("has global flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"verbose", "log-json", "config", "db-dir"} {
			if cmd.PersistentFlags().Lookup(name) == nil {
				t.Errorf("expected persistent flag %q", name)
			}
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		want := map[string]bool{"scan": false, "blocklist": false, "history": false, "init": false, "version": false}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Name()]; ok {
				want[sub.Name()] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("expected subcommand %q", name)
			}
		}
	})
}

// TestScanCommand runs scans end to end against a local image server.
func TestScanCommand(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t)

	t.Run("clean image exits zero", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "")
		code, stdout, stderr := env.run("scan", "--show-safe", srv.URL+"/clean.png")
		if code != exitOK {
			t.Fatalf("expected exit %d, got %d (stderr: %s)", exitOK, code, stderr)
		}
		if !strings.Contains(stdout, "[SAFE] "+srv.URL+"/clean.png") {
			t.Errorf("expected safe image in report, got: %s", stdout)
		}
	})

	t.Run("qr code with blocklisted url exits two", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "")
		if code, _, stderr := env.run("blocklist", "add", maliciousURL); code != exitOK {
			t.Fatalf("blocklist add failed with %d: %s", code, stderr)
		}

		code, stdout, stderr := env.run("scan", srv.URL+"/qr.png")
		if code != exitThreats {
			t.Fatalf("expected exit %d, got %d (stderr: %s)", exitThreats, code, stderr)
		}
		if !strings.Contains(stdout, "Embedded Link") || !strings.Contains(stdout, maliciousURL) {
			t.Errorf("expected embedded link threat in report, got: %s", stdout)
		}
	})

	t.Run("config blocklist seeds the database", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "blocklist:\n  - url: "+maliciousURL+"\n    severity: medium\n")
		code, stdout, stderr := env.run("scan", "--json", srv.URL+"/qr.png")
		if code != exitThreats {
			t.Fatalf("expected exit %d, got %d (stderr: %s)", exitThreats, code, stderr)
		}

		var parsed report.JSONReport
		if err := json.Unmarshal([]byte(stdout), &parsed); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		result := parsed.Report.Images[0].Result
		if result == nil || len(result.Threats) != 1 {
			t.Fatalf("expected one threat, got %+v", result)
		}
		if result.Threats[0].Type != model.ThreatEmbeddedLink || result.Threats[0].Severity != model.SeverityHigh {
			t.Errorf("expected high embedded_link threat, got %+v", result.Threats[0])
		}
	})

	t.Run("disabled link scan ignores the qr code", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "blocklist:\n  - url: "+maliciousURL+"\n")
		code, _, stderr := env.run("scan", "--no-links", srv.URL+"/qr.png")
		if code != exitOK {
			t.Fatalf("expected exit %d, got %d (stderr: %s)", exitOK, code, stderr)
		}
	})

	t.Run("download failure exits one", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "")
		code, stdout, stderr := env.run("scan", srv.URL+"/missing.png")
		if code != exitError {
			t.Fatalf("expected exit %d, got %d", exitError, code)
		}
		if !strings.Contains(stderr, "could not be analyzed") {
			t.Errorf("expected failure summary on stderr, got: %s", stderr)
		}
		if !strings.Contains(stdout, "[ERROR] "+srv.URL+"/missing.png") {
			t.Errorf("expected failed image in report, got: %s", stdout)
		}
	})

	t.Run("list file and markdown output", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "")
		list := filepath.Join(env.dir, "urls.txt")
		content := "# images\n" + srv.URL + "/clean.png\n\n" + srv.URL + "/clean.png?copy=2\n"
		if err := os.WriteFile(list, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write list: %v", err)
		}
		out := filepath.Join(env.dir, "reports", "scan.md")

		code, _, stderr := env.run("scan", "--list", list, "--markdown", "-o", out)
		if code != exitOK {
			t.Fatalf("expected exit %d, got %d (stderr: %s)", exitOK, code, stderr)
		}
		data, err := os.ReadFile(out) //nolint:gosec // test path
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(data), "# imgguard Report") || !strings.Contains(string(data), "[!TIP]") {
			t.Errorf("unexpected markdown report: %s", data)
		}
	})

	t.Run("analyze request file", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "blocklist:\n  - url: "+maliciousURL+"\n")
		reqPath := filepath.Join(env.dir, "request.json")
		body := `{"imageUrl": "` + srv.URL + `/qr.png", "scanOptions": {"checkEmbeddedLinks": false}}`
		if err := os.WriteFile(reqPath, []byte(body), 0o600); err != nil {
			t.Fatalf("failed to write request: %v", err)
		}

		code, _, stderr := env.run("scan", "--request", reqPath)
		if code != exitOK {
			t.Fatalf("expected exit %d, got %d (stderr: %s)", exitOK, code, stderr)
		}
	})

	t.Run("disable flags apply to request file", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "blocklist:\n  - url: "+maliciousURL+"\n")
		reqPath := filepath.Join(env.dir, "request.json")
		body := `{"imageUrl": "` + srv.URL + `/qr.png"}`
		if err := os.WriteFile(reqPath, []byte(body), 0o600); err != nil {
			t.Fatalf("failed to write request: %v", err)
		}

		if code, _, stderr := env.run("scan", "--request", reqPath); code != exitThreats {
			t.Fatalf("expected exit %d without flags, got %d (stderr: %s)", exitThreats, code, stderr)
		}
		if code, _, stderr := env.run("scan", "--request", reqPath, "--no-links"); code != exitOK {
			t.Errorf("expected exit %d with --no-links, got %d (stderr: %s)", exitOK, code, stderr)
		}
	})

	t.Run("invalid analyze request", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "")
		reqPath := filepath.Join(env.dir, "request.json")
		if err := os.WriteFile(reqPath, []byte(`{"imageUrl": "ftp://x"}`), 0o600); err != nil {
			t.Fatalf("failed to write request: %v", err)
		}

		code, _, stderr := env.run("scan", "--request", reqPath)
		if code != exitError || !strings.Contains(stderr, "invalid analyze request") {
			t.Errorf("expected invalid request error, got %d: %s", code, stderr)
		}
	})

	t.Run("scan log and metrics", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "")
		if code, _, stderr := env.run("blocklist", "add", maliciousURL); code != exitOK {
			t.Fatalf("blocklist add failed: %s", stderr)
		}
		metricsFile := filepath.Join(env.dir, "imgguard.prom")

		code, _, stderr := env.run("scan", "--user", "alice", "--metrics-file", metricsFile,
			srv.URL+"/qr.png", srv.URL+"/clean.png")
		if code != exitThreats {
			t.Fatalf("expected exit %d, got %d (stderr: %s)", exitThreats, code, stderr)
		}

		data, err := os.ReadFile(metricsFile) //nolint:gosec // test path
		if err != nil {
			t.Fatalf("failed to read metrics: %v", err)
		}
		for _, want := range []string{"imgguard_analyze_duration_seconds", "imgguard_threats_total"} {
			if !strings.Contains(string(data), want) {
				t.Errorf("expected metric %q in %s", want, data)
			}
		}

		code, stdout, stderr := env.run("history", "--user", "alice", "--json")
		if code != exitOK {
			t.Fatalf("history failed with %d: %s", code, stderr)
		}
		var logs []model.ScanLogRecord
		if err := json.Unmarshal([]byte(stdout), &logs); err != nil {
			t.Fatalf("history output is not valid JSON: %v", err)
		}
		if len(logs) != 2 {
			t.Fatalf("expected 2 scan logs, got %d", len(logs))
		}
		unsafe := 0
		for _, l := range logs {
			if l.UserID != "alice" {
				t.Errorf("expected user alice, got %q", l.UserID)
			}
			if !l.IsSafe {
				unsafe++
			}
		}
		if unsafe != 1 {
			t.Errorf("expected one unsafe scan, got %d", unsafe)
		}
	})

	t.Run("configuration errors", func(t *testing.T) {
		t.Parallel()

		env := newCLIEnv(t, "")
		tests := []struct {
			args []string
			want string
		}{
			{[]string{"scan"}, "no target"},
			{[]string{"scan", "--json", "--markdown", srv.URL + "/clean.png"}, "conflicting report formats"},
			{[]string{"scan", "--batch-size", "0", srv.URL + "/clean.png"}, "invalid batch size"},
			{[]string{"scan", "--proxy", "not-an-address", srv.URL + "/clean.png"}, "proxy check failed"},
		}
		for _, tt := range tests {
			code, _, stderr := env.run(tt.args...)
			if code != exitError || !strings.Contains(stderr, tt.want) {
				t.Errorf("%v: expected exit 1 with %q, got %d: %s", tt.args, tt.want, code, stderr)
			}
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		var stdout, stderr bytes.Buffer
		code := run([]string{"scan", "--config", filepath.Join(t.TempDir(), "nope.yaml"), srv.URL + "/clean.png"}, &stdout, &stderr)
		if code != exitError || !strings.Contains(stderr.String(), "configuration file not found") {
			t.Errorf("expected missing config error, got %d: %s", code, stderr.String())
		}
	})
}

// TestBlocklistCommand tests blocklist management.
func TestBlocklistCommand(t *testing.T) {
	t.Parallel()

	env := newCLIEnv(t, "")

	if code, stdout, stderr := env.run("blocklist", "add", "--severity", "medium", maliciousURL); code != exitOK {
		t.Fatalf("add failed with %d: %s", code, stderr)
	} else if !strings.Contains(stdout, "Added 1 URL(s)") {
		t.Errorf("unexpected add output: %s", stdout)
	}

	feed := filepath.Join(env.dir, "feed.txt")
	if err := os.WriteFile(feed, []byte("# feed\nhttp://phish.example/login low\nhttp://bad.example/\n"), 0o600); err != nil {
		t.Fatalf("failed to write feed: %v", err)
	}
	if code, stdout, stderr := env.run("blocklist", "import", "--source", "feed", feed); code != exitOK {
		t.Fatalf("import failed with %d: %s", code, stderr)
	} else if !strings.Contains(stdout, "Imported 2 URL(s)") {
		t.Errorf("unexpected import output: %s", stdout)
	}

	code, stdout, stderr := env.run("blocklist", "list", "--json")
	if code != exitOK {
		t.Fatalf("list failed with %d: %s", code, stderr)
	}
	var records []model.MaliciousURLRecord
	if err := json.Unmarshal([]byte(stdout), &records); err != nil {
		t.Fatalf("list output is not valid JSON: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	code, stdout, _ = env.run("blocklist", "list")
	if code != exitOK || !strings.Contains(stdout, "|") || !strings.Contains(stdout, "phish.example") {
		t.Errorf("unexpected table output (%d): %s", code, stdout)
	}

	t.Run("check reports matches", func(t *testing.T) {
		code, stdout, _ := env.run("blocklist", "check", "http://phish.example/other", "https://fine.example/")
		if code != exitThreats {
			t.Errorf("expected exit %d, got %d", exitThreats, code)
		}
		if !strings.Contains(stdout, "malicious\thttp://phish.example/other") || !strings.Contains(stdout, "clean\thttps://fine.example/") {
			t.Errorf("unexpected check output: %s", stdout)
		}
	})

	t.Run("rejects unknown severity", func(t *testing.T) {
		code, _, stderr := env.run("blocklist", "add", "--severity", "critical", maliciousURL)
		if code != exitError || !strings.Contains(stderr, "severity") {
			t.Errorf("expected severity error, got %d: %s", code, stderr)
		}
	})

	t.Run("rejects invalid url", func(t *testing.T) {
		code, _, _ := env.run("blocklist", "add", "not a url")
		if code != exitError {
			t.Errorf("expected exit %d, got %d", exitError, code)
		}
	})
}

// TestHistoryCommand tests history output on an empty database.
func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	env := newCLIEnv(t, "")

	code, stdout, stderr := env.run("history")
	if code != exitOK {
		t.Fatalf("history failed with %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "No scans recorded.") {
		t.Errorf("unexpected output: %s", stdout)
	}

	code, stdout, _ = env.run("history", "--json")
	if code != exitOK || strings.TrimSpace(stdout) != "[]" {
		t.Errorf("expected empty JSON list, got %d: %s", code, stdout)
	}

	code, stdout, _ = env.run("history", "--stats")
	if code != exitOK || !strings.Contains(stdout, "Malicious URLs") {
		t.Errorf("unexpected stats output (%d): %s", code, stdout)
	}
}

// TestInitCommand tests configuration template generation.
func TestInitCommand(t *testing.T) {
	t.Parallel()

	env := newCLIEnv(t, "")
	out := filepath.Join(env.dir, "nested", ".imgguard.yaml")

	code, stdout, stderr := env.run("init", "-o", out)
	if code != exitOK {
		t.Fatalf("init failed with %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Created configuration file: "+out) {
		t.Errorf("unexpected output: %s", stdout)
	}

	code, _, stderr = env.run("init", "-o", out)
	if code != exitError || !strings.Contains(stderr, "use -f to overwrite") {
		t.Errorf("expected overwrite refusal, got %d: %s", code, stderr)
	}

	if code, _, stderr := env.run("init", "-o", out, "-f"); code != exitOK {
		t.Errorf("expected forced init to succeed, got %d: %s", code, stderr)
	}

	code, _, stderr = env.run("scan", "--config="+out, "--db-dir="+env.dbDir, "--json", "--markdown", "http://images.example/a.png")
	if code != exitError || !strings.Contains(stderr, "conflicting report formats") {
		t.Errorf("expected generated config to load, got %d: %s", code, stderr)
	}
}

// TestVersionCommand tests version output.
func TestVersionCommand(t *testing.T) {
	t.Parallel()

	if v := getVersion(); v == "" {
		t.Error("getVersion() returned empty string")
	}
	if c := getCommit(); c == "" {
		t.Error("getCommit() returned empty string")
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"version"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("version failed with %d: %s", code, stderr.String())
	}
	for _, want := range []string{"imgguard version", "commit:", "built:"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("expected %q in output, got %q", want, stdout.String())
		}
	}

	stdout.Reset()
	if code := run([]string{"version", "--json"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("version --json failed with %d", code)
	}
	var info versionInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if info.Version == "" {
		t.Error("expected version in JSON output")
	}
}
