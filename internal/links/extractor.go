package links

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/nao1215/imgguard/internal/model"
	"github.com/nao1215/imgguard/internal/pixel"
)

// urlPattern finds http(s) URLs in free text.
var urlPattern = regexp.MustCompile(`https?://\S+`)

// Input is what a strategy reads. Grid is nil when the bytes could not be
// decoded as an image.
type Input struct {
	Data []byte
	Grid *pixel.Grid
}

// Strategy finds candidate links in an image.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, in *Input) ([]string, error)
}

// MaliciousURLLookup reports whether a URL, or its host, is known to be
// malicious.
type MaliciousURLLookup interface {
	IsKnownMalicious(ctx context.Context, rawURL string) (bool, error)
}

// LookupRecorder observes lookup outcomes: "malicious", "clean" or "error".
type LookupRecorder interface {
	ObserveLookup(outcome string)
}

// Lookup outcomes passed to LookupRecorder.
const (
	LookupMalicious = "malicious"
	LookupClean     = "clean"
	LookupFailed    = "error"
)

// Extractor collects links with its strategies and checks them with a lookup.
type Extractor struct {
	strategies []Strategy
	lookup     MaliciousURLLookup
	recorder   LookupRecorder
	logger     *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithStrategies replaces the default strategies.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) {
		e.strategies = strategies
	}
}

// WithLookupRecorder sets a recorder for lookup outcomes.
func WithLookupRecorder(r LookupRecorder) Option {
	return func(e *Extractor) {
		e.recorder = r
	}
}

// DefaultStrategies returns the QR, metadata and bit-plane strategies.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewQRStrategy(),
		NewMetadataStrategy(),
		NewBitPlaneStrategy(),
	}
}

// NewExtractor creates an Extractor. A nil lookup disables threat checks;
// links are still extracted.
func NewExtractor(lookup MaliciousURLLookup, opts ...Option) *Extractor {
	e := &Extractor{
		strategies: DefaultStrategies(),
		lookup:     lookup,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractLinks runs every strategy and returns the distinct links in the
// order they were first seen. Strategy errors are logged and skipped.
func (e *Extractor) ExtractLinks(ctx context.Context, data []byte) []string {
	return e.ExtractLinksGrid(ctx, data, e.decode(data))
}

// ExtractLinksGrid is ExtractLinks over pixels the caller already decoded
// from data. A nil grid leaves the pixel strategies with nothing to read.
func (e *Extractor) ExtractLinksGrid(ctx context.Context, data []byte, grid *pixel.Grid) []string {
	in := &Input{Data: data, Grid: grid}

	var all []string
	for _, s := range e.strategies {
		if ctx.Err() != nil {
			break
		}
		found, err := s.Extract(ctx, in)
		if err != nil {
			e.logger.Warn("link extraction failed", "strategy", s.Name(), "error", err)
			continue
		}
		if len(found) > 0 {
			e.logger.Debug("links extracted", "strategy", s.Name(), "count", len(found))
		}
		all = append(all, found...)
	}
	return Dedupe(all)
}

// Check looks up each link and returns a high-severity threat for every
// known-malicious one. Lookup errors are logged and treated as clean.
func (e *Extractor) Check(ctx context.Context, links []string) []model.Threat {
	if e.lookup == nil || len(links) == 0 {
		return nil
	}

	var threats []model.Threat
	for _, link := range links {
		malicious, err := e.lookup.IsKnownMalicious(ctx, link)
		if err != nil {
			lookupErr := &LookupError{URL: link, Err: err}
			e.logger.Warn("treating link as not malicious", "url", link, "error", lookupErr)
			e.observe(LookupFailed)
			continue
		}
		if !malicious {
			e.observe(LookupClean)
			continue
		}
		e.observe(LookupMalicious)
		threats = append(threats, model.NewThreat(
			model.ThreatEmbeddedLink,
			fmt.Sprintf("Malicious link embedded in image: %s", link),
			model.SeverityHigh,
		))
	}
	return threats
}

func (e *Extractor) decode(data []byte) *pixel.Grid {
	grid, err := pixel.Decode(data)
	if err != nil {
		e.logger.Debug("pixel link strategies skipped", "error", err)
		return nil
	}
	return grid
}

// Scan extracts links from data and returns the malicious ones as threats.
// When ctx ends first, the threats found so far are returned with its error.
func (e *Extractor) Scan(ctx context.Context, data []byte) ([]model.Threat, error) {
	return e.ScanGrid(ctx, data, e.decode(data))
}

// ScanGrid is Scan over pixels the caller already decoded from data.
func (e *Extractor) ScanGrid(ctx context.Context, data []byte, grid *pixel.Grid) ([]model.Threat, error) {
	links := e.ExtractLinksGrid(ctx, data, grid)
	threats := e.Check(ctx, links)
	if err := ctx.Err(); err != nil {
		return threats, err
	}
	return threats, nil
}

func (e *Extractor) observe(outcome string) {
	if e.recorder != nil {
		e.recorder.ObserveLookup(outcome)
	}
}

// Dedupe removes repeated links, keeping the first occurrence.
func Dedupe(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// FindURLs returns every http(s) URL substring in text.
func FindURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// IsWebURL reports whether s parses as an absolute http or https URL.
func IsWebURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
