package model

import (
	"fmt"
	"strings"
)

// Severity represents the risk level of a detected threat.
//
// Design decision: We use iota-based constants rather than string constants
// so severities can be compared and sorted. Text marshalling keeps the JSON
// and YAML forms as the lowercase names expected by API consumers.
type Severity int

const (
	// SeverityLow indicates a weak signal. A low threat lowers confidence
	// by 0.1 and maps to a detector confidence of 0.5.
	SeverityLow Severity = iota + 1

	// SeverityMedium indicates a suspicious payload that warrants attention.
	// A medium threat lowers confidence by 0.2.
	SeverityMedium

	// SeverityHigh indicates a payload that should block the download.
	// Known-malicious embedded links are always high.
	SeverityHigh
)

// String returns the lowercase wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// weightTenths is the confidence penalty of the severity in tenths.
// Integer tenths keep the sum exact so the 0.1 floor is hit precisely.
func (s Severity) weightTenths() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Weight returns the confidence penalty contributed by one threat
// of this severity: high 0.3, medium 0.2, low 0.1.
func (s Severity) Weight() float64 {
	return float64(s.weightTenths()) / 10
}

// DetectorConfidence returns the confidence a detector reports when a
// signature of this severity matches: high 0.9, medium 0.7, low 0.5.
func (s Severity) DetectorConfidence() float64 {
	switch s {
	case SeverityHigh:
		return 0.9
	case SeverityMedium:
		return 0.7
	case SeverityLow:
		return 0.5
	default:
		return 0
	}
}

// ParseSeverity converts a severity name into a Severity.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if s.weightTenths() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSeverity, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
