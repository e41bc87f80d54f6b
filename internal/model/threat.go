package model

import "fmt"

// ThreatType identifies the scan category that produced a threat.
type ThreatType string

const (
	// ThreatEmbeddedLink is a known-malicious URL hidden in a QR code,
	// metadata field or pixel bit plane.
	ThreatEmbeddedLink ThreatType = "embedded_link"

	// ThreatSteganography is statistically or structurally hidden data.
	ThreatSteganography ThreatType = "steganography"

	// ThreatMaliciousCode is script or executable content extracted from the image.
	ThreatMaliciousCode ThreatType = "malicious_code"
)

// ThreatTypes lists every threat type in merge order.
// The coordinator always reports links first, then steganography,
// then malicious code.
var ThreatTypes = []ThreatType{ThreatEmbeddedLink, ThreatSteganography, ThreatMaliciousCode}

// Valid reports whether t is a known threat type.
func (t ThreatType) Valid() bool {
	switch t {
	case ThreatEmbeddedLink, ThreatSteganography, ThreatMaliciousCode:
		return true
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ThreatType) UnmarshalText(text []byte) error {
	tt := ThreatType(text)
	if !tt.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownThreatType, string(text))
	}
	*t = tt
	return nil
}

// Threat is a single problem found in an image.
// Threats are values and are never modified after a detector creates them.
type Threat struct {
	// Type is the scan category that found the threat.
	Type ThreatType `json:"type"`

	// Description is a human-readable explanation such as
	// "Hidden PNG file detected".
	Description string `json:"description"`

	// Severity drives the confidence penalty of the threat.
	Severity Severity `json:"severity"`
}

// NewThreat creates a Threat.
func NewThreat(threatType ThreatType, description string, severity Severity) Threat {
	return Threat{
		Type:        threatType,
		Description: description,
		Severity:    severity,
	}
}

// Detection is the outcome of a single detector run.
// Details and Confidence are only meaningful when Detected is true.
type Detection struct {
	Detected   bool
	Details    string
	Confidence float64

	// Severity is set by detectors that know the severity of what they
	// matched, such as a signature entry. Zero means derive it from Confidence.
	Severity Severity
}

// NoDetection is the zero Detection, returned when nothing was found.
var NoDetection = Detection{}

// ThreatSeverity returns the severity of the threat this detection raises.
// Without an explicit Severity, a confidence of 0.8 or more is high,
// 0.6 or more is medium and anything lower is low.
func (d Detection) ThreatSeverity() Severity {
	if d.Severity != 0 {
		return d.Severity
	}
	switch {
	case d.Confidence >= 0.8:
		return SeverityHigh
	case d.Confidence >= 0.6:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
