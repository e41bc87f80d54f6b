package model

import (
	"strings"
	"time"
)

const (
	// MaxConfidence is reported for images with no threats.
	MaxConfidence = 1.0

	// MinConfidence is the floor for images with threats. No number of
	// threats pushes confidence below this value.
	MinConfidence = 0.1

	// threatDetailsSeparator joins threat descriptions into ThreatDetails.
	threatDetailsSeparator = "; "
)

// AnalysisResult is the verdict for one image.
// Every field is derived from Threats by NewAnalysisResult; callers should
// not assemble it by hand.
type AnalysisResult struct {
	// IsSafe is true exactly when Threats is empty.
	IsSafe bool `json:"isSafe"`

	// Confidence is 1.0 when safe and max(0.1, 1 - sum of severity weights)
	// otherwise.
	Confidence float64 `json:"confidence"`

	// Threats lists detected threats grouped by category in the order
	// links, steganography, malicious code.
	Threats []Threat `json:"threats"`

	// ThreatDetails joins the threat descriptions. Empty when safe.
	ThreatDetails string `json:"threatDetails,omitempty"`

	// Partial is true when an analyze deadline expired before every
	// enabled scan category finished.
	Partial bool `json:"partial,omitempty"`
}

// NewAnalysisResult derives a result from a threat list.
// A nil list is normalized to an empty slice so JSON renders "threats": [].
func NewAnalysisResult(threats []Threat) *AnalysisResult {
	if threats == nil {
		threats = []Threat{}
	}

	result := &AnalysisResult{
		IsSafe:     len(threats) == 0,
		Confidence: Confidence(threats),
		Threats:    threats,
	}

	if !result.IsSafe {
		descriptions := make([]string, 0, len(threats))
		for _, t := range threats {
			descriptions = append(descriptions, t.Description)
		}
		result.ThreatDetails = strings.Join(descriptions, threatDetailsSeparator)
	}

	return result
}

// Confidence computes the verdict confidence for a threat list.
//
// This is a linear heuristic, not a calibrated probability: each threat
// subtracts its severity weight from 1.0 and the result is clamped at 0.1.
func Confidence(threats []Threat) float64 {
	if len(threats) == 0 {
		return MaxConfidence
	}

	penalty := 0
	for _, t := range threats {
		penalty += t.Severity.weightTenths()
	}

	remaining := 10 - penalty
	if remaining < 1 {
		remaining = 1
	}
	return float64(remaining) / 10
}

// CountBySeverity returns how many threats have the given severity.
func (r *AnalysisResult) CountBySeverity(severity Severity) int {
	count := 0
	for _, t := range r.Threats {
		if t.Severity == severity {
			count++
		}
	}
	return count
}

// ThreatsByType returns the threats of one category, preserving order.
func (r *AnalysisResult) ThreatsByType(threatType ThreatType) []Threat {
	var out []Threat
	for _, t := range r.Threats {
		if t.Type == threatType {
			out = append(out, t)
		}
	}
	return out
}

// ScanLogRecord is emitted once per analyze call that carries a user identity.
type ScanLogRecord struct {
	UserID        string    `json:"userId"`
	ImageURL      string    `json:"imageUrl"`
	ImageDigest   string    `json:"imageDigest,omitempty"`
	IsSafe        bool      `json:"isSafe"`
	Confidence    float64   `json:"confidence"`
	ThreatDetails string    `json:"threatDetails,omitempty"`
	ThreatCount   int       `json:"threatCount"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewScanLogRecord builds the log record for a finished analysis.
func NewScanLogRecord(userID, imageURL, digest string, result *AnalysisResult, now time.Time) ScanLogRecord {
	return ScanLogRecord{
		UserID:        userID,
		ImageURL:      imageURL,
		ImageDigest:   digest,
		IsSafe:        result.IsSafe,
		Confidence:    result.Confidence,
		ThreatDetails: result.ThreatDetails,
		ThreatCount:   len(result.Threats),
		Timestamp:     now,
	}
}

// MaliciousURLRecord is one entry of the known-malicious URL blocklist.
type MaliciousURLRecord struct {
	URL      string    `json:"url"`
	Hostname string    `json:"hostname"`
	Severity Severity  `json:"severity"`
	Source   string    `json:"source"`
	AddedAt  time.Time `json:"addedAt"`
}
