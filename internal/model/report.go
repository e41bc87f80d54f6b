package model

import "time"

// Image report statuses.
const (
	StatusSafe   = "safe"
	StatusUnsafe = "unsafe"
	StatusError  = "error"
)

// ImageReport is the outcome of analyzing one image URL in a batch.
type ImageReport struct {
	// URL is the analyzed image URL.
	URL string `json:"url"`

	// Result is nil when the analysis failed.
	Result *AnalysisResult `json:"result,omitempty"`

	// Error holds the failure message when Result is nil.
	Error string `json:"error,omitempty"`

	// DurationMS is the wall time of the analysis in milliseconds.
	DurationMS int64 `json:"durationMs"`
}

// Status returns "safe", "unsafe" or "error".
func (r ImageReport) Status() string {
	switch {
	case r.Result == nil:
		return StatusError
	case r.Result.IsSafe:
		return StatusSafe
	default:
		return StatusUnsafe
	}
}

// BatchReport collects the reports of one scan run, in input order.
type BatchReport struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Images      []ImageReport `json:"images"`
}

// NewBatchReport creates a BatchReport. A nil list is normalized to empty.
func NewBatchReport(images []ImageReport, generatedAt time.Time) *BatchReport {
	if images == nil {
		images = []ImageReport{}
	}
	return &BatchReport{GeneratedAt: generatedAt, Images: images}
}

// BatchSummary counts images by status and threats by severity.
type BatchSummary struct {
	Total   int `json:"total"`
	Safe    int `json:"safe"`
	Unsafe  int `json:"unsafe"`
	Failed  int `json:"failed"`
	Partial int `json:"partial"`

	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Threats returns the total number of threats.
func (s BatchSummary) Threats() int {
	return s.High + s.Medium + s.Low
}

// Summary computes the batch summary.
func (b *BatchReport) Summary() BatchSummary {
	s := BatchSummary{Total: len(b.Images)}
	for _, img := range b.Images {
		switch img.Status() {
		case StatusError:
			s.Failed++
			continue
		case StatusSafe:
			s.Safe++
		case StatusUnsafe:
			s.Unsafe++
		}
		if img.Result.Partial {
			s.Partial++
		}
		s.High += img.Result.CountBySeverity(SeverityHigh)
		s.Medium += img.Result.CountBySeverity(SeverityMedium)
		s.Low += img.Result.CountBySeverity(SeverityLow)
	}
	return s
}

// HasThreats reports whether any image was found unsafe.
func (b *BatchReport) HasThreats() bool {
	for _, img := range b.Images {
		if img.Status() == StatusUnsafe {
			return true
		}
	}
	return false
}

// HasFailures reports whether any image could not be analyzed.
func (b *BatchReport) HasFailures() bool {
	for _, img := range b.Images {
		if img.Result == nil {
			return true
		}
	}
	return false
}
