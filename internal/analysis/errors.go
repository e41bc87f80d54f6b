package analysis

import (
	"errors"
	"fmt"

	"github.com/nao1215/imgguard/internal/model"
)

// ErrDetectorPanic is wrapped by DetectorError when a scanner panicked.
var ErrDetectorPanic = errors.New("detector panicked")

// DetectorError records a failed scan category. It is logged and the
// category contributes no threats.
type DetectorError struct {
	Category model.ThreatType
	Err      error
}

// Error implements error.
func (e *DetectorError) Error() string {
	return fmt.Sprintf("%s detector failed: %v", e.Category, e.Err)
}

// Unwrap returns the underlying error.
func (e *DetectorError) Unwrap() error {
	return e.Err
}

// SinkError records a scan log record that could not be stored.
// It is logged and never returned from Analyze.
type SinkError struct {
	Err error
}

// Error implements error.
func (e *SinkError) Error() string {
	return fmt.Sprintf("failed to record scan log: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SinkError) Unwrap() error {
	return e.Err
}
