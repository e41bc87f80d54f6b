package model

import "errors"

var (
	// ErrUnknownSeverity is returned when a severity name is not one of
	// "high", "medium" or "low".
	ErrUnknownSeverity = errors.New("unknown severity")

	// ErrUnknownThreatType is returned when a threat type name is not recognized.
	ErrUnknownThreatType = errors.New("unknown threat type")

	// ErrMissingImageURL is returned when an analyze request has no imageUrl.
	ErrMissingImageURL = errors.New("imageUrl is required")

	// ErrInvalidImageURL is returned when imageUrl is not an absolute http(s) URL.
	ErrInvalidImageURL = errors.New("imageUrl must be an absolute http or https URL")
)
