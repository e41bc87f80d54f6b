package model

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ScanOptions selects which scan categories run for one request.
type ScanOptions struct {
	CheckEmbeddedLinks bool `json:"checkEmbeddedLinks" yaml:"checkEmbeddedLinks"`
	CheckSteganography bool `json:"checkSteganography" yaml:"checkSteganography"`
	CheckMaliciousCode bool `json:"checkMaliciousCode" yaml:"checkMaliciousCode"`
}

// DefaultScanOptions enables every scan category.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		CheckEmbeddedLinks: true,
		CheckSteganography: true,
		CheckMaliciousCode: true,
	}
}

// Enabled reports whether the category of the given threat type is enabled.
func (o ScanOptions) Enabled(threatType ThreatType) bool {
	switch threatType {
	case ThreatEmbeddedLink:
		return o.CheckEmbeddedLinks
	case ThreatSteganography:
		return o.CheckSteganography
	case ThreatMaliciousCode:
		return o.CheckMaliciousCode
	default:
		return false
	}
}

// Key returns a short stable encoding used in cache keys.
func (o ScanOptions) Key() string {
	bit := func(b bool) byte {
		if b {
			return '1'
		}
		return '0'
	}
	return string([]byte{bit(o.CheckEmbeddedLinks), bit(o.CheckSteganography), bit(o.CheckMaliciousCode)})
}

// RequestScanOptions is the wire form of ScanOptions. Missing fields
// are nil and default to true.
type RequestScanOptions struct {
	CheckEmbeddedLinks *bool `json:"checkEmbeddedLinks,omitempty"`
	CheckSteganography *bool `json:"checkSteganography,omitempty"`
	CheckMaliciousCode *bool `json:"checkMaliciousCode,omitempty"`
}

// AnalyzeRequest is the request body accepted by the analyzer.
type AnalyzeRequest struct {
	ImageURL    string              `json:"imageUrl"`
	ScanOptions *RequestScanOptions `json:"scanOptions,omitempty"`
}

// Options resolves the request's scan options, defaulting every missing
// field to true.
func (r *AnalyzeRequest) Options() ScanOptions {
	opts := DefaultScanOptions()
	if r.ScanOptions == nil {
		return opts
	}
	if v := r.ScanOptions.CheckEmbeddedLinks; v != nil {
		opts.CheckEmbeddedLinks = *v
	}
	if v := r.ScanOptions.CheckSteganography; v != nil {
		opts.CheckSteganography = *v
	}
	if v := r.ScanOptions.CheckMaliciousCode; v != nil {
		opts.CheckMaliciousCode = *v
	}
	return opts
}

// Validate checks that the request carries an absolute http(s) image URL.
func (r *AnalyzeRequest) Validate() error {
	raw := strings.TrimSpace(r.ImageURL)
	if raw == "" {
		return ErrMissingImageURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidImageURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidImageURL
	}
	return nil
}

// DecodeRequest reads and validates an AnalyzeRequest from JSON.
func DecodeRequest(r io.Reader) (*AnalyzeRequest, error) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode analyze request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}
