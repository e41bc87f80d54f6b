package links

import (
	"context"

	"github.com/nao1215/imgguard/internal/metadata"
)

// MetadataStrategy scans textual metadata fields for URLs.
type MetadataStrategy struct{}

// NewMetadataStrategy creates a MetadataStrategy.
func NewMetadataStrategy() *MetadataStrategy {
	return &MetadataStrategy{}
}

// Name implements Strategy.
func (s *MetadataStrategy) Name() string { return "metadata" }

// Extract implements Strategy.
func (s *MetadataStrategy) Extract(_ context.Context, in *Input) ([]string, error) {
	var found []string
	for _, field := range metadata.Extract(in.Data) {
		found = append(found, FindURLs(field.Value)...)
	}
	return found, nil
}

var _ Strategy = (*MetadataStrategy)(nil)
