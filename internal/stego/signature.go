package stego

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nao1215/imgguard/internal/model"
)

const (
	// DefaultHeaderSkip is the number of leading bytes ignored by
	// SignatureScan. Image headers legitimately carry magic numbers and
	// embedded thumbnails there.
	DefaultHeaderSkip = 1000

	// SignatureConfidence is reported for every embedded signature match.
	SignatureConfidence = 0.9
)

// FileSignature is a named container magic number in lowercase hex.
type FileSignature struct {
	Name string
	Hex  string
}

// DefaultFileSignatures lists the containers searched for, in report order.
// EXE uses the full "MZ\x90\x00" DOS stub prefix; the bare two-byte "MZ"
// appears by chance in most compressed image data.
var DefaultFileSignatures = []FileSignature{
	{Name: "ZIP", Hex: "504b0304"},
	{Name: "PDF", Hex: "25504446"},
	{Name: "JPEG", Hex: "ffd8ff"},
	{Name: "PNG", Hex: "89504e47"},
	{Name: "GIF", Hex: "47494638"},
	{Name: "RAR", Hex: "52617221"},
	{Name: "EXE", Hex: "4d5a9000"},
}

// SignatureScan searches the bytes after the image header for the magic
// numbers of other file formats.
type SignatureScan struct {
	skip       int
	signatures []FileSignature
}

// NewSignatureScan creates a SignatureScan with the default signatures.
func NewSignatureScan() *SignatureScan {
	return &SignatureScan{
		skip:       DefaultHeaderSkip,
		signatures: DefaultFileSignatures,
	}
}

// Name implements Strategy.
func (s *SignatureScan) Name() string { return "embedded_signature" }

// NeedsPixels implements Strategy.
func (s *SignatureScan) NeedsPixels() bool { return false }

// Find returns the first signature, in list order, present after the
// skipped header region.
func (s *SignatureScan) Find(data []byte) (FileSignature, bool) {
	if len(data) <= s.skip {
		return FileSignature{}, false
	}

	encoded := hex.EncodeToString(data)[s.skip*2:]
	for _, sig := range s.signatures {
		if indexAligned(encoded, sig.Hex) >= 0 {
			return sig, true
		}
	}
	return FileSignature{}, false
}

// indexAligned finds needle in a hex string at an even offset, so
// matches always start on a byte boundary.
func indexAligned(haystack, needle string) int {
	from := 0
	for {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			return -1
		}
		pos := from + i
		if pos%2 == 0 {
			return pos
		}
		from = pos + 1
	}
}

// Detect implements Strategy.
func (s *SignatureScan) Detect(_ context.Context, in *Input) (model.Detection, error) {
	sig, ok := s.Find(in.Data)
	if !ok {
		return model.NoDetection, nil
	}

	return model.Detection{
		Detected:   true,
		Details:    fmt.Sprintf("Hidden %s file detected", sig.Name),
		Confidence: SignatureConfidence,
	}, nil
}

var _ Strategy = (*SignatureScan)(nil)
