package metadata

import (
	"errors"
	"fmt"

	"github.com/nao1215/imgguard/internal/pixel"
)

// GIF block introducers and extension labels.
const (
	gifExtension      = 0x21
	gifImageSeparator = 0x2C
	gifTrailer        = 0x3B

	gifLabelPlainText   = 0x01
	gifLabelComment     = 0xFE
	gifLabelApplication = 0xFF
)

// ErrNotGIF is returned by WalkGIF when data has no GIF signature.
var ErrNotGIF = errors.New("not a GIF stream")

// ErrTruncatedGIF is returned by WalkGIF when the stream ends inside a block.
var ErrTruncatedGIF = errors.New("truncated GIF stream")

// AppExtension is a GIF application extension, such as NETSCAPE2.0 or XMP.
type AppExtension struct {
	ID   string
	Data []byte
}

// GIFInfo lists the text-bearing blocks of a GIF stream.
type GIFInfo struct {
	Frames       int
	Comments     []string
	PlainText    []string
	Applications []AppExtension
}

// Fields converts the collected blocks into metadata fields. Application
// payloads are reduced to their printable runs.
func (g GIFInfo) Fields() []Field {
	var fields []Field
	for _, c := range g.Comments {
		fields = append(fields, Field{Source: SourceGIFCom, Key: "Comment", Value: c})
	}
	for _, t := range g.PlainText {
		fields = append(fields, Field{Source: SourceGIFText, Key: "PlainText", Value: t})
	}
	for _, app := range g.Applications {
		text := pixel.PrintableText(app.Data, 4)
		if text == "" {
			continue
		}
		fields = append(fields, Field{Source: SourceGIFApp, Key: app.ID, Value: text})
	}
	return fields
}

// gifReader walks a GIF byte stream.
type gifReader struct {
	data []byte
	pos  int
}

func (r *gifReader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrTruncatedGIF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *gifReader) skip(n int) error {
	if r.pos+n > len(r.data) {
		return ErrTruncatedGIF
	}
	r.pos += n
	return nil
}

// subBlocks reads a chain of data sub-blocks and returns them concatenated.
// The first sub-block is returned separately for extensions that carry a
// fixed header there.
func (r *gifReader) subBlocks() (first, rest []byte, err error) {
	index := 0
	for {
		size, err := r.byte()
		if err != nil {
			return first, rest, err
		}
		if size == 0 {
			return first, rest, nil
		}
		if r.pos+int(size) > len(r.data) {
			return first, rest, ErrTruncatedGIF
		}
		block := r.data[r.pos : r.pos+int(size)]
		r.pos += int(size)
		if index == 0 {
			first = block
		} else {
			rest = append(rest, block...)
		}
		index++
	}
}

// colorTableSize returns the byte size of a color table from a packed field.
func colorTableSize(packed byte) int {
	if packed&0x80 == 0 {
		return 0
	}
	return 3 * (1 << ((packed & 0x07) + 1))
}

// WalkGIF collects comment, plain-text and application extensions from
// every frame of a GIF stream. On a malformed stream it returns what was
// collected together with the error.
func WalkGIF(data []byte) (GIFInfo, error) {
	var info GIFInfo
	if pixel.Magic(data) != pixel.FormatGIF {
		return info, ErrNotGIF
	}

	r := &gifReader{data: data, pos: 6}
	if err := r.skip(4); err != nil {
		return info, err
	}
	packed, err := r.byte()
	if err != nil {
		return info, err
	}
	if err := r.skip(2 + colorTableSize(packed)); err != nil {
		return info, err
	}

	for {
		introducer, err := r.byte()
		if err != nil {
			return info, err
		}

		switch introducer {
		case gifTrailer:
			return info, nil

		case gifImageSeparator:
			if err := r.skip(8); err != nil {
				return info, err
			}
			packed, err := r.byte()
			if err != nil {
				return info, err
			}
			if err := r.skip(colorTableSize(packed) + 1); err != nil {
				return info, err
			}
			if _, _, err := r.subBlocks(); err != nil {
				return info, err
			}
			info.Frames++

		case gifExtension:
			label, err := r.byte()
			if err != nil {
				return info, err
			}
			first, rest, err := r.subBlocks()
			switch label {
			case gifLabelComment:
				info.Comments = append(info.Comments, string(append(append([]byte{}, first...), rest...)))
			case gifLabelPlainText:
				if len(rest) > 0 {
					info.PlainText = append(info.PlainText, string(rest))
				}
			case gifLabelApplication:
				info.Applications = append(info.Applications, AppExtension{ID: string(first), Data: rest})
			}
			if err != nil {
				return info, err
			}

		default:
			return info, fmt.Errorf("unexpected GIF block introducer 0x%02x at offset %d", introducer, r.pos-1)
		}
	}
}
