package metadata

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"

	"github.com/nao1215/imgguard/internal/pixel"
)

// Field sources.
const (
	SourceEXIF     = "exif"
	SourcePNGText  = "png_text"
	SourceJPEGCom  = "jpeg_comment"
	SourceXMP      = "xmp"
	SourceGIFCom   = "gif_comment"
	SourceGIFText  = "gif_plain_text"
	SourceGIFApp   = "gif_application"
	maxInflateSize = 1 << 20
)

var xmpPrefix = []byte("http://ns.adobe.com/xap/1.0/\x00")

// Field is one textual metadata value.
type Field struct {
	Source string
	Key    string
	Value  string
}

// Extract returns every textual metadata field found in data.
func Extract(data []byte) []Field {
	var fields []Field

	switch pixel.Magic(data) {
	case pixel.FormatPNG:
		fields = append(fields, pngText(data)...)
	case pixel.FormatJPEG:
		fields = append(fields, jpegText(data)...)
	case pixel.FormatGIF:
		info, _ := WalkGIF(data)
		fields = append(fields, info.Fields()...)
	}

	return append(fields, exifText(data)...)
}

// Values returns only the values of fields.
func Values(fields []Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Value)
	}
	return out
}

// exifText reads every EXIF tag with go-exif and keeps the formatted values.
func exifText(data []byte) []Field {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil
	}

	fields := make([]Field, 0, len(entries))
	for _, entry := range entries {
		if entry.TagTypeId != exifcommon.TypeAscii && entry.TagTypeId != exifcommon.TypeUndefined {
			continue
		}
		if entry.Formatted == "" {
			continue
		}
		fields = append(fields, Field{Source: SourceEXIF, Key: entry.TagName, Value: entry.Formatted})
	}
	return fields
}

// pngText reads tEXt, zTXt and iTXt chunks.
func pngText(data []byte) []Field {
	var fields []Field

	pos := 8
	for pos+8 <= len(data) {
		chunkLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		pos += 8
		if chunkLen < 0 || pos+chunkLen > len(data) {
			break
		}
		chunk := data[pos : pos+chunkLen]
		pos += chunkLen + 4

		keyEnd := bytes.IndexByte(chunk, 0)
		if keyEnd < 0 {
			continue
		}
		key := string(chunk[:keyEnd])
		rest := chunk[keyEnd+1:]

		switch chunkType {
		case "tEXt":
			fields = append(fields, Field{Source: SourcePNGText, Key: key, Value: string(rest)})
		case "zTXt":
			if len(rest) < 1 {
				continue
			}
			if text, ok := inflate(rest[1:]); ok {
				fields = append(fields, Field{Source: SourcePNGText, Key: key, Value: text})
			}
		case "iTXt":
			if text, ok := itxtValue(rest); ok {
				fields = append(fields, Field{Source: SourcePNGText, Key: key, Value: text})
			}
		case "IEND":
			return fields
		}
	}
	return fields
}

// itxtValue decodes the body of an iTXt chunk after its keyword:
// compression flag, method, language tag, translated keyword, text.
func itxtValue(rest []byte) (string, bool) {
	if len(rest) < 2 {
		return "", false
	}
	compressed := rest[0] == 1
	rest = rest[2:]

	langEnd := bytes.IndexByte(rest, 0)
	if langEnd < 0 {
		return "", false
	}
	rest = rest[langEnd+1:]

	transEnd := bytes.IndexByte(rest, 0)
	if transEnd < 0 {
		return "", false
	}
	rest = rest[transEnd+1:]

	if compressed {
		return inflate(rest)
	}
	return string(rest), true
}

// inflate decompresses zlib data up to maxInflateSize bytes.
func inflate(data []byte) (string, bool) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxInflateSize))
	if err != nil && len(out) == 0 {
		return "", false
	}
	return string(out), true
}

// jpegText reads COM segments and XMP APP1 segments up to the first scan.
func jpegText(data []byte) []Field {
	var fields []Field

	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			pos++
			continue
		}
		marker := data[pos+1]
		pos += 2

		if marker == 0xDA || marker == 0xD9 {
			break
		}
		if marker == 0xFF || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD8) {
			continue
		}

		segLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		if segLen < 2 || pos+segLen > len(data) {
			break
		}
		seg := data[pos+2 : pos+segLen]
		pos += segLen

		switch {
		case marker == 0xFE:
			fields = append(fields, Field{Source: SourceJPEGCom, Key: "Comment", Value: string(seg)})
		case marker == 0xE1 && bytes.HasPrefix(seg, xmpPrefix):
			fields = append(fields, Field{Source: SourceXMP, Key: "XMP", Value: string(seg[len(xmpPrefix):])})
		}
	}
	return fields
}
