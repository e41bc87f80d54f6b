package pixel

import "bytes"

// Format names returned by Magic.
const (
	FormatPNG     = "png"
	FormatJPEG    = "jpeg"
	FormatGIF     = "gif"
	FormatWebP    = "webp"
	FormatBMP     = "bmp"
	FormatTIFF    = "tiff"
	FormatUnknown = "unknown"
)

// Magic identifies the container format from the leading bytes of data.
func Magic(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return FormatJPEG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP
	case bytes.HasPrefix(data, []byte("BM")):
		return FormatBMP
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return FormatTIFF
	default:
		return FormatUnknown
	}
}

// IsMultiFrame reports whether the container format can carry several frames.
func IsMultiFrame(data []byte) bool {
	return Magic(data) == FormatGIF
}
