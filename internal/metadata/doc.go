// Package metadata extracts textual metadata from image containers:
// EXIF values, PNG text chunks, JPEG comments and XMP packets, and GIF
// extension blocks.
//
// Parsers are best effort. A truncated or malformed container yields the
// fields read before the damage instead of an error.
package metadata
