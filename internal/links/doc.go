// Package links extracts URLs hidden in an image and checks them against
// a known-malicious URL lookup.
//
// Three strategies contribute candidate links, which are then deduplicated:
//   - QRStrategy decodes QR codes, retrying on contrast, brightness and
//     inverted variants of the image when the original yields nothing.
//   - MetadataStrategy scans EXIF, PNG, JPEG and GIF text metadata.
//   - BitPlaneStrategy decodes the R, G and B least significant bits of
//     the first pixels.
//
// Lookups fail open: a lookup error marks the link as not malicious.
package links
