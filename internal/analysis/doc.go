// Package analysis coordinates the threat scans of one image.
//
// The Coordinator downloads the image, fans the enabled scan categories out
// concurrently, merges their threats in the fixed order links,
// steganography, malicious code, and derives the verdict. Detector failures
// are fail-open: a panic or error in one category is logged and counts as
// no threat, so a single faulty detector never blocks an otherwise safe
// verdict. Only a failed download is returned to the caller.
package analysis
