// Package main provides the entry point for the imgguard CLI.
//
// imgguard downloads images and checks them for embedded threats:
// links to known-malicious URLs hidden in QR codes, metadata or pixel bit
// planes, steganographic payloads, and script or executable content.
//
// Usage:
//
//	imgguard scan <image-url>...
//	imgguard scan --list <file>
//	imgguard blocklist add <url>
//
// See --help for all available options.
package main

// main is the entry point for imgguard.
func main() {
	Execute()
}
