// Package database provides SQLite-based storage for imgguard.
//
// The Store keeps two tables:
//   - malicious_urls, the blocklist consulted when embedded links are checked
//   - scan_logs, one row per analysis that carried a user identity
//
// Store implements links.MaliciousURLLookup and analysis.ScanLogSink, so the
// same handle is injected into both the link extractor and the coordinator.
//
// Design decision: SQLite (via modernc.org/sqlite) keeps the blocklist in a
// single CGO-free file next to the user's other XDG data. WAL mode lets the
// fire-and-forget scan log writes proceed while lookups read.
package database
