// Package model defines the data structures shared by the detectors,
// the coordinator, storage and report writers.
//
// This package contains the following main types:
//   - Threat: A single detected problem with its category and severity
//   - AnalysisResult: The verdict for one image, derived from its threats
//   - ScanOptions / AnalyzeRequest: Which scan categories to run
//   - ScanLogRecord / MaliciousURLRecord: Records exchanged with storage
//
// Design decision: We keep models in their own package to avoid import
// cycles. The detectors, the database and the report writers all need
// these types.
package model
