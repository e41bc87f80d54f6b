// Package pipeline runs image analyses in bulk.
//
// BatchProcessor fans a list of image URLs out to an Analyzer with bounded
// concurrency (errgroup with SetLimit) and collects one ImageReport per URL
// in input order. A failed analysis is recorded in its report and never
// stops the rest of the batch; only context cancellation does.
package pipeline
