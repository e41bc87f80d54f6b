// Package signature holds the table of text signatures that identify
// script and executable payloads.
//
// The table is data: entries are loaded from an embedded YAML file and
// compiled once. Matching runs an Aho-Corasick keyword prefilter over the
// text and confirms candidates with the entry's regular expression.
package signature
