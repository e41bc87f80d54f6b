package database

import "errors"

var (
	// ErrDatabaseNotFound is returned by Open when CreateIfNotExists is false
	// and no database file exists.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrInvalidURL is returned when a blocklist entry is not an absolute
	// http(s) URL.
	ErrInvalidURL = errors.New("invalid malicious url")
)
