package links

import "fmt"

// LookupError records a failed malicious-URL lookup. It is logged and the
// link is treated as not malicious.
type LookupError struct {
	URL string
	Err error
}

// Error implements error.
func (e *LookupError) Error() string {
	return fmt.Sprintf("malicious url lookup failed for %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *LookupError) Unwrap() error {
	return e.Err
}
