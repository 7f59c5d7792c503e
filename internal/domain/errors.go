package domain

import "fmt"

var (
	// ErrMalformedURL rejects input before any network I/O.
	ErrMalformedURL = errString("malformed url")
	// ErrFetchTimeout means the per-fetch time budget was exceeded.
	ErrFetchTimeout = errString("fetch timed out")
	// ErrTooManyRedirects means the redirect cap was exceeded or a loop was hit.
	ErrTooManyRedirects = errString("too many redirects")
	// ErrCatalogCorrupt means the signature catalog could not be compiled.
	ErrCatalogCorrupt = errString("signature catalog corrupt")
	// ErrNotFound is a generic missing-record sentinel.
	ErrNotFound = errString("not found")
)

type errString string

func (e errString) Error() string { return string(e) }

// FetchError carries the underlying network failure (DNS, TLS handshake,
// connection refused). Retries are the batch coordinator's concern.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause) }
func (e *FetchError) Unwrap() error { return e.Cause }

// PersistenceError is a backend read/write failure. Entitlement callers must
// surface it; cache callers may degrade to a miss.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence: %s: %v", e.Op, e.Cause) }
func (e *PersistenceError) Unwrap() error { return e.Cause }

// DeniedError is a terminal authorization outcome, not a failure.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return "entitlement denied: " + e.Reason }
