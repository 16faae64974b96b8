package workers

import (
	"fmt"

	"github.com/nikhilbhutani/docingest/internal/storage"
)

// FetchError means the source object could not be read. The document fails
// without quarantine since there is nothing to copy.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch failed: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// IntegrityError means the fetched bytes do not match the intake hash.
type IntegrityError struct {
	Source storage.Location
	Err    error
}

func (e *IntegrityError) Error() string { return e.Err.Error() }
func (e *IntegrityError) Unwrap() error { return e.Err }
