package arm

import (
	"errors"
	"fmt"
)

// ErrProviderDiscovery indicates the provider listing bootstrap returned no
// usable resource providers. Fatal at first use of the version registry.
var ErrProviderDiscovery = errors.New("provider discovery returned no resource providers")

// RequestError is a non-200 response from the resource management API,
// decoded from the standard {error:{code,message}} envelope.
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
	Path       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request for %s failed with status %d: %s: %s", e.Path, e.StatusCode, e.Code, e.Message)
}

// AmbiguousIdentifierError indicates a list endpoint answered where a single
// record was expected. The caller must narrow the identifier.
type AmbiguousIdentifierError struct {
	ID string
}

func (e *AmbiguousIdentifierError) Error() string {
	return fmt.Sprintf("identifier %q resolved to a collection, expected a single resource", e.ID)
}
