package fetcher

import (
	"fmt"
)

// TransportError reports a failed canister call: connection failure, timeout,
// a rejected query or a reply the agent could not decode.
type TransportError struct {
	Canister   string
	Method     string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("query %s.%s: status %d: %v", e.Canister, e.Method, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("query %s.%s: %v", e.Canister, e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
