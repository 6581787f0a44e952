package candid

import (
	"errors"
	"fmt"
)

// Kind classifies a decode failure.
type Kind string

const (
	MalformedOptional Kind = "malformed optional"
	MalformedVariant  Kind = "malformed variant"
	DuplicateKey      Kind = "duplicate key"
	MalformedValue    Kind = "malformed value"
)

// DecodeError reports a received payload that violates the wire convention.
type DecodeError struct {
	Kind   Kind
	Path   string
	Detail string
}

func (e *DecodeError) Error() string {
	path := e.Path
	if path == "" {
		path = "$"
	}
	if e.Detail == "" {
		return fmt.Sprintf("decode %s: %s", path, e.Kind)
	}
	return fmt.Sprintf("decode %s: %s: %s", path, e.Kind, e.Detail)
}

// Errorf builds a DecodeError at path.
func Errorf(kind Kind, path, format string, args ...any) error {
	return &DecodeError{Kind: kind, Path: path, Detail: fmt.Sprintf(format, args...)}
}

// IsDecodeError reports whether err wraps a DecodeError, optionally of one kind.
func IsDecodeError(err error, kinds ...Kind) bool {
	var de *DecodeError
	if !errors.As(err, &de) {
		return false
	}
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if de.Kind == k {
			return true
		}
	}
	return false
}
