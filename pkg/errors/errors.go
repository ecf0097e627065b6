// Package errors provides error wrapping utilities and the error kinds shared by
// the record store, the remote source and the lookup service.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error kinds. Callers test for them with Is.
var (
	// ErrNotFoundRemotely means the remote service answered but has no such entity.
	ErrNotFoundRemotely = stderrors.New("not found remotely")
	// ErrRemoteUnavailable means connectivity is known to be down.
	ErrRemoteUnavailable = stderrors.New("remote unavailable")
	// ErrTransport covers timeouts, unexpected statuses and malformed responses.
	ErrTransport = stderrors.New("transport error")
	// ErrPersistence is a database or filesystem write failure.
	ErrPersistence = stderrors.New("persistence error")
	// ErrNoAsset means no local asset could be produced for a record.
	ErrNoAsset = stderrors.New("no asset")
	// ErrInvalidPayload means a remote payload is missing required fields.
	ErrInvalidPayload = stderrors.New("invalid payload")
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Mark wraps err with context and tags it with kind so that Is(result, kind)
// holds while the original cause stays reachable.
// If err is nil, it returns nil.
func Mark(err error, kind error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", context, kind, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return stderrors.New(text)
}
