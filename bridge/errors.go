package bridge

import (
	"context"
	"errors"
	"fmt"
)

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates the data source cannot locate the resource.
	ErrNotFound = errNotFound{}

	// ErrCancelled indicates the host cancelled the request.
	ErrCancelled = errors.New("request cancelled")

	// ErrInvalidRange indicates a negative offset or a non-positive length.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidResource indicates an identifier that does not carry the
	// expected scheme prefix.
	ErrInvalidResource = errors.New("invalid resource identifier")

	// ErrUnknownScheme indicates no data source is registered for a scheme.
	ErrUnknownScheme = errors.New("unknown scheme")

	// ErrAlreadyCompleted indicates a second attempt to finish a request.
	ErrAlreadyCompleted = errors.New("request already completed")

	// ErrLoaderClosed indicates the loader was closed before delivery.
	ErrLoaderClosed = errors.New("loader closed")

	// ErrNoRequest indicates a load request carrying neither an info probe
	// nor a data range.
	ErrNoRequest = errors.New("request carries no content-info or data range")
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// TransportError reports a data source failure other than absence.
type TransportError struct {
	Op       string
	Resource ResourceID
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsUnresolvable reports whether err means the resource could not be located
// or its identifier could not be mapped to a backing store.
func IsUnresolvable(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidResource) ||
		errors.Is(err, ErrUnknownScheme)
}

// isContextDone reports whether err came from a cancelled or expired context.
func isContextDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// transportError wraps err unless it is already classified.
func transportError(op string, id ResourceID, err error) error {
	var te *TransportError
	if errors.As(err, &te) || IsUnresolvable(err) || errors.Is(err, ErrInvalidRange) || isContextDone(err) {
		return err
	}
	return &TransportError{Op: op, Resource: id, Err: err}
}
