// Package bridge serves byte ranges of media assets to a playback host through
// an intercepted URL scheme.
//
// The host issues load requests for assets registered under a custom scheme.
// A ResourceLoader classifies each request as an info probe or a range read,
// answers it from a pluggable DataSource, and writes the response back through
// the request object. Range reads are capped per delivery, paced on a
// dedicated worker, and re-checked for cancellation immediately before the
// write. The bridge does not parse container formats; it only serves bytes.
package bridge

import (
	"context"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// ResourceID names a logical asset under the intercepted scheme
// (for example "rtc:///media/clip.mp4"). It is immutable once a request
// is created for it.
type ResourceID string

// String returns the identifier text.
func (id ResourceID) String() string { return string(id) }

// RequestKind classifies a load request.
type RequestKind int

// Request kinds.
const (
	// KindInfoProbe asks for content metadata (length, type, range support).
	KindInfoProbe RequestKind = iota + 1

	// KindRangeRead asks for the bytes [offset, offset+length) of a resource.
	KindRangeRead
)

func (k RequestKind) String() string {
	switch k {
	case KindInfoProbe:
		return "info_probe"
	case KindRangeRead:
		return "range_read"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is the completion state of a load request.
type State int32

// Completion states. Pending is the only non-terminal state.
const (
	StatePending State = iota
	StateFulfilled
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFulfilled:
		return "fulfilled"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether s is one of the three completion states.
func (s State) Terminal() bool {
	return s == StateFulfilled || s == StateCancelled || s == StateFailed
}

// -----------------------------------------------------------------------------
// Defaults
// -----------------------------------------------------------------------------

const (
	// TransportChunkCap is the maximum number of bytes delivered by a single
	// range-read fulfillment. Hosts issue follow-up reads for the remainder.
	TransportChunkCap int64 = 128_000

	// DefaultPacingDelay is the artificial latency applied before each
	// range-read delivery.
	DefaultPacingDelay = 200 * time.Millisecond

	// DefaultContentType is the content-type label reported by info probes.
	DefaultContentType = "video/mp4"

	// DefaultPrimingLength is the size of the priming read attached to info
	// probes so the host can sniff the container's initial bytes.
	DefaultPrimingLength int64 = 2
)

// ContentInfo is the resolved metadata for a resource.
type ContentInfo struct {
	// Length is the total size of the resource in bytes.
	Length int64

	// ContentType is a fixed label (see DefaultContentType).
	ContentType string

	// ByteRangeAccessSupported is always true for bridged resources.
	ByteRangeAccessSupported bool
}

// -----------------------------------------------------------------------------
// DataSource interface
// -----------------------------------------------------------------------------

// DataSource provides byte ranges of resources.
//
// Implementations may read local files, object stores, in-memory blobs, or
// transform another source. The bridge treats a source as read-only and may
// call it concurrently; implementations whose backing store is not safe for
// concurrent use must serialize access internally.
type DataSource interface {
	// Length returns the total size of the resource.
	// Returns ErrNotFound if the resource cannot be located.
	Length(ctx context.Context, id ResourceID) (int64, error)

	// Read returns up to length bytes starting at offset.
	// Fewer bytes are returned only when the resource ends before
	// offset+length. An offset at or past the end yields an empty slice
	// and a nil error. Returns ErrNotFound if the resource cannot be located
	// and ErrInvalidRange for a negative offset or length.
	Read(ctx context.Context, id ResourceID, offset, length int64) ([]byte, error)
}

// -----------------------------------------------------------------------------
// Loading request interface
// -----------------------------------------------------------------------------

// LoadingRequest is a single in-flight request issued by the playback host.
//
// The host owns the request. The loader holds it only while fulfilling it and
// completes it exactly once through Finish.
type LoadingRequest interface {
	// ID returns an identifier used for logging and journaling.
	ID() string

	// Resource returns the target resource identifier.
	Resource() ResourceID

	// ContentInfoRequested reports whether the host asked for content metadata.
	ContentInfoRequested() bool

	// DataRange returns the requested byte range, if any.
	DataRange() (offset, length int64, ok bool)

	// IsCancelled reports whether the host cancelled the request.
	// It may flip to true at any time from any goroutine.
	IsCancelled() bool

	// ProvideContentInfo records resolved content metadata.
	ProvideContentInfo(info ContentInfo)

	// ProvideBytes appends a chunk of response bytes.
	ProvideBytes(chunk []byte)

	// Finish moves the request to a terminal state.
	// Returns ErrAlreadyCompleted if the request already finished.
	Finish(state State, err error) error
}

// Handler is the capability a playback host invokes for intercepted assets,
// one method per request kind. Both methods report whether the handler took
// responsibility for the request; a false return means the request was
// already completed as cancelled or failed.
type Handler interface {
	// LoadContentInfo answers an info probe synchronously.
	LoadContentInfo(ctx context.Context, req LoadingRequest) bool

	// LoadRange schedules a paced range-read delivery.
	LoadRange(ctx context.Context, req LoadingRequest) bool
}

// -----------------------------------------------------------------------------
// Observer interface
// -----------------------------------------------------------------------------

// Completion describes a finished load request.
type Completion struct {
	RequestID string
	Resource  ResourceID
	Kind      RequestKind
	Offset    int64
	Requested int64
	Delivered int64
	State     State
	Err       error
	Started   time.Time
	Finished  time.Time
}

// Latency returns the time from admission to completion.
func (c Completion) Latency() time.Duration {
	return c.Finished.Sub(c.Started)
}

// Observer receives request lifecycle notifications from a ResourceLoader.
// Implementations must be safe for concurrent use.
type Observer interface {
	// RequestStarted is called once when a request is admitted or rejected.
	RequestStarted(kind RequestKind)

	// RequestCompleted is called once when a request reaches a terminal state.
	RequestCompleted(c Completion)
}

// Observers fans notifications out to several observers.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

type multiObserver []Observer

func (m multiObserver) RequestStarted(kind RequestKind) {
	for _, o := range m {
		if o != nil {
			o.RequestStarted(kind)
		}
	}
}

func (m multiObserver) RequestCompleted(c Completion) {
	for _, o := range m {
		if o != nil {
			o.RequestCompleted(c)
		}
	}
}

type nopObserver struct{}

func (nopObserver) RequestStarted(RequestKind)  {}
func (nopObserver) RequestCompleted(Completion) {}
