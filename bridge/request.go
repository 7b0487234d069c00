package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Request is the host-side LoadingRequest implementation.
//
// A Request is created by the host for one read, handed to a Handler, and
// terminates in exactly one of Fulfilled, Cancelled, or Failed. It is never
// reused. Request is safe for concurrent use.
type Request struct {
	id       string
	resource ResourceID

	infoRequested bool
	hasRange      bool
	offset        int64
	length        int64

	cancelled atomic.Bool

	mu    sync.Mutex
	state State
	err   error
	info  *ContentInfo
	data  []byte
	done  chan struct{}
}

// NewInfoRequest creates an info probe for the resource.
func NewInfoRequest(id ResourceID) *Request {
	r := newRequest(id)
	r.infoRequested = true
	return r
}

// NewRangeRequest creates a range read of length bytes at offset.
func NewRangeRequest(id ResourceID, offset, length int64) *Request {
	r := newRequest(id)
	r.hasRange = true
	r.offset = offset
	r.length = length
	return r
}

func newRequest(id ResourceID) *Request {
	return &Request{
		id:       uuid.NewString(),
		resource: id,
		done:     make(chan struct{}),
	}
}

// ID returns the request's unique identifier.
func (r *Request) ID() string { return r.id }

// Resource returns the target resource.
func (r *Request) Resource() ResourceID { return r.resource }

// ContentInfoRequested reports whether this is an info probe.
func (r *Request) ContentInfoRequested() bool { return r.infoRequested }

// DataRange returns the requested range for range reads.
func (r *Request) DataRange() (offset, length int64, ok bool) {
	return r.offset, r.length, r.hasRange
}

// Cancel marks the request cancelled. It may be called at any time.
// Cancelling a finished request has no effect on its state.
func (r *Request) Cancel() {
	r.cancelled.Store(true)
}

// IsCancelled reports whether Cancel was called.
func (r *Request) IsCancelled() bool {
	return r.cancelled.Load()
}

// ProvideContentInfo records content metadata. Ignored after completion.
func (r *Request) ProvideContentInfo(info ContentInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	r.info = &info
}

// ProvideBytes appends a copy of chunk to the response. Ignored after completion.
func (r *Request) ProvideBytes(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	if r.data == nil {
		r.data = make([]byte, 0, len(chunk))
	}
	r.data = append(r.data, chunk...)
}

// Finish moves the request to a terminal state.
func (r *Request) Finish(state State, err error) error {
	if !state.Terminal() {
		return fmt.Errorf("finish: %s is not a terminal state", state)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return ErrAlreadyCompleted
	}
	r.state = state
	r.err = err
	if state != StateFulfilled {
		r.info = nil
		r.data = nil
	}
	close(r.done)
	return nil
}

// Done is closed when the request reaches a terminal state.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request completes or ctx is done. When ctx ends
// first the request is cancelled and ctx's error is returned.
func (r *Request) Wait(ctx context.Context) (State, error) {
	select {
	case <-r.done:
		return r.State(), r.Err()
	case <-ctx.Done():
		r.Cancel()
		return StatePending, ctx.Err()
	}
}

// State returns the current completion state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the error recorded at completion, if any.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ContentInfo returns the metadata provided for an info probe.
func (r *Request) ContentInfo() (ContentInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info == nil {
		return ContentInfo{}, false
	}
	return *r.info, true
}

// Bytes returns a copy of the response bytes written so far.
func (r *Request) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

// Ensure Request implements LoadingRequest
var _ LoadingRequest = (*Request)(nil)
