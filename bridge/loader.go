package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	xlog "github.com/pithecene-io/rtcbridge/internal/log"
)

// ResourceLoader answers load requests for intercepted assets from a
// DataSource.
//
// Info probes are answered synchronously on the caller's goroutine. Range
// reads are fetched on the caller's goroutine, then handed to a single
// delivery worker after a pacing delay; the caller never blocks on the delay.
// Cancellation is re-checked immediately before every response write.
//
// A ResourceLoader is safe for concurrent use. Close stops the delivery worker.
type ResourceLoader struct {
	source  DataSource
	cfg     *loaderConfig
	log     zerolog.Logger
	limiter *rate.Limiter
	worker  *deliveryWorker
	closed  atomic.Bool
}

// NewResourceLoader creates a loader over source with documented defaults.
//
// Default behavior:
//   - Chunk cap: TransportChunkCap (128000 bytes)
//   - Pacing delay: DefaultPacingDelay (200ms)
//   - Content type: DefaultContentType ("video/mp4")
//   - Priming read: DefaultPrimingLength (2 bytes)
//   - Scheduler: RealScheduler()
//   - Unresolvable resources probe as zero length
func NewResourceLoader(source DataSource, opts ...Option) (*ResourceLoader, error) {
	if source == nil {
		return nil, errors.New("bridge: data source is required")
	}

	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoader(cfg); err != nil {
			return nil, fmt.Errorf("bridge: %w", err)
		}
	}

	l := &ResourceLoader{
		source: source,
		cfg:    cfg,
		log:    cfg.logger.With().Str(xlog.FieldComponent, "resource_loader").Logger(),
	}
	if cfg.bandwidth > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.bandwidth), int(cfg.chunkCap))
	}
	l.worker = newDeliveryWorker(cfg.scheduler, l.deliver, l.abort)

	l.log.Debug().
		Str("chunk_cap", units.HumanSize(float64(cfg.chunkCap))).
		Dur("pacing_delay", cfg.pacingDelay).
		Int64("bandwidth", cfg.bandwidth).
		Msg("resource loader ready")

	return l, nil
}

// Load classifies req and dispatches it. Requests asking for content
// information are info probes even when they also carry a data range.
func (l *ResourceLoader) Load(ctx context.Context, req LoadingRequest) bool {
	if req.ContentInfoRequested() {
		return l.LoadContentInfo(ctx, req)
	}
	if _, _, ok := req.DataRange(); ok {
		return l.LoadRange(ctx, req)
	}
	c := l.newCompletion(req, KindRangeRead, 0, 0)
	c.finish(StateFailed, nil, nil, ErrNoRequest)
	return false
}

// LoadContentInfo answers an info probe synchronously.
//
// The reported length comes from the data source. Unresolvable resources are
// reported as zero length unless WithStrictResolution is set; other source
// failures fail the request. When the resource is at least the priming length,
// the first bytes are attached to the response.
func (l *ResourceLoader) LoadContentInfo(ctx context.Context, req LoadingRequest) bool {
	c := l.admit(req, KindInfoProbe, 0, 0)
	if c == nil {
		return false
	}
	id := req.Resource()

	length, err := l.source.Length(ctx, id)
	if err != nil {
		switch {
		case isContextDone(err):
			c.finish(StateCancelled, nil, nil, err)
			return false
		case IsUnresolvable(err) && !l.cfg.strictResolution:
			c.log.Debug().Err(err).Msg("unresolvable resource probed as zero length")
			length = 0
		default:
			c.finish(StateFailed, nil, nil, transportError("length", id, err))
			return false
		}
	}
	if length < 0 {
		length = 0
	}

	info := &ContentInfo{
		Length:                   length,
		ContentType:              l.cfg.contentType,
		ByteRangeAccessSupported: true,
	}

	var priming []byte
	if n := l.cfg.primingLength; n > 0 && length >= n {
		data, err := l.source.Read(ctx, id, 0, n)
		if err != nil {
			c.log.Debug().Err(err).Msg("priming read skipped")
		} else if int64(len(data)) > n {
			priming = data[:n]
		} else {
			priming = data
		}
	}

	if req.IsCancelled() {
		c.finish(StateCancelled, nil, nil, ErrCancelled)
		return true
	}
	c.finish(StateFulfilled, info, priming, nil)
	return true
}

// LoadRange fetches at most the chunk cap of the requested range and
// schedules its paced delivery. The caller does not wait for the delivery.
//
// An offset at or past the end of the resource is fulfilled with an empty
// chunk. Source failures fail the request without retry.
func (l *ResourceLoader) LoadRange(ctx context.Context, req LoadingRequest) bool {
	offset, length, ok := req.DataRange()
	c := l.admit(req, KindRangeRead, offset, length)
	if c == nil {
		return false
	}
	if !ok {
		c.finish(StateFailed, nil, nil, ErrNoRequest)
		return false
	}
	if offset < 0 || length <= 0 {
		c.finish(StateFailed, nil, nil, ErrInvalidRange)
		return false
	}

	effective := min(length, l.cfg.chunkCap)
	data, err := l.source.Read(ctx, req.Resource(), offset, effective)
	if err != nil {
		if isContextDone(err) {
			c.finish(StateCancelled, nil, nil, err)
			return false
		}
		c.finish(StateFailed, nil, nil, transportError("read", req.Resource(), err))
		return false
	}
	if int64(len(data)) > effective {
		data = data[:effective]
	}
	if data == nil {
		data = []byte{}
	}

	delay := l.deliveryDelay(len(data))
	if !l.worker.schedule(&delivery{c: c, data: data}, delay) {
		c.finish(StateCancelled, nil, nil, ErrLoaderClosed)
		return false
	}

	c.log.Debug().
		Int("fetched", len(data)).
		Dur("delay", delay).
		Msg("range delivery scheduled")
	return true
}

// Close stops the delivery worker. Deliveries not yet written complete as
// cancelled with ErrLoaderClosed; later requests are rejected the same way.
func (l *ResourceLoader) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.worker.close()
	return nil
}

// deliveryDelay returns the pacing delay plus the time an n-byte chunk would
// occupy the emulated link.
func (l *ResourceLoader) deliveryDelay(n int) time.Duration {
	delay := l.cfg.pacingDelay
	if l.limiter == nil || n == 0 {
		return delay
	}
	now := l.cfg.scheduler.Now()
	if r := l.limiter.ReserveN(now, n); r.OK() {
		delay += r.DelayFrom(now)
	}
	return delay
}

// deliver runs on the delivery worker. The cancellation check here is the
// single point deciding between a write and a cancellation.
func (l *ResourceLoader) deliver(d *delivery) {
	if d.c.req.IsCancelled() {
		d.c.finish(StateCancelled, nil, nil, ErrCancelled)
		return
	}
	d.c.finish(StateFulfilled, nil, d.data, nil)
}

func (l *ResourceLoader) abort(d *delivery, err error) {
	d.c.finish(StateCancelled, nil, nil, err)
}

// admit performs the admission check. It returns nil when the request was
// rejected and already completed.
func (l *ResourceLoader) admit(req LoadingRequest, kind RequestKind, offset, length int64) *completion {
	c := l.newCompletion(req, kind, offset, length)
	switch {
	case l.closed.Load():
		c.finish(StateCancelled, nil, nil, ErrLoaderClosed)
		return nil
	case req.IsCancelled():
		c.finish(StateCancelled, nil, nil, ErrCancelled)
		return nil
	}
	return c
}

func (l *ResourceLoader) newCompletion(req LoadingRequest, kind RequestKind, offset, length int64) *completion {
	l.cfg.observer.RequestStarted(kind)
	return &completion{
		loader:    l,
		req:       req,
		kind:      kind,
		offset:    offset,
		requested: length,
		started:   l.cfg.scheduler.Now(),
		log: l.log.With().
			Str(xlog.FieldRequestID, req.ID()).
			Str(xlog.FieldResource, req.Resource().String()).
			Stringer(xlog.FieldKind, kind).
			Int64("offset", offset).
			Int64("length", length).
			Logger(),
	}
}

// Ensure ResourceLoader implements Handler
var _ Handler = (*ResourceLoader)(nil)

// -----------------------------------------------------------------------------
// Completion handle
// -----------------------------------------------------------------------------

// completion is the loader's single-owner handle on a request. Every write to
// the request goes through finish, which runs at most once.
type completion struct {
	loader    *ResourceLoader
	req       LoadingRequest
	kind      RequestKind
	offset    int64
	requested int64
	started   time.Time
	log       zerolog.Logger
	done      atomic.Bool
}

// finish writes the response (for fulfilled requests) and completes the
// request. It reports whether this call performed the completion.
func (c *completion) finish(state State, info *ContentInfo, data []byte, err error) bool {
	if !c.done.CompareAndSwap(false, true) {
		return false
	}

	var delivered int64
	if state == StateFulfilled {
		if info != nil {
			c.req.ProvideContentInfo(*info)
		}
		if data != nil {
			c.req.ProvideBytes(data)
			delivered = int64(len(data))
		}
	}

	if ferr := c.req.Finish(state, err); ferr != nil {
		c.log.Warn().Err(ferr).Stringer(xlog.FieldState, state).Msg("request rejected completion")
	}

	c.loader.cfg.observer.RequestCompleted(Completion{
		RequestID: c.req.ID(),
		Resource:  c.req.Resource(),
		Kind:      c.kind,
		Offset:    c.offset,
		Requested: c.requested,
		Delivered: delivered,
		State:     state,
		Err:       err,
		Started:   c.started,
		Finished:  c.loader.cfg.scheduler.Now(),
	})

	switch state {
	case StateFulfilled:
		ev := c.log.Debug().Int64("delivered", delivered)
		if info != nil {
			ev = ev.Int64("content_length", info.Length)
		}
		ev.Msg("request fulfilled")
	case StateCancelled:
		c.log.Info().Err(err).Msg("request cancelled")
	case StateFailed:
		c.log.Warn().Err(err).Msg("request failed")
	}
	return true
}
