// Package host simulates a media playback host driving a bridge.Handler.
//
// A Player behaves the way a media framework does when it meets an asset
// under a custom scheme: it probes the content information once, then pulls
// the resource with several range reads in flight, re-requesting whatever a
// short delivery left out and retrying failed reads.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/rtcbridge/bridge"
	xlog "github.com/pithecene-io/rtcbridge/internal/log"
)

// Defaults.
const (
	DefaultReadSize   int64 = 500_000
	DefaultReadAhead        = 4
	DefaultMaxRetries       = 2
)

var (
	// ErrNotIntercepted indicates an asset that the host resolves itself.
	ErrNotIntercepted = errors.New("asset is not routed to a loader")

	// ErrEmptyContent indicates the probe reported zero length.
	ErrEmptyContent = errors.New("content length is zero")

	// ErrShortContent indicates a read returned no bytes before the
	// advertised length was reached.
	ErrShortContent = errors.New("content ended before advertised length")
)

// RequestError reports a load request that did not complete fulfilled.
type RequestError struct {
	Kind   bridge.RequestKind
	Offset int64
	State  bridge.State
	Err    error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %d %s: %v", e.Kind, e.Offset, e.State, e.Err)
	}
	return fmt.Sprintf("%s at %d %s", e.Kind, e.Offset, e.State)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Config configures a Player. Zero values select the defaults.
type Config struct {
	// ReadSize is the length the host asks for in each range read.
	ReadSize int64

	// ReadAhead bounds the number of range reads in flight.
	ReadAhead int

	// MaxRetries bounds re-issues of a failed or cancelled range read.
	// Negative disables retries.
	MaxRetries int

	Logger *zerolog.Logger
}

// Result is the outcome of playing one asset.
type Result struct {
	Asset    bridge.ResourceID
	Info     bridge.ContentInfo
	Priming  []byte
	Data     []byte
	Requests int64
	Retries  int64
}

// Player plays assets through their handler. It is safe for concurrent use.
type Player struct {
	readSize   int64
	readAhead  int
	maxRetries int
	log        zerolog.Logger
}

// New creates a Player.
func New(cfg Config) *Player {
	p := &Player{
		readSize:   cfg.ReadSize,
		readAhead:  cfg.ReadAhead,
		maxRetries: cfg.MaxRetries,
		log:        zerolog.Nop(),
	}
	if p.readSize <= 0 {
		p.readSize = DefaultReadSize
	}
	if p.readAhead <= 0 {
		p.readAhead = DefaultReadAhead
	}
	if p.maxRetries == 0 {
		p.maxRetries = DefaultMaxRetries
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	if cfg.Logger != nil {
		p.log = *cfg.Logger
	}
	return p
}

// Probe issues a single info probe for asset.
func (p *Player) Probe(ctx context.Context, asset bridge.Asset) (bridge.ContentInfo, []byte, error) {
	h := asset.Handler()
	if h == nil {
		return bridge.ContentInfo{}, nil, fmt.Errorf("%s: %w", asset.ID(), ErrNotIntercepted)
	}

	req := bridge.NewInfoRequest(asset.ID())
	h.LoadContentInfo(ctx, req)
	state, err := req.Wait(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return bridge.ContentInfo{}, nil, ctxErr
	}
	if state != bridge.StateFulfilled {
		return bridge.ContentInfo{}, nil, &RequestError{Kind: bridge.KindInfoProbe, State: state, Err: err}
	}
	info, _ := req.ContentInfo()
	return info, req.Bytes(), nil
}

// Play probes asset and reads it completely. Cancelling ctx cancels every
// outstanding load request.
func (p *Player) Play(ctx context.Context, asset bridge.Asset) (*Result, error) {
	info, priming, err := p.Probe(ctx, asset)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Asset:    asset.ID(),
		Info:     info,
		Priming:  priming,
		Requests: 1,
	}
	log := p.log.With().Str(xlog.FieldResource, asset.ID().String()).Int64("length", info.Length).Logger()
	if info.Length == 0 {
		log.Warn().Msg("empty content")
		return res, fmt.Errorf("%s: %w", asset.ID(), ErrEmptyContent)
	}

	res.Data = make([]byte, info.Length)
	var requests, retries atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.readAhead)
	for off := int64(0); off < info.Length; off += p.readSize {
		end := min(off+p.readSize, info.Length)
		seg := segment{offset: off, buf: res.Data[off:end]}
		g.Go(func() error {
			return p.fetch(gctx, asset, seg, &requests, &retries)
		})
	}
	err = g.Wait()

	res.Requests += requests.Load()
	res.Retries = retries.Load()
	if err != nil {
		log.Warn().Err(err).Int64("requests", res.Requests).Msg("playback failed")
		return res, err
	}
	log.Debug().Int64("requests", res.Requests).Int64("retries", res.Retries).Msg("playback complete")
	return res, nil
}

type segment struct {
	offset int64
	buf    []byte
}

// fetch fills seg, issuing follow-up reads for short deliveries.
func (p *Player) fetch(ctx context.Context, asset bridge.Asset, seg segment, requests, retries *atomic.Int64) error {
	h := asset.Handler()
	filled := 0
	attempts := 0
	for filled < len(seg.buf) {
		offset := seg.offset + int64(filled)
		req := bridge.NewRangeRequest(asset.ID(), offset, int64(len(seg.buf)-filled))
		requests.Add(1)
		h.LoadRange(ctx, req)

		state, err := req.Wait(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if state != bridge.StateFulfilled {
			if attempts >= p.maxRetries {
				return &RequestError{Kind: bridge.KindRangeRead, Offset: offset, State: state, Err: err}
			}
			attempts++
			retries.Add(1)
			p.log.Debug().Err(err).Int64("offset", offset).Int("attempt", attempts).Msg("retrying range read")
			continue
		}

		data := req.Bytes()
		if len(data) == 0 {
			return fmt.Errorf("%s at %d: %w", asset.ID(), offset, ErrShortContent)
		}
		filled += copy(seg.buf[filled:], data)
		attempts = 0
	}
	return nil
}

// PlayAll plays the intercepted assets of a playlist in order and skips the
// rest. It stops at the first failure.
func (p *Player) PlayAll(ctx context.Context, playlist bridge.Playlist) ([]*Result, error) {
	var results []*Result
	for _, asset := range playlist {
		if !asset.Intercepted() {
			p.log.Debug().Str(xlog.FieldResource, asset.ID().String()).Msg("skipping asset resolved by host")
			continue
		}
		res, err := p.Play(ctx, asset)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
