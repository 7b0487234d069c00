package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/rtcbridge/bridge"
	"github.com/pithecene-io/rtcbridge/internal/testutil"
)

const clipID bridge.ResourceID = "rtc:///media/clip.mp4"

func newLoader(t *testing.T, src bridge.DataSource, opts ...bridge.Option) *bridge.ResourceLoader {
	t.Helper()
	opts = append([]bridge.Option{bridge.WithPacingDelay(0)}, opts...)
	l, err := bridge.NewResourceLoader(src, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// flakySource fails the first read at each listed offset.
type flakySource struct {
	bridge.DataSource
	mu     sync.Mutex
	fail   map[int64]int
	always bool
}

var errFlaky = errors.New("connection reset")

func (f *flakySource) Read(ctx context.Context, id bridge.ResourceID, offset, length int64) ([]byte, error) {
	f.mu.Lock()
	n := f.fail[offset]
	if n > 0 || f.always && offset > 0 {
		f.fail[offset] = n - 1
		f.mu.Unlock()
		return nil, errFlaky
	}
	f.mu.Unlock()
	return f.DataSource.Read(ctx, id, offset, length)
}

func TestPlay_AssemblesResource(t *testing.T) {
	data := testutil.Pattern(1_300_000)
	src := bridge.NewMemorySource()
	src.Put(clipID, data)
	l := newLoader(t, src)

	asset := bridge.NewAsset(clipID, bridge.DefaultScheme, l)
	res, err := New(Config{}).Play(t.Context(), asset)
	require.NoError(t, err)

	assert.Equal(t, int64(1_300_000), res.Info.Length)
	assert.Equal(t, "video/mp4", res.Info.ContentType)
	assert.True(t, res.Info.ByteRangeAccessSupported)
	assert.Equal(t, data[:2], res.Priming)
	assert.Equal(t, data, res.Data)
	// probe + 4 + 4 + 3 chunk-capped reads
	assert.Equal(t, int64(12), res.Requests)
	assert.Zero(t, res.Retries)
}

func TestPlay_ReadAheadOfOne(t *testing.T) {
	data := testutil.Pattern(300_000)
	src := bridge.NewMemorySource()
	src.Put(clipID, data)
	l := newLoader(t, src, bridge.WithChunkCap(64_000))

	res, err := New(Config{ReadAhead: 1, ReadSize: 100_000}).Play(t.Context(), bridge.NewAsset(clipID, bridge.DefaultScheme, l))
	require.NoError(t, err)
	assert.Equal(t, data, res.Data)
	assert.Equal(t, int64(1+2+2+2), res.Requests)
}

func TestPlay_RetriesFailedReads(t *testing.T) {
	data := testutil.Pattern(600_000)
	mem := bridge.NewMemorySource()
	mem.Put(clipID, data)
	src := &flakySource{DataSource: mem, fail: map[int64]int{128_000: 1, 500_000: 2}}
	l := newLoader(t, src)

	res, err := New(Config{}).Play(t.Context(), bridge.NewAsset(clipID, bridge.DefaultScheme, l))
	require.NoError(t, err)
	assert.Equal(t, data, res.Data)
	assert.Equal(t, int64(3), res.Retries)
}

func TestPlay_GivesUpAfterMaxRetries(t *testing.T) {
	mem := bridge.NewMemorySource()
	mem.Put(clipID, testutil.Pattern(300_000))
	src := &flakySource{DataSource: mem, fail: map[int64]int{}, always: true}
	l := newLoader(t, src)

	res, err := New(Config{MaxRetries: 1}).Play(t.Context(), bridge.NewAsset(clipID, bridge.DefaultScheme, l))
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, bridge.StateFailed, reqErr.State)
	assert.ErrorIs(t, err, errFlaky)

	var te *bridge.TransportError
	assert.ErrorAs(t, err, &te)
	assert.NotNil(t, res)
}

func TestPlay_NotIntercepted(t *testing.T) {
	l := newLoader(t, bridge.NewMemorySource())
	asset := bridge.NewAsset("https://cdn.example.com/clip.mp4", bridge.DefaultScheme, l)

	_, err := New(Config{}).Play(t.Context(), asset)
	assert.ErrorIs(t, err, ErrNotIntercepted)
}

func TestPlay_MissingResourceIsEmpty(t *testing.T) {
	l := newLoader(t, bridge.NewMemorySource())

	res, err := New(Config{}).Play(t.Context(), bridge.NewAsset(clipID, bridge.DefaultScheme, l))
	assert.ErrorIs(t, err, ErrEmptyContent)
	require.NotNil(t, res)
	assert.Zero(t, res.Info.Length)
	assert.Empty(t, res.Priming)
}

func TestPlay_MissingResourceStrict(t *testing.T) {
	l := newLoader(t, bridge.NewMemorySource(), bridge.WithStrictResolution())

	_, err := New(Config{}).Play(t.Context(), bridge.NewAsset(clipID, bridge.DefaultScheme, l))
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, bridge.KindInfoProbe, reqErr.Kind)
	assert.ErrorIs(t, err, bridge.ErrNotFound)
}

func TestPlay_CancelStopsInFlightReads(t *testing.T) {
	src := bridge.NewMemorySource()
	src.Put(clipID, testutil.Pattern(1_000_000))
	sched := bridge.NewManualScheduler(time.Unix(0, 0))
	l, err := bridge.NewResourceLoader(src, bridge.WithScheduler(sched))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		_, err := New(Config{ReadAhead: 2}).Play(ctx, bridge.NewAsset(clipID, bridge.DefaultScheme, l))
		done <- err
	}()

	require.Eventually(t, func() bool { return sched.Pending() == 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Play did not return after cancel")
	}

	sched.Advance(time.Second)
	require.NoError(t, l.Close())
}

func TestProbe(t *testing.T) {
	src := bridge.NewMemorySource()
	src.Put(clipID, []byte("ftypisom"))
	l := newLoader(t, src, bridge.WithContentType("video/quicktime"))

	info, priming, err := New(Config{}).Probe(t.Context(), bridge.NewAsset(clipID, bridge.DefaultScheme, l))
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Length)
	assert.Equal(t, "video/quicktime", info.ContentType)
	assert.Equal(t, []byte("ft"), priming)
}

func TestPlayAll_SkipsHostResolvedAssets(t *testing.T) {
	src := bridge.NewMemorySource()
	src.Put(clipID, testutil.Pattern(10))
	l := newLoader(t, src)

	playlist := bridge.Playlist{
		bridge.NewAsset("file:///media/local.mp4", bridge.DefaultScheme, l),
		bridge.NewAsset(clipID, bridge.DefaultScheme, l),
	}
	results, err := New(Config{}).PlayAll(t.Context(), playlist)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, clipID, results[0].Asset)
}
