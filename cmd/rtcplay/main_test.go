package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/rtcbridge/bridge/s3"
	"github.com/pithecene-io/rtcbridge/internal/journal"
	"github.com/pithecene-io/rtcbridge/internal/testutil"
)

func execute(t *testing.T, fsys afero.Fs, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RTCBRIDGE_LOG_LEVEL", "disabled")
	cmd := newRootCmdFs(fsys)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func mediaFs(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, testutil.WriteFiles(fsys, map[string][]byte{
		"/media/a.mp4": testutil.Pattern(300_000),
		"/media/b.mp4": testutil.Pattern(10),
	}))
	return fsys
}

func TestPlay_WritesSummaryAndJournal(t *testing.T) {
	const journalPath = "/media/requests.jsonl"
	fsys := mediaFs(t)

	out, err := execute(t, fsys,
		"play", "--pacing-delay", "0s", "--journal", journalPath,
		"/media/a.mp4", "/media/b.mp4",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "rtc:///media/a.mp4\t300kB\tvideo/mp4\trequests=4 retries=0")
	assert.Contains(t, out, "rtc:///media/b.mp4\t10B\tvideo/mp4\trequests=2 retries=0")
	assert.Contains(t, out, "played 2 asset(s)")

	f, err := fsys.Open(journalPath)
	require.NoError(t, err)
	defer f.Close()
	entries, err := journal.ReadJSONL(f)
	require.NoError(t, err)
	assert.Len(t, entries, 6)
	for _, e := range entries {
		assert.Equal(t, "fulfilled", e.State)
	}
}

func TestPlay_ChunkCapFlag(t *testing.T) {
	out, err := execute(t, mediaFs(t), "play", "--pacing-delay", "0s", "--chunk-cap", "100kB", "/media/a.mp4")
	require.NoError(t, err)
	assert.Contains(t, out, "requests=4 retries=0")
}

func TestPlay_SourceRoot(t *testing.T) {
	t.Setenv("RTCBRIDGE_SOURCE_ROOT", "/media")
	out, err := execute(t, mediaFs(t), "play", "--pacing-delay", "0s", "b.mp4")
	require.NoError(t, err)
	assert.Contains(t, out, "rtc:///b.mp4\t10B")
}

func TestPlay_MissingFileIsEmpty(t *testing.T) {
	_, err := execute(t, mediaFs(t), "play", "--pacing-delay", "0s", "/media/missing.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content length is zero")
}

func TestPlay_RequiresArgs(t *testing.T) {
	_, err := execute(t, mediaFs(t), "play")
	require.Error(t, err)
}

func TestPlay_InvalidChunkCap(t *testing.T) {
	_, err := execute(t, mediaFs(t), "play", "--chunk-cap", "huge", "/media/a.mp4")
	require.Error(t, err)
}

func TestProbe_PrintsContentInfo(t *testing.T) {
	out, err := execute(t, mediaFs(t), "probe", "/media/b.mp4", "/media/missing.mp4")
	require.NoError(t, err)
	assert.Contains(t, out, "rtc:///media/b.mp4\tlength=10 (10B)\ttype=video/mp4\tranges=true\tpriming=0001")
	assert.Contains(t, out, "rtc:///media/missing.mp4\tlength=0 (0B)")
}

func TestPlay_S3Source(t *testing.T) {
	mock := s3.NewMockS3Client()
	mock.SetObject("media", "clips/a.mp4", testutil.Pattern(200_000))

	orig := s3ClientFactory
	s3ClientFactory = func(context.Context, s3.ClientConfig) (s3.API, error) { return mock, nil }
	t.Cleanup(func() { s3ClientFactory = orig })

	t.Setenv("RTCBRIDGE_SOURCE_KIND", "s3")
	t.Setenv("RTCBRIDGE_S3_BUCKET", "media")

	out, err := execute(t, afero.NewMemMapFs(), "play", "--pacing-delay", "0s", "clips/a.mp4")
	require.NoError(t, err)
	assert.Contains(t, out, "rtcs3://media/clips/a.mp4\t200kB\tvideo/mp4\trequests=3 retries=0")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rtcplay dev")
}

func TestMetricsRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "rtcbridge_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := httptest.NewServer(newMetricsRouter(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "rtcbridge_test_total 1")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
