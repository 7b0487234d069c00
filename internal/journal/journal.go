// Package journal records completed load requests and exports them as
// JSON Lines or Parquet for offline inspection.
package journal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/parquet-go/parquet-go"
	"github.com/spf13/afero"

	"github.com/pithecene-io/rtcbridge/bridge"
)

// json is a drop-in replacement for encoding/json with better performance.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxScanTokenSize = 1024 * 1024

// Format selects the export encoding.
type Format string

// Supported formats.
const (
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ErrUnknownFormat indicates an unsupported export format.
var ErrUnknownFormat = errors.New("unknown journal format")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSONL, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownFormat)
	}
}

// Entry is one completed load request.
type Entry struct {
	RequestID     string `json:"request_id" parquet:"request_id"`
	Resource      string `json:"resource" parquet:"resource"`
	Kind          string `json:"kind" parquet:"kind"`
	Offset        int64  `json:"offset" parquet:"offset"`
	Requested     int64  `json:"requested" parquet:"requested"`
	Delivered     int64  `json:"delivered" parquet:"delivered"`
	State         string `json:"state" parquet:"state"`
	Error         string `json:"error,omitempty" parquet:"error"`
	LatencyMicros int64  `json:"latency_us" parquet:"latency_us"`
	FinishedAtMS  int64  `json:"finished_at_ms" parquet:"finished_at_ms"`
}

// Journal collects entries. It implements bridge.Observer and is safe for
// concurrent use.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{}
}

// RequestStarted implements bridge.Observer.
func (j *Journal) RequestStarted(bridge.RequestKind) {}

// RequestCompleted implements bridge.Observer.
func (j *Journal) RequestCompleted(c bridge.Completion) {
	e := Entry{
		RequestID:     c.RequestID,
		Resource:      c.Resource.String(),
		Kind:          c.Kind.String(),
		Offset:        c.Offset,
		Requested:     c.Requested,
		Delivered:     c.Delivered,
		State:         c.State.String(),
		LatencyMicros: c.Latency().Microseconds(),
		FinishedAtMS:  c.Finished.UnixMilli(),
	}
	if c.Err != nil {
		e.Error = c.Err.Error()
	}

	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

// Entries returns a copy of the recorded entries in completion order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of recorded entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Write encodes the entries in the given format.
func (j *Journal) Write(w io.Writer, format Format) error {
	switch format {
	case FormatJSONL:
		return WriteJSONL(w, j.Entries())
	case FormatParquet:
		return WriteParquet(w, j.Entries())
	default:
		return fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}
}

// WriteFile writes the journal to path on fsys, replacing any existing file.
// The file is only created once the journal has been encoded.
func (j *Journal) WriteFile(fsys afero.Fs, path string, format Format) error {
	var buf bytes.Buffer
	if err := j.Write(&buf, format); err != nil {
		return err
	}
	return afero.WriteFile(fsys, path, buf.Bytes(), 0o644)
}

// -----------------------------------------------------------------------------
// JSON Lines
// -----------------------------------------------------------------------------

// WriteJSONL writes one JSON object per line.
func WriteJSONL(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// ReadJSONL reads entries written by WriteJSONL. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// -----------------------------------------------------------------------------
// Parquet
// -----------------------------------------------------------------------------

// WriteParquet writes entries as a single Parquet file with Snappy pages.
func WriteParquet(w io.Writer, entries []Entry) error {
	if err := parquet.Write(w, entries, parquet.Compression(&parquet.Snappy)); err != nil {
		return fmt.Errorf("parquet: write: %w", err)
	}
	return nil
}

// ReadParquet reads entries written by WriteParquet.
func ReadParquet(r io.ReaderAt, size int64) ([]Entry, error) {
	entries, err := parquet.Read[Entry](r, size)
	if err != nil {
		return nil, fmt.Errorf("parquet: read: %w", err)
	}
	return entries, nil
}

// Ensure Journal implements bridge.Observer
var _ bridge.Observer = (*Journal)(nil)
