package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"sync"

	"github.com/spf13/afero"
)

// -----------------------------------------------------------------------------
// File Source
// -----------------------------------------------------------------------------

// FileSource implements DataSource over a filesystem.
//
// Identifiers are resolved through the scheme back to file URLs, and the URL
// path is looked up in the filesystem. Every call opens its own handle, so
// FileSource is safe for concurrent use.
type FileSource struct {
	fs     afero.Fs
	scheme Scheme
}

// NewFileSource creates a file-backed DataSource.
// Use afero.NewOsFs() for local files or afero.NewMemMapFs() in tests.
func NewFileSource(fsys afero.Fs, scheme Scheme) (*FileSource, error) {
	if fsys == nil {
		return nil, errors.New("bridge: filesystem is required")
	}
	if err := scheme.Validate(); err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	return &FileSource{fs: fsys, scheme: scheme}, nil
}

// Length returns the file size.
// Returns ErrNotFound for missing files and directories.
func (s *FileSource) Length(_ context.Context, id ResourceID) (int64, error) {
	path, err := s.path(id)
	if err != nil {
		return 0, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if info.IsDir() {
		return 0, ErrNotFound
	}
	return info.Size(), nil
}

// Read reads a byte range using a positioned read.
func (s *FileSource) Read(_ context.Context, id ResourceID, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, ErrInvalidRange
	}
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	file, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer(file)()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	size := info.Size()
	if offset >= size || length == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, min(length, size-offset))
	n, err := file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// path resolves id to a filesystem path.
func (s *FileSource) path(id ResourceID) (string, error) {
	raw, err := s.scheme.Resolve(id)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, ErrInvalidResource)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if p == "" {
		return "", fmt.Errorf("%q has no path: %w", raw, ErrInvalidResource)
	}
	return p, nil
}

// Ensure FileSource implements DataSource
var _ DataSource = (*FileSource)(nil)

// -----------------------------------------------------------------------------
// Memory Source
// -----------------------------------------------------------------------------

// MemorySource implements DataSource over in-memory blobs keyed by
// resource identifier.
//
// MemorySource is safe for concurrent use.
type MemorySource struct {
	mu    sync.RWMutex
	blobs map[ResourceID][]byte
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		blobs: make(map[ResourceID][]byte),
	}
}

// Put stores a copy of data under id, replacing any previous blob.
func (m *MemorySource) Put(id ResourceID, data []byte) {
	blob := make([]byte, len(data))
	copy(blob, data)

	m.mu.Lock()
	m.blobs[id] = blob
	m.mu.Unlock()
}

// Delete removes the blob if present.
func (m *MemorySource) Delete(id ResourceID) {
	m.mu.Lock()
	delete(m.blobs, id)
	m.mu.Unlock()
}

// Length returns the blob size.
func (m *MemorySource) Length(_ context.Context, id ResourceID) (int64, error) {
	m.mu.RLock()
	blob, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return 0, ErrNotFound
	}
	return int64(len(blob)), nil
}

// Read returns a copy of the requested range.
func (m *MemorySource) Read(_ context.Context, id ResourceID, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, ErrInvalidRange
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	size := int64(len(blob))
	if offset >= size {
		return []byte{}, nil
	}
	end := size
	if length < size-offset {
		end = offset + length
	}
	out := make([]byte, end-offset)
	copy(out, blob[offset:end])
	return out, nil
}

// Ensure MemorySource implements DataSource
var _ DataSource = (*MemorySource)(nil)
