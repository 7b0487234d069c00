package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// -----------------------------------------------------------------------------
// Zstd Source
// -----------------------------------------------------------------------------

// ZstdSource serves the decompressed bytes of zstd-compressed resources held
// by another DataSource.
//
// A resource may hold several concatenated frames, so a single frame header
// cannot describe its size: Length decompresses the resource to measure it.
// Reads decompress the resource and slice the requested range. Nothing is
// kept between calls.
//
// ZstdSource is safe for concurrent use.
type ZstdSource struct {
	inner   DataSource
	decoder *zstd.Decoder
}

// NewZstdSource wraps inner, whose resources are zstd frames.
func NewZstdSource(inner DataSource) (*ZstdSource, error) {
	if inner == nil {
		return nil, errors.New("bridge: inner data source is required")
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("bridge: zstd decoder: %w", err)
	}
	return &ZstdSource{inner: inner, decoder: dec}, nil
}

// Length returns the decompressed size of every frame in the resource.
func (z *ZstdSource) Length(ctx context.Context, id ResourceID) (int64, error) {
	data, err := z.decompress(ctx, id)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// Read returns a range of the decompressed bytes.
func (z *ZstdSource) Read(ctx context.Context, id ResourceID, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, ErrInvalidRange
	}
	data, err := z.decompress(ctx, id)
	if err != nil {
		return nil, err
	}
	size := int64(len(data))
	if offset >= size {
		return []byte{}, nil
	}
	end := size
	if length < size-offset {
		end = offset + length
	}
	return data[offset:end], nil
}

// Close releases decoder resources.
func (z *ZstdSource) Close() {
	z.decoder.Close()
}

func (z *ZstdSource) decompress(ctx context.Context, id ResourceID) ([]byte, error) {
	n, err := z.inner.Length(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := z.inner.Read(ctx, id, 0, n)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []byte{}, nil
	}
	out, err := z.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: decode %s: %w", id, err)
	}
	return out, nil
}

// Ensure ZstdSource implements DataSource
var _ DataSource = (*ZstdSource)(nil)
