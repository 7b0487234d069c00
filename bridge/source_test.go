package bridge

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func newTestFileSource(t *testing.T, files map[string][]byte) *FileSource {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, data := range files {
		if err := afero.WriteFile(fsys, name, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	src, err := NewFileSource(fsys, DefaultScheme)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

// -----------------------------------------------------------------------------
// FileSource
// -----------------------------------------------------------------------------

func TestFileSource_Length(t *testing.T) {
	src := newTestFileSource(t, map[string][]byte{
		"/media/clip.mp4":  []byte("hello world"),
		"/media/empty.mp4": {},
	})

	tests := []struct {
		name    string
		id      ResourceID
		want    int64
		wantErr error
	}{
		{"file", "rtc:///media/clip.mp4", 11, nil},
		{"empty file", "rtc:///media/empty.mp4", 0, nil},
		{"missing file", "rtc:///media/nope.mp4", 0, ErrNotFound},
		{"directory", "rtc:///media", 0, ErrNotFound},
		{"native scheme", "file:///media/clip.mp4", 0, ErrInvalidResource},
		{"no path", "rtc:", 0, ErrInvalidResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Length(t.Context(), tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Length = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFileSource_Read(t *testing.T) {
	content := []byte("hello world")
	src := newTestFileSource(t, map[string][]byte{"/media/clip.mp4": content})
	const id ResourceID = "rtc:///media/clip.mp4"

	tests := []struct {
		name   string
		offset int64
		length int64
		want   []byte
	}{
		{"whole file", 0, 11, content},
		{"prefix", 0, 5, []byte("hello")},
		{"middle", 6, 3, []byte("wor")},
		{"beyond end truncates", 6, 100, []byte("world")},
		{"at end", 11, 5, []byte{}},
		{"past end", 50, 5, []byte{}},
		{"zero length", 3, 0, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Read(t.Context(), id, tt.offset, tt.length)
			if err != nil {
				t.Fatal(err)
			}
			if got == nil {
				t.Fatal("Read returned nil slice")
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Read = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileSource_Read_Errors(t *testing.T) {
	src := newTestFileSource(t, map[string][]byte{"/media/clip.mp4": []byte("x")})

	if _, err := src.Read(t.Context(), "rtc:///media/clip.mp4", -1, 1); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("negative offset: expected ErrInvalidRange, got %v", err)
	}
	if _, err := src.Read(t.Context(), "rtc:///media/missing.mp4", 0, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file: expected ErrNotFound, got %v", err)
	}
	if _, err := src.Read(t.Context(), "rtc:///media", 0, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("directory: expected ErrNotFound, got %v", err)
	}
}

func TestFileSource_EscapedPath(t *testing.T) {
	src := newTestFileSource(t, map[string][]byte{"/media/my clip.mp4": []byte("abc")})

	u, err := FileURL("/media/my clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	id, err := DefaultScheme.Rewrite(u)
	if err != nil {
		t.Fatal(err)
	}
	n, err := src.Length(t.Context(), id)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Length = %d, want 3", n)
	}
}

func TestNewFileSource_Validation(t *testing.T) {
	if _, err := NewFileSource(nil, DefaultScheme); err == nil {
		t.Error("expected error for nil filesystem")
	}
	if _, err := NewFileSource(afero.NewMemMapFs(), Scheme{Custom: "rtc", Native: "rtc"}); err == nil {
		t.Error("expected error for identical schemes")
	}
}

// -----------------------------------------------------------------------------
// MemorySource
// -----------------------------------------------------------------------------

func TestMemorySource_PutCopies(t *testing.T) {
	m := NewMemorySource()
	data := []byte("abc")
	m.Put("mem:a", data)
	data[0] = 'z'

	got, err := m.Read(t.Context(), "mem:a", 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abc" {
		t.Errorf("Read = %q, want %q", got, "abc")
	}

	got[1] = 'z'
	again, _ := m.Read(t.Context(), "mem:a", 0, 3)
	if string(again) != "abc" {
		t.Errorf("Read returned shared storage: %q", again)
	}
}

func TestMemorySource_Read(t *testing.T) {
	m := NewMemorySource()
	m.Put("mem:a", []byte("0123456789"))

	tests := []struct {
		offset, length int64
		want           string
	}{
		{0, 4, "0123"},
		{8, 4, "89"},
		{10, 4, ""},
		{2, 1 << 62, "23456789"},
	}
	for _, tt := range tests {
		got, err := m.Read(t.Context(), "mem:a", tt.offset, tt.length)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != tt.want {
			t.Errorf("Read(%d, %d) = %q, want %q", tt.offset, tt.length, got, tt.want)
		}
	}
}

func TestMemorySource_Delete(t *testing.T) {
	m := NewMemorySource()
	m.Put("mem:a", []byte("x"))
	m.Delete("mem:a")

	if _, err := m.Length(t.Context(), "mem:a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.Read(t.Context(), "mem:a", 0, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
