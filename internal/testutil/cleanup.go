// Package testutil provides helpers for examples and tests.
package testutil

import (
	"os"
	"path"

	"github.com/spf13/afero"
)

// RemoveAll removes the path and any children. Errors are ignored.
// Use for defer cleanup in examples and tests.
//
// Usage:
//
//	defer testutil.RemoveAll(tmpDir)
func RemoveAll(path string) { _ = os.RemoveAll(path) }

// Pattern returns n bytes where byte i is i mod 251, so misplaced chunks
// show up as mismatches.
func Pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// WriteFiles writes each name/content pair into fsys, creating parent
// directories as needed.
func WriteFiles(fsys afero.Fs, files map[string][]byte) error {
	for name, data := range files {
		if err := fsys.MkdirAll(path.Dir(name), 0o755); err != nil {
			return err
		}
		if err := afero.WriteFile(fsys, name, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
