package bridge

import "io"

// closer returns a function that closes c, discarding the error.
// Use with defer for read-only handles where a close error carries no
// information for the caller.
func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
