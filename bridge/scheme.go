package bridge

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Scheme maps a backing store's native URL scheme to the intercepted custom
// scheme. The mapping substitutes only the leading "<scheme>:" prefix, so it
// is bijective for inputs carrying the expected prefix.
type Scheme struct {
	// Custom is the intercepted scheme (for example "rtc").
	Custom string

	// Native is the backing store's scheme (for example "file").
	Native string
}

// DefaultScheme intercepts local files under "rtc:".
var DefaultScheme = Scheme{Custom: "rtc", Native: "file"}

// Validate checks that both schemes are well-formed and distinct.
func (s Scheme) Validate() error {
	for _, name := range []string{s.Custom, s.Native} {
		if !validSchemeName(name) {
			return fmt.Errorf("scheme %q: %w", name, ErrInvalidResource)
		}
	}
	if strings.EqualFold(s.Custom, s.Native) {
		return fmt.Errorf("custom and native scheme are both %q: %w", s.Custom, ErrInvalidResource)
	}
	return nil
}

// Rewrite substitutes the native prefix of rawURL with the custom prefix.
// Returns ErrInvalidResource if rawURL does not start with the native prefix.
func (s Scheme) Rewrite(rawURL string) (ResourceID, error) {
	rest, ok := strings.CutPrefix(rawURL, s.Native+":")
	if !ok {
		return "", fmt.Errorf("%q lacks %s: prefix: %w", rawURL, s.Native, ErrInvalidResource)
	}
	return ResourceID(s.Custom + ":" + rest), nil
}

// Resolve reverses Rewrite, returning the backing store URL for id.
// Returns ErrInvalidResource if id does not carry the custom prefix.
func (s Scheme) Resolve(id ResourceID) (string, error) {
	rest, ok := strings.CutPrefix(string(id), s.Custom+":")
	if !ok {
		return "", fmt.Errorf("%q lacks %s: prefix: %w", id, s.Custom, ErrInvalidResource)
	}
	return s.Native + ":" + rest, nil
}

// IsCustom reports whether id carries the custom scheme.
func (s Scheme) IsCustom(id ResourceID) bool {
	return strings.HasPrefix(string(id), s.Custom+":")
}

// FileURL returns the file URL for a local path. Relative paths are made
// absolute against the working directory.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// SchemeOf returns the scheme component of id, or "" if it has none.
func SchemeOf(id ResourceID) string {
	name, _, ok := strings.Cut(string(id), ":")
	if !ok || !validSchemeName(name) {
		return ""
	}
	return strings.ToLower(name)
}

// validSchemeName applies the RFC 3986 scheme grammar.
func validSchemeName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
