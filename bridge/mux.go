package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mux routes resource identifiers to data sources by their scheme, so one
// loader can serve assets intercepted under several custom schemes
// (for example "rtc" for local files and "rtcs3" for an object store).
//
// Mux is safe for concurrent use.
type Mux struct {
	mu      sync.RWMutex
	sources map[string]DataSource
}

// NewMux creates an empty multiplexer.
func NewMux() *Mux {
	return &Mux{sources: make(map[string]DataSource)}
}

// Register routes identifiers with the given scheme to src, replacing any
// previous registration.
func (m *Mux) Register(scheme string, src DataSource) error {
	if !validSchemeName(scheme) {
		return fmt.Errorf("register %q: %w", scheme, ErrInvalidResource)
	}
	if src == nil {
		return fmt.Errorf("register %q: nil data source", scheme)
	}
	m.mu.Lock()
	m.sources[strings.ToLower(scheme)] = src
	m.mu.Unlock()
	return nil
}

// Unregister removes the route for scheme.
func (m *Mux) Unregister(scheme string) {
	m.mu.Lock()
	delete(m.sources, strings.ToLower(scheme))
	m.mu.Unlock()
}

// Schemes returns the registered schemes in no particular order.
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sources))
	for s := range m.sources {
		out = append(out, s)
	}
	return out
}

// Length forwards to the source registered for id's scheme.
func (m *Mux) Length(ctx context.Context, id ResourceID) (int64, error) {
	src, err := m.route(id)
	if err != nil {
		return 0, err
	}
	return src.Length(ctx, id)
}

// Read forwards to the source registered for id's scheme.
func (m *Mux) Read(ctx context.Context, id ResourceID, offset, length int64) ([]byte, error) {
	src, err := m.route(id)
	if err != nil {
		return nil, err
	}
	return src.Read(ctx, id, offset, length)
}

func (m *Mux) route(id ResourceID) (DataSource, error) {
	scheme := SchemeOf(id)
	if scheme == "" {
		return nil, fmt.Errorf("%q: %w", id, ErrInvalidResource)
	}
	m.mu.RLock()
	src, ok := m.sources[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", scheme, ErrUnknownScheme)
	}
	return src, nil
}

// Ensure Mux implements DataSource
var _ DataSource = (*Mux)(nil)
