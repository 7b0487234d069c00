package bridge

import "fmt"

// Asset is a playable item registered with the host.
//
// The routing decision is made once at construction: an asset whose
// identifier carries the custom scheme is served by the handler; any other
// asset is left to the host's default resolution. Assets are immutable.
type Asset struct {
	id      ResourceID
	handler Handler
}

// NewAsset creates an asset for id, routing it to h only when id carries
// scheme's custom prefix.
func NewAsset(id ResourceID, scheme Scheme, h Handler) Asset {
	a := Asset{id: id}
	if h != nil && scheme.IsCustom(id) {
		a.handler = h
	}
	return a
}

// RegisterFile rewrites a native URL under the custom scheme and creates an
// intercepted asset for it.
func RegisterFile(rawURL string, scheme Scheme, h Handler) (Asset, error) {
	id, err := scheme.Rewrite(rawURL)
	if err != nil {
		return Asset{}, fmt.Errorf("register %q: %w", rawURL, err)
	}
	return NewAsset(id, scheme, h), nil
}

// ID returns the asset's resource identifier.
func (a Asset) ID() ResourceID { return a.id }

// Handler returns the handler serving the asset, or nil if the asset uses
// the host's default resolution.
func (a Asset) Handler() Handler { return a.handler }

// Intercepted reports whether the asset is served by a handler.
func (a Asset) Intercepted() bool { return a.handler != nil }

// Playlist is an ordered list of assets played in sequence.
type Playlist []Asset

// NewPlaylist registers each native URL under the custom scheme.
// URLs that fail to rewrite are skipped and reported in the returned error
// slice, matching how a host drops items it cannot resolve.
func NewPlaylist(rawURLs []string, scheme Scheme, h Handler) (Playlist, []error) {
	var (
		list Playlist
		errs []error
	)
	for _, raw := range rawURLs {
		a, err := RegisterFile(raw, scheme, h)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		list = append(list, a)
	}
	return list, errs
}
