package airquality

import (
	"context"
)

// Provider abstracts the upstream air-quality source (AirNow).
//
// Implementations absorb transport, credential and payload failures into a
// Reading tagged SourceFallback. A non-nil error means no reading at all and
// the location is left out of the current collection pass.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location) (Reading, error)
}

// Registry lists the locations a collection pass covers.
type Registry interface {
	Locations() []Location
}

// StaticRegistry is a fixed list of locations, usually loaded from config.
type StaticRegistry []Location

func (r StaticRegistry) Locations() []Location {
	out := make([]Location, len(r))
	copy(out, r)
	return out
}

// Lookup returns the location with the given ID.
func (r StaticRegistry) Lookup(id string) (Location, bool) {
	for _, loc := range r {
		if loc.ID == id {
			return loc, true
		}
	}
	return Location{}, false
}

// KVStore is the durable key/value storage the service persists into.
// Get reports ok=false when the key has never been written.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}
