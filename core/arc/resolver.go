package arc

import (
	"context"
	"sync"

	"github.com/revred/sharc/internal/logging"
)

// Locator opens an arc for one authority. Implementations convert every
// internal failure into an OpenResult — they must not panic, and Open has no
// separate error return.
type Locator interface {
	// Open fetches, validates, and opens the arc the URI names.
	Open(ctx context.Context, uri URI) OpenResult
}

// Resolver dispatches arc URIs to locators by authority. The locator map is
// guarded by a read-write mutex: Register takes the write lock and Resolve
// the read lock. Register every locator before concurrent Resolve calls
// begin, so every resolution sees the full set.
type Resolver struct {
	mu       sync.RWMutex
	locators map[string]Locator
}

// NewResolver returns an empty resolver. NewDefaultResolver wires the
// standard local and https locators.
func NewResolver() *Resolver {
	return &Resolver{locators: make(map[string]Locator)}
}

// NewDefaultResolver returns a resolver with the local and https locators
// registered under shared options.
func NewDefaultResolver(opts Options) *Resolver {
	r := NewResolver()
	r.Register("local", NewLocalLocator(opts))
	r.Register("https", NewHTTPLocator(opts))
	return r
}

// Register binds a locator to an authority (lowercased).
func (r *Resolver) Register(authority string, loc Locator) {
	r.mu.Lock()
	r.locators[normalizeAuthority(authority)] = loc
	r.mu.Unlock()
}

func normalizeAuthority(authority string) string {
	b := []byte(authority)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// Resolve parses raw and dispatches to the authority's locator.
func (r *Resolver) Resolve(ctx context.Context, raw string) OpenResult {
	uri, ok := ParseURI(raw)
	if !ok {
		logging.ArcRejected(raw, "unreachable", "malformed arc uri")
		return unreachable("malformed arc uri: " + raw)
	}

	r.mu.RLock()
	loc, found := r.locators[uri.Authority]
	r.mu.RUnlock()
	if !found {
		logging.ArcRejected(raw, "unsupported authority", uri.Authority)
		return OpenResult{
			Status:  UnsupportedAuthority,
			Message: "no locator registered for authority " + uri.Authority,
		}
	}

	res := loc.Open(ctx, uri)
	if res.Status == Available {
		logging.ArcResolved(raw, uri.Authority, "warnings", len(res.Warnings))
	} else {
		logging.ArcRejected(raw, res.Status.String(), res.Message)
	}
	return res
}
