package arm

// CacheMode controls whether a request may be satisfied from cache.
type CacheMode int

const (
	// UseCache returns a cached response when one exists for the URI.
	UseCache CacheMode = iota
	// SkipCache always hits the transport; a successful fresh response is
	// written back so later UseCache reads benefit.
	SkipCache
)

func (m CacheMode) String() string {
	if m == SkipCache {
		return "SkipCache"
	}
	return "UseCache"
}

// Release selects an API version channel.
type Release int

const (
	// ReleaseStable resolves to the newest GA api-version (yyyy-mm-dd).
	ReleaseStable Release = iota
	// ReleaseLatest resolves to the newest published api-version,
	// preview included.
	ReleaseLatest
)

func (r Release) String() string {
	if r == ReleaseLatest {
		return "latest"
	}
	return "stable"
}
