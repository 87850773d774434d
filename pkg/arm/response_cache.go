package arm

import (
	"strings"
	"sync"
)

// ResponseCache maps fully-qualified request URIs (query string included) to
// the response they produced. It is the deduplication layer closest to the
// network: two workers asking for the same URI pay for one round trip worth
// of bytes. Keys are case-folded since ARM paths are case-insensitive.
type ResponseCache struct {
	entries sync.Map // lowercase URI -> *Response
}

// NewResponseCache returns an empty cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{}
}

// Get returns the cached response for a URI, if present.
func (c *ResponseCache) Get(uri string) (*Response, bool) {
	v, ok := c.entries.Load(strings.ToLower(uri))
	if !ok {
		return nil, false
	}
	return v.(*Response), true
}

// Put stores a response for a URI, replacing any previous entry.
func (c *ResponseCache) Put(uri string, resp *Response) {
	c.entries.Store(strings.ToLower(uri), resp)
}

// Len reports the number of cached URIs.
func (c *ResponseCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Keys returns the cached URIs in no particular order.
func (c *ResponseCache) Keys() []string {
	var keys []string
	c.entries.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	return keys
}

// Reset discards all entries.
func (c *ResponseCache) Reset() {
	c.entries.Range(func(k, _ any) bool {
		c.entries.Delete(k)
		return true
	})
}
