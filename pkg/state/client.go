package state

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/krowlandson/AzureStateManager/pkg/arm"
	"github.com/krowlandson/AzureStateManager/pkg/resourceid"
)

// DefaultThrottleLimit is the worker fan-out used when the caller does not
// override it.
const DefaultThrottleLimit = 4

// ClientOptions configures a discovery client.
type ClientOptions struct {
	// Release selects the api-version channel for every request.
	// Defaults to stable.
	Release Release
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

// Client is the discovery engine: it owns the request router, the version
// registry, and the three shared caches, and exposes the node building and
// bulk fetching operations. A Client is safe for concurrent use.
type Client struct {
	router   *arm.Router
	registry *arm.VersionRegistry
	cache    *Cache
	hints    *ParentHintMap
	payloads sync.Map // canonical id -> map[string]any from a listing
	logger   *slog.Logger
}

// NewClient builds a discovery client over a transport. The subscription id
// anchors the provider listing that seeds the version registry.
func NewClient(transport arm.Transport, subscriptionID string, opts *ClientOptions) *Client {
	if opts == nil {
		opts = &ClientOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "StateClient")
	}

	router := arm.NewRouter(transport, arm.NewResponseCache(), opts.Release)
	registry := arm.NewVersionRegistry(router, subscriptionID)
	router.SetVersionRegistry(registry)

	return &Client{
		router:   router,
		registry: registry,
		cache:    NewCache(),
		hints:    NewParentHintMap(),
		logger:   logger,
	}
}

// ShowCache returns every cached node sorted by identifier.
func (c *Client) ShowCache() []*StateNode {
	return c.cache.Nodes()
}

// ShowResponseCache returns the cached request URIs.
func (c *Client) ShowResponseCache() []string {
	return c.router.Cache().Keys()
}

// ClearCache resets the state cache, the response cache, the parent hint map
// and the direct-materialization payloads. The version registry survives; it
// is keyed by type, not by tenant state.
func (c *Client) ClearCache() {
	c.cache.Reset()
	c.router.Cache().Reset()
	c.hints.Reset()
	c.payloads.Range(func(k, _ any) bool {
		c.payloads.Delete(k)
		return true
	})
}

// payloadHint returns a listing body previously recorded for an identifier.
func (c *Client) payloadHint(id string) (map[string]any, bool) {
	v, ok := c.payloads.Load(resourceid.Canonical(id))
	if !ok {
		return nil, false
	}
	return v.(map[string]any), true
}

// recordPayloadHint stores a listing item body for later direct
// materialization. Only items carrying an id are useful.
func (c *Client) recordPayloadHint(item map[string]any) {
	if id, _ := item["id"].(string); id != "" {
		c.payloads.Store(resourceid.Canonical(id), item)
	}
}

// listRefs fetches a listing and converts each returned record to a typed
// reference. Single-record payloads convert to a one-element list.
func (c *Client) listRefs(ctx context.Context, path string) ([]ResourceRef, error) {
	payload, err := c.router.Get(ctx, path, UseCache)
	if err != nil {
		return nil, err
	}

	items, ok := payload.([]any)
	if !ok {
		items = []any{payload}
	}

	refs := make([]ResourceRef, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if ref, ok := refFromItem(item); ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// refFromItem converts a listing record into a ResourceRef, preferring the
// type derived from the identifier over the payload's own type field: the
// management group descendants listing reports subscription descendants
// under a Microsoft.Management composite type.
func refFromItem(item map[string]any) (ResourceRef, bool) {
	id, _ := item["id"].(string)
	if id == "" {
		return ResourceRef{}, false
	}
	resourceType, err := resourceid.TypeOf(id)
	if err != nil {
		if payloadType, _ := item["type"].(string); payloadType != "" {
			return ResourceRef{ID: id, Type: payloadType}, true
		}
		return ResourceRef{}, false
	}
	return ResourceRef{ID: id, Type: resourceType}, true
}

// displayName extracts the node name from a decoded body. Subscriptions name
// themselves through displayName; everything else carries a name property or
// falls back to the identifier's final segment.
func displayName(id, resourceType string, raw map[string]any) string {
	if strings.EqualFold(resourceType, resourceid.TypeSubscription) {
		if name, _ := raw["displayName"].(string); name != "" {
			return name
		}
	}
	if name, _ := raw["name"].(string); name != "" {
		return name
	}
	return resourceid.ShortName(id)
}
