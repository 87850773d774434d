package arm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/krowlandson/AzureStateManager/pkg/resourceid"
)

// Router converts resource identifiers into versioned request URIs, performs
// the request through the transport, and consults the response cache on the
// way. Decoded payloads collapse list and singleton endpoints into one shape:
// an endpoint whose body is exactly {"value": [...]} yields the inner slice,
// anything else yields the decoded object.
type Router struct {
	transport Transport
	cache     *ResponseCache
	registry  *VersionRegistry
	release   Release
	logger    *slog.Logger
}

// NewRouter wires a transport and response cache together. The version
// registry is attached afterwards since it bootstraps through the router
// itself.
func NewRouter(transport Transport, cache *ResponseCache, release Release) *Router {
	return &Router{
		transport: transport,
		cache:     cache,
		release:   release,
		logger:    slog.Default().With("component", "Router"),
	}
}

// SetVersionRegistry attaches the registry used to resolve api-versions.
func (r *Router) SetVersionRegistry(registry *VersionRegistry) {
	r.registry = registry
}

// Cache exposes the underlying response cache.
func (r *Router) Cache() *ResponseCache {
	return r.cache
}

// Get fetches the resource named by id, resolving the api-version for its
// derived type on the router's release channel.
func (r *Router) Get(ctx context.Context, id string, mode CacheMode) (any, error) {
	resourceType, err := resourceid.TypeOf(stripQuery(id))
	if err != nil {
		return nil, err
	}

	version, err := r.registry.APIVersion(ctx, resourceType, r.release)
	if err != nil {
		return nil, err
	}

	return r.getRaw(ctx, normalizeQuery(id+"?api-version="+version), mode)
}

// getRaw fetches an already-versioned path. UseCache returns a cached
// response without touching the transport; SkipCache always dispatches.
// Only 200 responses are written back for later UseCache readers, so a
// failed request is dispatched again on the next call.
func (r *Router) getRaw(ctx context.Context, path string, mode CacheMode) (any, error) {
	if mode == UseCache {
		if resp, ok := r.cache.Get(path); ok {
			return decodePayload(path, resp)
		}
	}

	resp, err := r.transport.SendRequest(ctx, methodGet, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 200 {
		r.cache.Put(path, resp)
	}

	r.logger.Debug("dispatched request", "path", path, "status", resp.StatusCode)
	return decodePayload(path, resp)
}

// decodePayload turns a raw response into the collapsed payload shape, or a
// RequestError for non-200 statuses.
func decodePayload(path string, resp *Response) (any, error) {
	if resp.StatusCode != 200 {
		reqErr := &RequestError{StatusCode: resp.StatusCode, Path: stripQuery(path)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(resp.Body, &envelope); err == nil {
			reqErr.Code = envelope.Error.Code
			reqErr.Message = envelope.Error.Message
		}
		return nil, reqErr
	}

	var decoded any
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response for %s: %w", path, err)
	}

	if obj, ok := decoded.(map[string]any); ok && len(obj) == 1 {
		if value, ok := obj["value"].([]any); ok {
			return value, nil
		}
	}
	return decoded, nil
}

// normalizeQuery keeps the first '?' of a path and rewrites any subsequent
// one to '&', so suffixes carrying their own query string compose with the
// appended api-version.
func normalizeQuery(path string) string {
	idx := strings.Index(path, "?")
	if idx < 0 {
		return path
	}
	return path[:idx+1] + strings.ReplaceAll(path[idx+1:], "?", "&")
}

func stripQuery(path string) string {
	if idx := strings.Index(path, "?"); idx >= 0 {
		return path[:idx]
	}
	return path
}
