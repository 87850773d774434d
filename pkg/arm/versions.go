package arm

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// bootstrapAPIVersion is the fixed version used for the one provider listing
// call that seeds the registry.
const bootstrapAPIVersion = "2020-06-01"

var stableVersionRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// VersionRegistry resolves "{namespace}/{type}" resource types to api-version
// strings. It is populated lazily by a single bulk provider listing against
// the default subscription and is safe for concurrent use.
type VersionRegistry struct {
	router       *Router
	subscription string
	logger       *slog.Logger

	mu       sync.RWMutex
	versions map[string]string // "{type} ({release})" lowercase -> api-version
	loaded   bool
}

// NewVersionRegistry creates a registry that bootstraps against the given
// subscription id on first use.
func NewVersionRegistry(router *Router, subscriptionID string) *VersionRegistry {
	return &VersionRegistry{
		router:       router,
		subscription: subscriptionID,
		logger:       slog.Default().With("component", "VersionRegistry"),
		versions:     map[string]string{},
	}
}

// APIVersion returns the api-version for a resource type on the requested
// release channel, populating the registry on first miss.
func (r *VersionRegistry) APIVersion(ctx context.Context, resourceType string, release Release) (string, error) {
	key := registryKey(resourceType, release)

	r.mu.RLock()
	v, ok := r.versions[key]
	loaded := r.loaded
	r.mu.RUnlock()
	if ok {
		return v, nil
	}
	if !loaded {
		if err := r.populate(ctx); err != nil {
			return "", err
		}
		r.mu.RLock()
		v, ok = r.versions[key]
		r.mu.RUnlock()
		if ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("no api-version registered for %s (%s)", resourceType, release)
}

// populate issues the provider listing call and computes the stable and
// latest channel for every advertised resource type. The listing happens
// outside the lock; concurrent populators race harmlessly on identical data.
func (r *VersionRegistry) populate(ctx context.Context) error {
	path := fmt.Sprintf("/subscriptions/%s/providers?api-version=%s", r.subscription, bootstrapAPIVersion)
	r.logger.Debug("populating api-version registry", "path", path)

	payload, err := r.router.getRaw(ctx, path, UseCache)
	if err != nil {
		return fmt.Errorf("provider listing failed: %w", err)
	}

	providers, ok := payload.([]any)
	if !ok || len(providers) == 0 {
		return ErrProviderDiscovery
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	count := 0
	for _, p := range providers {
		provider, ok := p.(map[string]any)
		if !ok {
			continue
		}
		namespace, _ := provider["namespace"].(string)
		types, _ := provider["resourceTypes"].([]any)
		for _, t := range types {
			rt, ok := t.(map[string]any)
			if !ok {
				continue
			}
			name, _ := rt["resourceType"].(string)
			if namespace == "" || name == "" {
				continue
			}
			versions := stringSlice(rt["apiVersions"])
			if len(versions) == 0 {
				continue
			}
			sort.Sort(sort.Reverse(sort.StringSlice(versions)))

			stable := ""
			for _, v := range versions {
				if stableVersionRegex.MatchString(v) {
					stable = v
					break
				}
			}

			r.register(namespace+"/"+name, versions[0], stable, false)
			// Nested types (e.g. managementGroups/descendants) also register
			// under their innermost segment, which is what identifier-based
			// type derivation produces.
			if idx := strings.LastIndex(name, "/"); idx >= 0 {
				r.register(namespace+"/"+name[idx+1:], versions[0], stable, true)
			}
			count++
		}
	}

	if count == 0 {
		return ErrProviderDiscovery
	}

	r.loaded = true
	r.logger.Info("api-version registry populated", "resourceTypes", count)
	return nil
}

// Len reports the number of registered "{type} ({release})" keys.
func (r *VersionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.versions)
}

// Reset discards the registry so the next lookup re-populates it.
func (r *VersionRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = map[string]string{}
	r.loaded = false
}

// register stores the channel entries for a type. Alias entries never
// overwrite a type advertised under its own name.
func (r *VersionRegistry) register(resourceType, latest, stable string, alias bool) {
	latestKey := registryKey(resourceType, ReleaseLatest)
	if alias {
		if _, exists := r.versions[latestKey]; exists {
			return
		}
	}
	r.versions[latestKey] = latest
	if stable != "" {
		r.versions[registryKey(resourceType, ReleaseStable)] = stable
	}
}

func registryKey(resourceType string, release Release) string {
	return strings.ToLower(fmt.Sprintf("%s (%s)", resourceType, release))
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
