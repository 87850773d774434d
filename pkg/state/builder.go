package state

import (
	"context"
	"errors"
	"strings"

	"github.com/krowlandson/AzureStateManager/pkg/arm"
	"github.com/krowlandson/AzureStateManager/pkg/resourceid"
)

// Build constructs the StateNode for a single identifier.
//
// With UseCache a previously built node is returned as-is when it already
// carries the requested aspects; when it does not, a copy extended with the
// missing aspects replaces the cache entry and the original is left unchanged. With SkipCache the cache read is bypassed, the
// primary record is fetched fresh, and the cache is left untouched.
//
// Aspect sub-query failures do not fail the build; they are logged and the
// affected aspect stays unpopulated so a later request retries it. Use
// FromIDs to collect such failures as diagnostics.
func (c *Client) Build(ctx context.Context, id string, cacheMode CacheMode, mode DiscoveryMode) (*StateNode, error) {
	node, warnings, err := c.build(ctx, id, cacheMode, mode)
	for _, w := range warnings {
		c.logger.Warn("partial discovery", "id", id, "error", w)
	}
	return node, err
}

func (c *Client) build(ctx context.Context, id string, cacheMode CacheMode, mode DiscoveryMode) (*StateNode, []error, error) {
	id = strings.TrimSpace(id)

	if cacheMode == UseCache {
		if cached, ok := c.cache.Get(id); ok {
			if cached.Aspects().Covers(mode) {
				return cached, nil, nil
			}
			return c.upgrade(ctx, cached, mode)
		}
	}

	// The primary record skips the response cache so the node's own body is
	// fresh; every subordinate call reads through it.
	payload, err := c.router.Get(ctx, id, arm.SkipCache)
	if err != nil {
		return nil, nil, err
	}
	if _, isList := payload.([]any); isList {
		return nil, nil, &arm.AmbiguousIdentifierError{ID: id}
	}
	raw, _ := payload.(map[string]any)

	node, warnings, err := c.assemble(ctx, id, raw, mode)
	if err != nil {
		return nil, warnings, err
	}

	if cacheMode == UseCache {
		if winner, inserted := c.cache.TryInsert(id, node); !inserted {
			// Another worker won the race; discard this build.
			return winner, warnings, nil
		}
	}
	return node, warnings, nil
}

// assemble populates a node from its decoded body: identity, relations,
// parent chain, paths, and the aspects requested by mode.
func (c *Client) assemble(ctx context.Context, id string, raw map[string]any, mode DiscoveryMode) (*StateNode, []error, error) {
	resourceType, err := resourceid.TypeOf(id)
	if err != nil {
		return nil, nil, err
	}

	node := &StateNode{
		ID:       id,
		Type:     resourceType,
		Name:     displayName(id, resourceType, raw),
		Provider: resourceid.Namespace(resourceType),
		Raw:      raw,
		Children: []ResourceRef{},
		Parents:  []ResourceRef{},
	}

	var warnings []error

	if err := c.populateChildren(ctx, node); err != nil {
		warnings = append(warnings, err)
	}

	parent, err := c.resolveParent(ctx, id, resourceType, raw)
	if err != nil {
		var lookupErr *ParentLookupError
		if !errors.As(err, &lookupErr) {
			return nil, warnings, err
		}
		warnings = append(warnings, err)
		parent = nil
	}
	node.Parent = parent

	if parent != nil {
		chain, err := c.parentChain(ctx, id, parent)
		if err != nil {
			return nil, warnings, err
		}
		node.Parents = chain
	}
	node.composePaths()

	aspectWarnings := c.populateAspects(ctx, node, mode)
	warnings = append(warnings, aspectWarnings...)

	return node, warnings, nil
}

// upgrade re-publishes a cached node extended with the aspects it is
// missing. Aspects only accumulate, so concurrent upgraders converge.
func (c *Client) upgrade(ctx context.Context, cached *StateNode, mode DiscoveryMode) (*StateNode, []error, error) {
	node := cached.clone()
	warnings := c.populateAspects(ctx, node, mode)
	c.cache.Replace(node.ID, node)
	return node, warnings, nil
}

// populateAspects fetches the IAM and policy records requested by mode that
// the node does not already carry. A failed sub-query leaves its aspect
// unpopulated (and retryable) with an empty record in place.
func (c *Client) populateAspects(ctx context.Context, node *StateNode, mode DiscoveryMode) []error {
	policy := policyFor(node.Type)
	var warnings []error

	if mode.IAM() && !node.aspects.IAM() {
		iam := &IAMState{RoleDefinitions: []ResourceRef{}, RoleAssignments: []ResourceRef{}}
		failed := false
		if policy.iam {
			if refs, err := c.listRefs(ctx, node.ID+suffixRoleDefinitions); err != nil {
				warnings = append(warnings, err)
				failed = true
			} else {
				iam.RoleDefinitions = refs
			}
			if refs, err := c.listRefs(ctx, node.ID+suffixRoleAssignments); err != nil {
				warnings = append(warnings, err)
				failed = true
			} else {
				iam.RoleAssignments = refs
			}
		}
		node.IAM = iam
		if !failed {
			node.aspects = node.aspects.Union(IncludeIAM)
		}
	}

	if mode.Policy() && !node.aspects.Policy() {
		pol := &PolicyState{
			PolicyDefinitions:    []ResourceRef{},
			PolicySetDefinitions: []ResourceRef{},
			PolicyAssignments:    []ResourceRef{},
		}
		failed := false
		if policy.policyDefinitions {
			if refs, err := c.listRefs(ctx, node.ID+suffixPolicyDefinitions); err != nil {
				warnings = append(warnings, err)
				failed = true
			} else {
				pol.PolicyDefinitions = refs
			}
			if refs, err := c.listRefs(ctx, node.ID+suffixPolicySetDefinitions); err != nil {
				warnings = append(warnings, err)
				failed = true
			} else {
				pol.PolicySetDefinitions = refs
			}
		}
		if policy.policyAssignments {
			if refs, err := c.listRefs(ctx, node.ID+suffixPolicyAssignments); err != nil {
				warnings = append(warnings, err)
				failed = true
			} else {
				pol.PolicyAssignments = refs
			}
		}
		node.Policy = pol
		if !failed {
			node.aspects = node.aspects.Union(IncludePolicy)
		}
	}

	return warnings
}

// populateChildren runs the type's children listing and partitions the
// result. Listing failures are recoverable; the node keeps empty relations.
func (c *Client) populateChildren(ctx context.Context, node *StateNode) error {
	switch policyFor(node.Type).children {
	case childrenDescendants:
		descendants, err := c.listDescendants(ctx, node.ID)
		if err != nil {
			return err
		}
		for _, d := range descendants {
			if strings.EqualFold(d.parentID, node.ID) {
				node.Children = append(node.Children, d.ref)
			} else {
				node.LinkedResources = append(node.LinkedResources, d.ref)
			}
		}
	case childrenResourceGroups:
		refs, err := c.listChildItems(ctx, node.ID+"/resourceGroups")
		if err != nil {
			return err
		}
		node.Children = refs
	case childrenResources:
		refs, err := c.listChildItems(ctx, node.ID+"/resources")
		if err != nil {
			return err
		}
		node.Children = refs
	}
	return nil
}

// descendant pairs a reference with the parent edge the listing reported.
type descendant struct {
	ref      ResourceRef
	parentID string
}

// listDescendants fetches a management group's transitive subtree. Every
// reported parent edge feeds the hint map, and every item body is recorded
// for direct materialization.
func (c *Client) listDescendants(ctx context.Context, groupID string) ([]descendant, error) {
	payload, err := c.router.Get(ctx, groupID+"/descendants", UseCache)
	if err != nil {
		return nil, err
	}
	items, ok := payload.([]any)
	if !ok {
		items = []any{payload}
	}

	var descendants []descendant
	for _, rawItem := range items {
		item, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		ref, ok := refFromItem(item)
		if !ok {
			continue
		}
		parentID := nestedString(item, "properties", "parent", "id")
		c.hints.Put(ref.ID, parentID)
		c.recordPayloadHint(item)
		descendants = append(descendants, descendant{ref: ref, parentID: parentID})
	}
	return descendants, nil
}

// listChildItems fetches a scope listing whose items are full resource
// bodies, recording each for direct materialization.
func (c *Client) listChildItems(ctx context.Context, path string) ([]ResourceRef, error) {
	payload, err := c.router.Get(ctx, path, UseCache)
	if err != nil {
		return nil, err
	}
	items, ok := payload.([]any)
	if !ok {
		items = []any{payload}
	}

	refs := make([]ResourceRef, 0, len(items))
	for _, rawItem := range items {
		item, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		ref, ok := refFromItem(item)
		if !ok {
			continue
		}
		c.recordPayloadHint(item)
		refs = append(refs, ref)
	}
	return refs, nil
}

// buildDirect materializes a node from a listing body previously recorded by
// a children listing, skipping the primary fetch. It falls back to a full
// build when no body was recorded.
func (c *Client) buildDirect(ctx context.Context, id string, mode DiscoveryMode) (*StateNode, []error, error) {
	raw, ok := c.payloadHint(id)
	if !ok {
		return c.build(ctx, id, UseCache, mode)
	}
	if cached, ok := c.cache.Get(id); ok {
		if cached.Aspects().Covers(mode) {
			return cached, nil, nil
		}
		return c.upgrade(ctx, cached, mode)
	}

	node, warnings, err := c.assemble(ctx, id, raw, mode)
	if err != nil {
		return nil, warnings, err
	}
	if winner, inserted := c.cache.TryInsert(id, node); !inserted {
		return winner, warnings, nil
	}
	return node, warnings, nil
}
