package state

import (
	"context"
	"errors"
	"strings"

	"github.com/krowlandson/AzureStateManager/pkg/arm"
	"github.com/krowlandson/AzureStateManager/pkg/resourceid"
)

// managementGroupScope anchors the scope-wide management group listing used
// as the fallback when a subscription's parent is not in the hint map.
const managementGroupScope = "/providers/Microsoft.Management/managementGroups"

// resolveParent locates the parent of a resource according to its type's
// parent strategy. raw may be nil when the caller has not fetched the body;
// strategies that need it fetch through the response cache. Permission
// failures on the parent are recovered: the error is logged and the node is
// treated as parentless.
func (c *Client) resolveParent(ctx context.Context, id, resourceType string, raw map[string]any) (*ResourceRef, error) {
	switch policyFor(resourceType).parent {
	case parentFromDetails:
		return c.managementGroupParent(ctx, id, raw)
	case parentFromHints:
		return c.subscriptionParent(ctx, id)
	case parentFromSubscriptionScope:
		scope := resourceid.SubscriptionScope(id)
		if scope == "" {
			return nil, nil
		}
		return &ResourceRef{ID: scope, Type: resourceid.TypeSubscription}, nil
	default:
		scope := resourceid.ParentScope(id)
		if scope == "" {
			return nil, nil
		}
		scopeType, err := resourceid.TypeOf(scope)
		if err != nil {
			return nil, err
		}
		return &ResourceRef{ID: scope, Type: scopeType}, nil
	}
}

// managementGroupParent reads properties.details.parent.id from the group's
// body, fetching it when the caller did not supply one. The tenant root
// group has no parent entry.
func (c *Client) managementGroupParent(ctx context.Context, id string, raw map[string]any) (*ResourceRef, error) {
	if raw == nil {
		payload, err := c.router.Get(ctx, id, UseCache)
		if err != nil {
			return nil, c.recoverParentLookup(id, err)
		}
		raw, _ = payload.(map[string]any)
	}

	parentID := nestedString(raw, "properties", "details", "parent", "id")
	if parentID == "" {
		return nil, nil
	}
	return &ResourceRef{ID: parentID, Type: resourceid.TypeManagementGroup}, nil
}

// subscriptionParent consults the hint map first; on a miss it walks the
// management groups' descendants listings, which repopulate the hints as a
// side effect, and stops at the first listing that reports the subscription.
// The hint map normally makes the walk unnecessary.
func (c *Client) subscriptionParent(ctx context.Context, id string) (*ResourceRef, error) {
	if parentID, ok := c.hints.Get(id); ok {
		return &ResourceRef{ID: parentID, Type: resourceid.TypeManagementGroup}, nil
	}

	c.logger.Debug("parent hint miss, listing management groups", "id", id)
	groups, err := c.listRefs(ctx, managementGroupScope)
	if err != nil {
		return nil, c.recoverParentLookup(id, err)
	}

	for _, group := range groups {
		if _, err := c.listDescendants(ctx, group.ID); err != nil {
			c.logger.Warn("descendants listing failed during parent lookup", "group", group.ID, "error", err)
			continue
		}
		if parentID, ok := c.hints.Get(id); ok {
			return &ResourceRef{ID: parentID, Type: resourceid.TypeManagementGroup}, nil
		}
	}
	return nil, nil
}

// recoverParentLookup downgrades permission failures on a parent fetch to a
// logged warning and a nil parent. Other failures propagate.
func (c *Client) recoverParentLookup(id string, err error) error {
	var reqErr *arm.RequestError
	if errors.As(err, &reqErr) && (reqErr.StatusCode == 401 || reqErr.StatusCode == 403 || reqErr.StatusCode == 404) {
		c.logger.Warn("parent lookup denied, treating node as parentless",
			"id", id, "status", reqErr.StatusCode, "code", reqErr.Code)
		return nil
	}
	return &ParentLookupError{ID: id, Err: err}
}

// parentChain walks parents up from the immediate parent until the root,
// returning the chain ordered root first. The walk fails when the depth
// bound is exceeded or an identifier repeats in the chain.
func (c *Client) parentChain(ctx context.Context, id string, parent *ResourceRef) ([]ResourceRef, error) {
	chain := []ResourceRef{}
	seen := map[string]bool{resourceid.Canonical(id): true}

	for cur := parent; cur != nil; {
		if len(chain) >= maxParentDepth || seen[resourceid.Canonical(cur.ID)] {
			return nil, &CycleError{ID: id}
		}
		seen[resourceid.Canonical(cur.ID)] = true
		chain = append([]ResourceRef{*cur}, chain...)

		next, err := c.resolveParent(ctx, cur.ID, cur.Type, nil)
		if err != nil {
			var lookupErr *ParentLookupError
			if errors.As(err, &lookupErr) {
				c.logger.Warn("parent chain truncated", "id", id, "at", cur.ID, "error", err)
				break
			}
			return nil, err
		}
		cur = next
	}
	return chain, nil
}

// nestedString walks a decoded JSON object down a key path.
func nestedString(obj map[string]any, keys ...string) string {
	cur := obj
	for i, key := range keys {
		v, ok := lookupFold(cur, key)
		if !ok {
			return ""
		}
		if i == len(keys)-1 {
			s, _ := v.(string)
			return s
		}
		cur, ok = v.(map[string]any)
		if !ok {
			return ""
		}
	}
	return ""
}

// lookupFold finds a key in a decoded object case-insensitively; ARM
// payloads are not consistent about property casing.
func lookupFold(obj map[string]any, key string) (any, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
