// Package resourceid parses Azure resource identifiers: absolute,
// case-insensitive path strings such as
// /providers/Microsoft.Management/managementGroups/root or
// /subscriptions/{guid}/resourceGroups/{name}/providers/{ns}/{type}/{name}.
package resourceid

import (
	"fmt"
	"regexp"
	"strings"
)

// Well-known resource types for the scopes that do not carry an explicit
// provider segment.
const (
	TypeManagementGroup = "Microsoft.Management/managementGroups"
	TypeSubscription    = "Microsoft.Resources/subscriptions"
	TypeResourceGroup   = "Microsoft.Resources/resourceGroups"
	TypeResource        = "Microsoft.Resources/resources"
)

var subscriptionScopeRegex = regexp.MustCompile(`(?i)^/subscriptions/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// UnknownResourceTypeError is returned when an identifier matches none of the
// type derivation rules.
type UnknownResourceTypeError struct {
	ID string
}

func (e *UnknownResourceTypeError) Error() string {
	return fmt.Sprintf("unable to derive resource type from identifier %q", e.ID)
}

// Canonical lowercases an identifier for use as a cache key.
func Canonical(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// TypeOf derives the "{namespace}/{type}" resource type of an identifier.
// Rules are applied in order, first match wins:
//
//  1. an identifier containing /providers/ takes the innermost namespace/type
//     pair following the last /providers/ segment;
//  2. a trailing /resources collection maps to Microsoft.Resources/resources;
//  3. a /resourceGroups scope or instance maps to Microsoft.Resources/resourceGroups;
//  4. a /subscriptions scope or instance maps to Microsoft.Resources/subscriptions.
func TypeOf(id string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(id), "/")
	if trimmed == "" {
		return "", &UnknownResourceTypeError{ID: id}
	}
	lower := strings.ToLower(trimmed)

	if idx := strings.LastIndex(lower, "/providers/"); idx >= 0 {
		rest := trimmed[idx+len("/providers/"):]
		segments := strings.Split(rest, "/")
		// segments: {namespace} ({type} {name})* — the type chain alternates
		// below the namespace, the innermost type wins.
		if len(segments) < 2 {
			return "", &UnknownResourceTypeError{ID: id}
		}
		namespace := segments[0]
		// Last type segment sits at an odd index relative to the namespace.
		typeIdx := len(segments) - 1
		if typeIdx%2 == 0 {
			typeIdx--
		}
		return namespace + "/" + segments[typeIdx], nil
	}

	segments := strings.Split(strings.TrimPrefix(lower, "/"), "/")
	last := segments[len(segments)-1]
	penultimate := ""
	if len(segments) > 1 {
		penultimate = segments[len(segments)-2]
	}

	switch {
	case last == "resources":
		return TypeResource, nil
	case last == "resourcegroups" || penultimate == "resourcegroups":
		return TypeResourceGroup, nil
	case last == "subscriptions" || penultimate == "subscriptions":
		return TypeSubscription, nil
	}
	return "", &UnknownResourceTypeError{ID: id}
}

// ShortName returns the final path segment of an identifier.
func ShortName(id string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(id), "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// Namespace returns the provider namespace portion of a "{namespace}/{type}"
// resource type.
func Namespace(resourceType string) string {
	if idx := strings.Index(resourceType, "/"); idx >= 0 {
		return resourceType[:idx]
	}
	return resourceType
}

// ParentScope strips the trailing /providers/{ns}/{type}/{name} chain from a
// provider-scoped identifier, returning the governing scope. Returns an empty
// string when the identifier carries no provider segment.
func ParentScope(id string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(id), "/")
	lower := strings.ToLower(trimmed)
	idx := strings.LastIndex(lower, "/providers/")
	if idx <= 0 {
		return ""
	}
	return trimmed[:idx]
}

// SubscriptionScope extracts the /subscriptions/{guid} prefix of an
// identifier, or an empty string when the identifier is not subscription
// scoped.
func SubscriptionScope(id string) string {
	return subscriptionScopeRegex.FindString(strings.TrimSpace(id))
}
