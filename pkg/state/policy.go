package state

import (
	"strings"

	"github.com/krowlandson/AzureStateManager/pkg/resourceid"
)

// childrenStrategy selects how a type lists its direct subordinates.
type childrenStrategy int

const (
	childrenNone childrenStrategy = iota
	childrenDescendants
	childrenResourceGroups
	childrenResources
)

// parentStrategy selects how a type locates its parent.
type parentStrategy int

const (
	parentFromScopeStrip parentStrategy = iota
	parentFromDetails
	parentFromHints
	parentFromSubscriptionScope
)

// typePolicy captures the per-type discovery behavior in one record instead
// of scattering type switches across the builder.
type typePolicy struct {
	children childrenStrategy
	parent   parentStrategy

	// iam enables role definition and role assignment sub-queries.
	iam bool
	// policyDefinitions enables policy and policy set definition listings.
	policyDefinitions bool
	// policyAssignments enables the atScope() policy assignment listing.
	policyAssignments bool
}

var typePolicies = map[string]typePolicy{
	strings.ToLower(resourceid.TypeManagementGroup): {
		children:          childrenDescendants,
		parent:            parentFromDetails,
		iam:               true,
		policyDefinitions: true,
		policyAssignments: true,
	},
	strings.ToLower(resourceid.TypeSubscription): {
		children:          childrenResourceGroups,
		parent:            parentFromHints,
		iam:               true,
		policyDefinitions: true,
		policyAssignments: true,
	},
	strings.ToLower(resourceid.TypeResourceGroup): {
		children:          childrenResources,
		parent:            parentFromSubscriptionScope,
		iam:               true,
		policyAssignments: true,
	},
}

// policyFor returns the discovery policy for a resource type. Types without
// an explicit entry get the generic resource behavior: no children listing,
// parent by stripping the provider chain from the identifier, no aspects.
func policyFor(resourceType string) typePolicy {
	if p, ok := typePolicies[strings.ToLower(resourceType)]; ok {
		return p
	}
	return typePolicy{children: childrenNone, parent: parentFromScopeStrip}
}

// IAM and policy listing suffixes, appended to a scope identifier. The
// atScope() filter composes as a second query parameter once the api-version
// is attached.
const (
	suffixRoleDefinitions      = "/providers/Microsoft.Authorization/roleDefinitions"
	suffixRoleAssignments      = "/providers/Microsoft.Authorization/roleAssignments?$filter=atScope()"
	suffixPolicyDefinitions    = "/providers/Microsoft.Authorization/policyDefinitions"
	suffixPolicySetDefinitions = "/providers/Microsoft.Authorization/policySetDefinitions"
	suffixPolicyAssignments    = "/providers/Microsoft.Authorization/policyAssignments?$filter=atScope()"
)
