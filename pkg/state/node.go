package state

import (
	"strings"

	"github.com/krowlandson/AzureStateManager/pkg/resourceid"
)

// ResourceRef is a typed pointer to another node in the tenant tree.
type ResourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// IAMState holds the access-control records bound at a node's scope.
type IAMState struct {
	RoleDefinitions []ResourceRef `json:"roleDefinitions"`
	RoleAssignments []ResourceRef `json:"roleAssignments"`
}

// PolicyState holds the governance records bound at a node's scope.
type PolicyState struct {
	PolicyDefinitions    []ResourceRef `json:"policyDefinitions"`
	PolicySetDefinitions []ResourceRef `json:"policySetDefinitions"`
	PolicyAssignments    []ResourceRef `json:"policyAssignments"`
}

// StateNode is an immutable-after-build snapshot of one resource: its raw
// configuration, its type-derived relations, and its computed hierarchical
// path. Once a node is published to the state cache it must not be mutated;
// aspect upgrades replace the cache entry with a new node.
type StateNode struct {
	ID              string        `json:"id"`
	Type            string        `json:"type"`
	Name            string        `json:"name"`
	Provider        string        `json:"provider"`
	Raw             any           `json:"raw"`
	Children        []ResourceRef `json:"children"`
	LinkedResources []ResourceRef `json:"linkedResources"`
	Parent          *ResourceRef  `json:"parent"`
	Parents         []ResourceRef `json:"parents"`
	ParentPath      string        `json:"parentPath"`
	ResourcePath    string        `json:"resourcePath"`
	IAM             *IAMState     `json:"iam,omitempty"`
	Policy          *PolicyState  `json:"policy,omitempty"`

	aspects DiscoveryMode
}

// Aspects reports which discovery aspects were fetched for this node.
func (n *StateNode) Aspects() DiscoveryMode {
	return n.aspects
}

// ShortName returns the final path segment of the node's identifier.
func (n *StateNode) ShortName() string {
	return resourceid.ShortName(n.ID)
}

// IsType reports whether the node has the given resource type,
// case-insensitively.
func (n *StateNode) IsType(resourceType string) bool {
	return strings.EqualFold(n.Type, resourceType)
}

// clone returns a copy of the node suitable for aspect upgrades. Relation
// slices are shared; they are never modified after the original build.
func (n *StateNode) clone() *StateNode {
	copied := *n
	return &copied
}

// composePaths derives parentPath and resourcePath from the parents chain.
func (n *StateNode) composePaths() {
	var b strings.Builder
	for _, p := range n.Parents {
		b.WriteString("/")
		b.WriteString(resourceid.ShortName(p.ID))
	}
	n.ParentPath = b.String()
	n.ResourcePath = n.ParentPath + "/" + n.ShortName()
}
