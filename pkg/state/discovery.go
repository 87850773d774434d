package state

import (
	"context"
	"strings"

	"github.com/krowlandson/AzureStateManager/pkg/resourceid"
)

// DiscoveryOptions is the recursion plan for a full tenant walk. The engine
// itself is type-agnostic; these flags decide which discovered children are
// interesting enough to descend into.
type DiscoveryOptions struct {
	// Root is the identifier discovery starts from.
	Root string `yaml:"root"`
	// Recurse walks discovered children to a fixed point; false builds the
	// root only.
	Recurse bool `yaml:"recurse"`

	IncludeManagementGroups bool `yaml:"includeManagementGroups"`
	IncludeSubscriptions    bool `yaml:"includeSubscriptions"`
	IncludeResourceGroups   bool `yaml:"includeResourceGroups"`
	IncludeResources        bool `yaml:"includeResources"`
	IncludeIAM              bool `yaml:"includeIAM"`
	IncludePolicy           bool `yaml:"includePolicy"`

	// ExcludePathIDs prunes identifiers from the traversal, matched exactly
	// and case-insensitively.
	ExcludePathIDs []string `yaml:"excludePathIds"`

	// ThrottleLimit is the bulk fan-out per level: 0 materializes nodes
	// directly from listing payloads, 1 runs serially, higher limits run
	// that many workers.
	ThrottleLimit int `yaml:"throttleLimit"`

	CacheMode CacheMode `yaml:"-"`
}

// Mode converts the IAM/policy switches to a DiscoveryMode.
func (o DiscoveryOptions) Mode() DiscoveryMode {
	return discoveryMode(o.IncludeIAM, o.IncludePolicy)
}

// Discoverer drives the engine from a root identifier down through its
// descendants until a pass yields no new nodes.
type Discoverer struct {
	client *Client
	opts   DiscoveryOptions
}

// NewDiscoverer binds a recursion plan to a client.
func NewDiscoverer(client *Client, opts DiscoveryOptions) *Discoverer {
	return &Discoverer{client: client, opts: opts}
}

// Run walks the tree. The root build failing is fatal; failures below the
// root accumulate as diagnostics on a best-effort result.
func (d *Discoverer) Run(ctx context.Context) ([]*StateNode, Diagnostics, error) {
	mode := d.opts.Mode()
	throttle := d.opts.ThrottleLimit

	root, err := d.client.Build(ctx, d.opts.Root, d.opts.CacheMode, mode)
	if err != nil {
		return nil, nil, err
	}

	results := []*StateNode{root}
	var diags Diagnostics
	visited := map[string]bool{resourceid.Canonical(root.ID): true}
	frontier := []*StateNode{root}

	for d.opts.Recurse && len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			diags = diags.add("", err)
			break
		}

		var next []string
		for _, node := range frontier {
			for _, child := range node.Children {
				key := resourceid.Canonical(child.ID)
				if visited[key] || !d.wants(child) || d.excluded(child.ID) {
					continue
				}
				visited[key] = true
				next = append(next, child.ID)
			}
		}
		if len(next) == 0 {
			break
		}

		nodes, levelDiags := d.client.FromIDs(ctx, next, throttle, d.opts.CacheMode, mode)
		diags = append(diags, levelDiags...)
		results = append(results, nodes...)
		frontier = nodes
	}

	return results, diags, nil
}

// wants applies the inclusion switches to a discovered child.
func (d *Discoverer) wants(ref ResourceRef) bool {
	switch strings.ToLower(ref.Type) {
	case strings.ToLower(resourceid.TypeManagementGroup):
		return d.opts.IncludeManagementGroups
	case strings.ToLower(resourceid.TypeSubscription):
		return d.opts.IncludeSubscriptions
	case strings.ToLower(resourceid.TypeResourceGroup):
		return d.opts.IncludeResourceGroups
	default:
		return d.opts.IncludeResources
	}
}

func (d *Discoverer) excluded(id string) bool {
	for _, excluded := range d.opts.ExcludePathIDs {
		if strings.EqualFold(id, excluded) {
			return true
		}
	}
	return false
}
