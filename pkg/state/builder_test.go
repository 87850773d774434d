package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/krowlandson/AzureStateManager/pkg/arm"
	"github.com/krowlandson/AzureStateManager/pkg/resourceid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildManagementGroupRoot(t *testing.T) {
	transport := newMockTransport()
	transport.respondMG(rootMG, "")
	client := newTestClient(t, transport)

	node, err := client.Build(context.Background(), rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)

	assert.Equal(t, rootMG, node.ID)
	assert.Equal(t, "Microsoft.Management/managementGroups", node.Type)
	assert.Equal(t, "Microsoft.Management", node.Provider)
	assert.Equal(t, "root", node.Name)
	assert.Nil(t, node.Parent)
	assert.Empty(t, node.Parents)
	assert.Equal(t, "", node.ParentPath)
	assert.Equal(t, "/root", node.ResourcePath)
	assert.Nil(t, node.IAM)
	assert.Nil(t, node.Policy)
}

func TestBuildSecondCallServedFromCache(t *testing.T) {
	transport := newMockTransport()
	transport.respondMG(rootMG, "")
	client := newTestClient(t, transport)

	ctx := context.Background()
	first, err := client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)

	calls := transport.totalCalls()
	second, err := client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)

	assert.Equal(t, calls, transport.totalCalls(), "a cache hit must not touch the transport")
	assert.Same(t, first, second)
	assert.Equal(t, 1, client.cache.Len())
}

func TestBuildResourceGroupParentChain(t *testing.T) {
	transport := newMockTransport()
	transport.respondResourceGroup(rg1)
	transport.respondMGList()
	client := newTestClient(t, transport)

	node, err := client.Build(context.Background(), rg1, UseCache, ExcludeBoth)
	require.NoError(t, err)

	require.NotNil(t, node.Parent)
	assert.Equal(t, subA, node.Parent.ID)
	assert.Equal(t, resourceid.TypeSubscription, node.Parent.Type)
	require.Len(t, node.Parents, 1)
	assert.Equal(t, subA, node.Parents[0].ID)
	assert.Equal(t, "/00000000-0000-0000-0000-00000000000a/rg1", node.ResourcePath)
}

func TestBuildSkipCacheRefetchesPrimary(t *testing.T) {
	transport := newMockTransport()
	transport.respondMG(rootMG, "")
	client := newTestClient(t, transport)

	ctx := context.Background()
	_, err := client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)

	primary := rootMG + "?api-version=" + mgVersion
	require.Equal(t, 1, transport.callCount(primary))

	_, err = client.Build(ctx, rootMG, SkipCache, ExcludeBoth)
	require.NoError(t, err)
	assert.Equal(t, 2, transport.callCount(primary), "SkipCache must refetch the primary record exactly once")
}

func TestBuildAmbiguousIdentifier(t *testing.T) {
	transport := newMockTransport()
	transport.respond(subA+"/resourceGroups?api-version="+rgVersion, 200,
		`{"value":[`+groupItem(rg1)+`]}`)
	client := newTestClient(t, transport)

	_, err := client.Build(context.Background(), subA+"/resourceGroups", UseCache, ExcludeBoth)

	var ambiguous *arm.AmbiguousIdentifierError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, subA+"/resourceGroups", ambiguous.ID)
}

func TestBuildFailedPrimaryIsNotCached(t *testing.T) {
	transport := newMockTransport()
	transport.respond(rootMG+"?api-version="+mgVersion, 403,
		`{"error":{"code":"AuthorizationFailed","message":"no access"}}`)
	client := newTestClient(t, transport)

	ctx := context.Background()
	_, err := client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	var reqErr *arm.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 0, client.cache.Len(), "errors must not install nodes")

	// Access granted: the retry succeeds because nothing stale was cached.
	transport.respondMG(rootMG, "")
	node, err := client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)
	assert.Equal(t, "root", node.Name)
}

func TestBuildCycleDetection(t *testing.T) {
	cycleA := "/providers/Microsoft.Management/managementGroups/cycle-a"
	cycleB := "/providers/Microsoft.Management/managementGroups/cycle-b"

	transport := newMockTransport()
	transport.respondMG(cycleA, cycleB)
	transport.respondMG(cycleB, cycleA)
	client := newTestClient(t, transport)

	_, err := client.Build(context.Background(), cycleA, UseCache, ExcludeBoth)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, cycleA, cycleErr.ID)
}

func TestBuildUpgradeAddsAspectsWithoutPrimaryRefetch(t *testing.T) {
	transport := newMockTransport()
	transport.respondResourceGroup(rg1)
	transport.respondMGList()
	transport.respondAspects(rg1)
	client := newTestClient(t, transport)

	ctx := context.Background()
	plain, err := client.Build(ctx, rg1, UseCache, ExcludeBoth)
	require.NoError(t, err)
	require.Nil(t, plain.IAM)
	require.Nil(t, plain.Policy)

	primary := rg1 + "?api-version=" + rgVersion
	require.Equal(t, 1, transport.callCount(primary))

	upgraded, err := client.Build(ctx, rg1, UseCache, IncludeBoth)
	require.NoError(t, err)

	assert.Equal(t, 1, transport.callCount(primary), "an upgrade must not refetch the primary record")
	require.NotNil(t, upgraded.IAM)
	require.NotNil(t, upgraded.Policy)
	assert.True(t, upgraded.Aspects().Covers(IncludeBoth))

	// Resource groups list only policy assignments, never definitions.
	assert.Equal(t, 0, transport.callCount(rg1+"/providers/Microsoft.Authorization/policyDefinitions?api-version="+polDefVersion))
	assert.Equal(t, 1, transport.callCount(rg1+"/providers/Microsoft.Authorization/policyAssignments?$filter=atScope()&api-version="+polAsgVersion))

	// The upgraded node replaced the cache entry.
	cached, ok := client.cache.Get(rg1)
	require.True(t, ok)
	assert.Same(t, upgraded, cached)

	// The original node was not mutated in place.
	assert.Nil(t, plain.IAM)
}

func TestBuildCachedNodeIsImmutable(t *testing.T) {
	transport := newMockTransport()
	transport.respondMG(rootMG, "")
	transport.respondAspects(rootMG)
	client := newTestClient(t, transport)

	ctx := context.Background()
	node, err := client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)

	before, err := json.Marshal(node)
	require.NoError(t, err)

	// Unrelated and upgrading traffic must not change the published node.
	_, err = client.Build(ctx, rootMG, UseCache, IncludeBoth)
	require.NoError(t, err)

	after, err := json.Marshal(node)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestBuildPathCompositionRoundTrip(t *testing.T) {
	transport := newMockTransport()
	transport.respondMG(rootMG, "", descendantItem(mg1, "Microsoft.Management/managementGroups", rootMG))
	transport.respondMG(mg1, rootMG)
	client := newTestClient(t, transport)

	ctx := context.Background()
	_, err := client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)
	child, err := client.Build(ctx, mg1, UseCache, ExcludeBoth)
	require.NoError(t, err)

	assert.Equal(t, "/root", child.ParentPath)
	assert.Equal(t, "/root/mg1", child.ResourcePath)
	assert.Equal(t, child.ParentPath+"/"+child.Name, child.ResourcePath)
}
