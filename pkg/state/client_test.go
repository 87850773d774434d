package state

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowCacheIsStableAcrossRepeatBuilds(t *testing.T) {
	transport := newMockTransport()
	transport.respondMG(rootMG, "")
	client := newTestClient(t, transport)

	ctx := context.Background()
	_, err := client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)
	first := len(client.ShowCache())

	_, err = client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)

	assert.Equal(t, first, len(client.ShowCache()))
}

func TestClearCacheForcesRefetch(t *testing.T) {
	transport := newMockTransport()
	transport.respondMG(rootMG, "")
	client := newTestClient(t, transport)

	ctx := context.Background()
	_, err := client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)

	client.ClearCache()
	assert.Empty(t, client.ShowCache())
	assert.Empty(t, client.ShowResponseCache())

	primary := rootMG + "?api-version=" + mgVersion
	before := transport.callCount(primary)
	_, err = client.Build(ctx, rootMG, UseCache, ExcludeBoth)
	require.NoError(t, err)
	assert.Equal(t, before+1, transport.callCount(primary))
}

func TestCacheTryInsertKeepsFirstWinner(t *testing.T) {
	cache := NewCache()
	a := &StateNode{ID: rootMG, Type: "Microsoft.Management/managementGroups"}
	b := &StateNode{ID: rootMG, Type: "Microsoft.Management/managementGroups"}

	winner, inserted := cache.TryInsert(rootMG, a)
	assert.True(t, inserted)
	assert.Same(t, a, winner)

	// The losing build is discarded, case-insensitively.
	winner, inserted = cache.TryInsert(strings.ToUpper(rootMG), b)
	assert.False(t, inserted)
	assert.Same(t, a, winner)
	assert.Equal(t, 1, cache.Len())
}

func TestConcurrentBuildsConvergeOnOneNode(t *testing.T) {
	transport := newMockTransport()
	transport.respondMG(rootMG, "")
	client := newTestClient(t, transport)

	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	nodes := make([]*StateNode, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			node, err := client.Build(ctx, rootMG, UseCache, ExcludeBoth)
			assert.NoError(t, err)
			nodes[i] = node
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, client.cache.Len())
	cached, ok := client.cache.Get(rootMG)
	require.True(t, ok)
	for _, node := range nodes {
		assert.Same(t, cached, node)
	}
}
