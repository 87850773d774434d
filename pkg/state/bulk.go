package state

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/krowlandson/AzureStateManager/pkg/resourceid"
)

// Diagnostic records a per-identifier failure encountered during a bulk
// operation that did not abort the batch.
type Diagnostic struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Diagnostics is the collection of non-fatal failures surfaced alongside a
// bulk result.
type Diagnostics []Diagnostic

// Err folds the collection into a single error, or nil when empty.
func (d Diagnostics) Err() error {
	var result *multierror.Error
	for _, diag := range d {
		result = multierror.Append(result, diag.Err)
	}
	return result.ErrorOrNil()
}

func (d Diagnostics) add(id string, err error) Diagnostics {
	return append(d, Diagnostic{ID: id, Message: err.Error(), Err: err})
}

// FromIDs builds the StateNodes for a list of identifiers.
//
// Identifiers are deduplicated case-insensitively and empty entries dropped.
// throttleLimit 0 materializes nodes directly from previously obtained list
// payloads without re-fetching each singleton endpoint; 1 runs serially; a
// higher limit fans out across that many workers. A bulk call that collapses
// to one identifier after dedup demotes to serial.
//
// Per-identifier failures do not abort sibling work: the result is the
// best-effort union, with failures collected as diagnostics. Ordering of the
// result is unspecified.
func (c *Client) FromIDs(ctx context.Context, ids []string, throttleLimit int, cacheMode CacheMode, mode DiscoveryMode) ([]*StateNode, Diagnostics) {
	unique := dedupeIDs(ids)
	if len(unique) == 0 {
		return nil, nil
	}
	if throttleLimit > 1 && len(unique) == 1 {
		throttleLimit = 1
	}

	if throttleLimit > 1 {
		return c.fromIDsParallel(ctx, unique, throttleLimit, cacheMode, mode)
	}

	var (
		nodes []*StateNode
		diags Diagnostics
	)
	for _, id := range unique {
		node, warnings, err := c.buildOne(ctx, id, throttleLimit == 0, cacheMode, mode)
		for _, w := range warnings {
			diags = diags.add(id, w)
		}
		if err != nil {
			diags = diags.add(id, err)
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, diags
}

// fromIDsParallel dispatches builds across a bounded worker pool. Workers
// share the state cache, the response cache and the version registry;
// failures on one identifier never abort siblings.
func (c *Client) fromIDsParallel(ctx context.Context, ids []string, workers int, cacheMode CacheMode, mode DiscoveryMode) ([]*StateNode, Diagnostics) {
	if workers > len(ids) {
		workers = len(ids)
	}

	jobs := make(chan string)
	var (
		mu    sync.Mutex
		nodes []*StateNode
		diags Diagnostics
		wg    sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				node, warnings, err := c.build(ctx, id, cacheMode, mode)
				mu.Lock()
				for _, w := range warnings {
					diags = diags.add(id, w)
				}
				if err != nil {
					diags = diags.add(id, err)
				} else {
					nodes = append(nodes, node)
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, id := range ids {
		select {
		case jobs <- id:
		case <-ctx.Done():
			// Pending dispatches abort; in-flight builds observe the
			// cancellation through the transport.
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		diags = diags.add("", err)
	}
	return nodes, diags
}

func (c *Client) buildOne(ctx context.Context, id string, direct bool, cacheMode CacheMode, mode DiscoveryMode) (*StateNode, []error, error) {
	if direct {
		return c.buildDirect(ctx, id, mode)
	}
	return c.build(ctx, id, cacheMode, mode)
}

// FromScope lists a collection scope and materializes a node for every item
// it returns. With throttleLimit 0 the listing bodies themselves become the
// nodes (direct materialization); higher limits re-fetch each item through
// FromIDs semantics.
func (c *Client) FromScope(ctx context.Context, scope string, throttleLimit int, cacheMode CacheMode, mode DiscoveryMode) ([]*StateNode, Diagnostics, error) {
	refs, err := c.listChildItems(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	nodes, diags := c.FromIDs(ctx, ids, throttleLimit, cacheMode, mode)
	return nodes, diags, nil
}

// dedupeIDs drops empty identifiers and case-insensitive duplicates,
// preserving first-seen order and spelling.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		key := resourceid.Canonical(id)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out
}
