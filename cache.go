// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package grove

import (
	"context"
	"sync"

	"github.com/holiman/uint256"

	"github.com/zkopru-network/go-grove/store"
)

// TreeCache retains the internal nodes needed to later prove leaves that
// were observed as of interest. Values are kept in their canonical string
// encoding so one cache serves every species. Writes go to the in-memory
// map and to the caller's transaction together, so memory and disk commit
// as one.
type TreeCache struct {
	mu sync.RWMutex

	// nodes holds the retained values: treeID -> nodeIndex -> value.
	nodes map[string]map[string]string

	// leafPaths records, per retained leaf, the ancestor node indices on
	// its path: treeID -> leafIndex -> indices, leaf level first.
	leafPaths map[string]map[string][]string

	// interest is the set of node indices some retained leaf needs,
	// ancestors and their siblings both.
	interest map[string]map[string]struct{}
}

// NewTreeCache returns an empty cache.
func NewTreeCache() *TreeCache {
	return &TreeCache{
		nodes:     make(map[string]map[string]string),
		leafPaths: make(map[string]map[string][]string),
		interest:  make(map[string]map[string]struct{}),
	}
}

// Observe registers leafIndex as retained: its ancestors and their siblings
// become of interest for every future append. Retention is never undone.
func (c *TreeCache) Observe(treeID string, depth int, leafIndex *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths, ok := c.leafPaths[treeID]
	if !ok {
		paths = make(map[string][]string)
		c.leafPaths[treeID] = paths
	}
	if _, ok := paths[encodeIndex(leafIndex)]; ok {
		// Already retained; the interest set is complete.
		return
	}
	want, ok := c.interest[treeID]
	if !ok {
		want = make(map[string]struct{})
		c.interest[treeID] = want
	}

	ancestors := make([]string, 0, depth+1)
	cur := leafNodeIndex(depth, leafIndex)
	for k := 0; k < depth; k++ {
		ancestors = append(ancestors, encodeIndex(cur))
		want[encodeIndex(cur)] = struct{}{}
		want[encodeIndex(siblingNodeIndex(cur))] = struct{}{}
		cur = parentNodeIndex(cur)
	}
	ancestors = append(ancestors, encodeIndex(cur)) // the root
	want[encodeIndex(cur)] = struct{}{}
	paths[encodeIndex(leafIndex)] = ancestors
}

// Keep stages value for nodeIndex iff some retained leaf needs it, writing
// the in-memory entry and the TreeNode row into tx in one motion. It
// reports whether the node was kept.
func (c *TreeCache) Keep(tx store.Tx, treeID, nodeIndex, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.interest[treeID][nodeIndex]; !ok {
		return false
	}
	nodes, ok := c.nodes[treeID]
	if !ok {
		nodes = make(map[string]string)
		c.nodes[treeID] = nodes
	}
	nodes[nodeIndex] = value
	tx.PutTreeNode(store.TreeNode{TreeID: treeID, NodeIndex: nodeIndex, Value: value})
	return true
}

// Get returns the cached value for nodeIndex, if any.
func (c *TreeCache) Get(treeID, nodeIndex string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.nodes[treeID][nodeIndex]
	return value, ok
}

// CachedSiblings returns, per level, the sibling value on leafIndex's path,
// drawing from the cache first and falling back to a batched DB read.
// Levels with no retained sibling are absent from the result.
func (c *TreeCache) CachedSiblings(ctx context.Context, db store.DB, depth int, treeID string, leafIndex *uint256.Int) (map[int]string, error) {
	levelOf := make(map[string]int, depth)
	cur := leafNodeIndex(depth, leafIndex)
	for k := 0; k < depth; k++ {
		levelOf[encodeIndex(siblingNodeIndex(cur))] = k
		cur = parentNodeIndex(cur)
	}

	siblings := make(map[int]string, depth)
	var missing []string
	c.mu.RLock()
	for idx, level := range levelOf {
		if value, ok := c.nodes[treeID][idx]; ok {
			siblings[level] = value
		} else {
			missing = append(missing, idx)
		}
	}
	c.mu.RUnlock()

	if len(missing) > 0 {
		rows, err := db.TreeNodes(ctx, treeID, missing)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			siblings[levelOf[row.NodeIndex]] = row.Value
		}
	}
	return siblings, nil
}

// leafNodeIndex maps a leaf position to its heap-style node index,
// 2^depth + leafIndex.
func leafNodeIndex(depth int, leafIndex *uint256.Int) *uint256.Int {
	n := new(uint256.Int).Lsh(uint256.NewInt(1), uint(depth))
	return n.Or(n, leafIndex)
}

func siblingNodeIndex(n *uint256.Int) *uint256.Int {
	return new(uint256.Int).Xor(n, uint256.NewInt(1))
}

func parentNodeIndex(n *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(n, 1)
}
