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
	"sort"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/zkopru-network/go-grove/hasher"
	"github.com/zkopru-network/go-grove/store"
)

// nullifierTreeID keys the nullifier tree's rows in the TreeNode table.
const nullifierTreeID = "nullifier"

// NullifierTree is a sparse Merkle tree whose leaf at position k holds the
// bit "nullifier k was spent". Only non-empty nodes are persisted; every
// missing node is the empty-subtree root of its level.
type NullifierTree struct {
	depth   int
	hasher  hasher.Hasher[*uint256.Int]
	preHash []*uint256.Int
	db      store.DB
}

// NewNullifierTree builds a nullifier tree over the given store.
func NewNullifierTree(db store.DB, depth int, h hasher.Hasher[*uint256.Int]) *NullifierTree {
	return &NullifierTree{
		depth:   depth,
		hasher:  h,
		preHash: hasher.PreHash(h, depth),
		db:      db,
	}
}

// Root returns the committed root.
func (t *NullifierTree) Root(ctx context.Context) (*uint256.Int, error) {
	return t.node(ctx, uint256.NewInt(1), t.depth)
}

// Nullify sets the leaf bit of every key and stages each visited non-empty
// node into tx. Nullifying an already-set key is a no-op, never an error.
// The resulting root is returned.
func (t *NullifierTree) Nullify(ctx context.Context, tx store.Tx, keys []*uint256.Int) (*uint256.Int, error) {
	return t.update(ctx, tx, uint256.NewInt(1), t.depth, sortedKeys(keys))
}

// DryRunNullify computes the root that Nullify would produce without
// persisting anything.
func (t *NullifierTree) DryRunNullify(ctx context.Context, keys []*uint256.Int) (*uint256.Int, error) {
	return t.update(ctx, nil, uint256.NewInt(1), t.depth, sortedKeys(keys))
}

// update recomputes the subtree under nodeIndex after setting the leaves of
// keys, walking top-down and grouping keys by their bit at each level. A
// nil tx makes the walk a pure read.
func (t *NullifierTree) update(ctx context.Context, tx store.Tx, nodeIndex *uint256.Int, level int, keys []*uint256.Int) (*uint256.Int, error) {
	if len(keys) == 0 {
		return t.node(ctx, nodeIndex, level)
	}
	if level == 0 {
		leaf := uint256.NewInt(1)
		if tx != nil {
			tx.PutTreeNode(store.TreeNode{
				TreeID:    nullifierTreeID,
				NodeIndex: encodeIndex(nodeIndex),
				Value:     t.hasher.Encode(leaf),
			})
		}
		return leaf, nil
	}

	// Bit level-1 of the key routes it below this node.
	var left, right []*uint256.Int
	for _, key := range keys {
		if bitOf(key, level-1) == 1 {
			right = append(right, key)
		} else {
			left = append(left, key)
		}
	}
	leftIdx := new(uint256.Int).Lsh(nodeIndex, 1)
	rightIdx := new(uint256.Int).Or(leftIdx, uint256.NewInt(1))

	l, err := t.update(ctx, tx, leftIdx, level-1, left)
	if err != nil {
		return nil, err
	}
	r, err := t.update(ctx, tx, rightIdx, level-1, right)
	if err != nil {
		return nil, err
	}
	value := t.hasher.ParentOf(l, r)
	if tx != nil && !t.hasher.Equal(value, t.preHash[level]) {
		tx.PutTreeNode(store.TreeNode{
			TreeID:    nullifierTreeID,
			NodeIndex: encodeIndex(nodeIndex),
			Value:     t.hasher.Encode(value),
		})
	}
	return value, nil
}

// node returns the persisted value of nodeIndex, defaulting to the
// empty-subtree root of its level.
func (t *NullifierTree) node(ctx context.Context, nodeIndex *uint256.Int, level int) (*uint256.Int, error) {
	row, err := t.db.TreeNode(ctx, nullifierTreeID, encodeIndex(nodeIndex))
	if errors.Is(err, store.ErrNotFound) {
		return t.preHash[level], nil
	}
	if err != nil {
		return nil, err
	}
	return t.hasher.Decode(row.Value)
}

// sortedKeys returns a deduplicated ascending copy of keys.
func sortedKeys(keys []*uint256.Int) []*uint256.Int {
	sorted := make([]*uint256.Int, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	deduped := sorted[:0]
	for i, key := range sorted {
		if i == 0 || !key.Eq(sorted[i-1]) {
			deduped = append(deduped, key)
		}
	}
	return deduped
}
