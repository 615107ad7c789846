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
	"testing"

	"github.com/holiman/uint256"

	"github.com/zkopru-network/go-grove/hasher"
	"github.com/zkopru-network/go-grove/store"
)

// referenceNullifierRoot recomputes the sparse root from the full set of
// spent keys, recursively, as the ground truth.
func referenceNullifierRoot(h hasher.Hasher[*uint256.Int], depth int, keys []*uint256.Int) *uint256.Int {
	pre := hasher.PreHash(h, depth)
	var build func(level int, keys []*uint256.Int) *uint256.Int
	build = func(level int, keys []*uint256.Int) *uint256.Int {
		if len(keys) == 0 {
			return pre[level]
		}
		if level == 0 {
			return uint256.NewInt(1)
		}
		var left, right []*uint256.Int
		for _, key := range keys {
			if bitOf(key, level-1) == 1 {
				right = append(right, key)
			} else {
				left = append(left, key)
			}
		}
		return h.ParentOf(build(level-1, left), build(level-1, right))
	}
	return build(depth, keys)
}

func nullify(t *testing.T, tree *NullifierTree, db *store.Memory, keys ...uint64) *uint256.Int {
	t.Helper()
	nullifiers := make([]*uint256.Int, len(keys))
	for i, key := range keys {
		nullifiers[i] = uint256.NewInt(key)
	}
	tx := db.Transaction()
	root, err := tree.Nullify(context.Background(), tx, nullifiers)
	if err != nil {
		t.Fatalf("nullify: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return root
}

func TestNullifyMatchesReference(t *testing.T) {
	t.Parallel()

	h := hasher.NewKeccak()
	db := store.NewMemory()
	tree := NewNullifierTree(db, 8, h)
	ctx := context.Background()

	nullify(t, tree, db, 3, 17, 200)
	nullify(t, tree, db, 91)

	want := referenceNullifierRoot(h, 8, []*uint256.Int{
		uint256.NewInt(3), uint256.NewInt(17), uint256.NewInt(200), uint256.NewInt(91),
	})
	root, err := tree.Root(ctx)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !h.Equal(root, want) {
		t.Fatalf("root %s, want %s", h.Encode(root), h.Encode(want))
	}
}

func TestNullifyIdempotent(t *testing.T) {
	t.Parallel()

	db := store.NewMemory()
	tree := NewNullifierTree(db, 8, hasher.NewKeccak())

	first := nullify(t, tree, db, 5, 6)
	again := nullify(t, tree, db, 5)
	if !first.Eq(again) {
		t.Fatalf("re-nullifying a set key changed the root: %s != %s", first.Hex(), again.Hex())
	}
	other := nullify(t, tree, db, 7)
	if first.Eq(other) {
		t.Fatal("nullifying a fresh key should change the root")
	}
}

func TestDryRunNullifyIsPure(t *testing.T) {
	t.Parallel()

	db := store.NewMemory()
	tree := NewNullifierTree(db, 8, hasher.NewKeccak())
	ctx := context.Background()

	committed := nullify(t, tree, db, 1, 2)

	predicted, err := tree.DryRunNullify(ctx, []*uint256.Int{uint256.NewInt(9)})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if predicted.Eq(committed) {
		t.Fatal("dry run of a fresh key should report a different root")
	}

	root, err := tree.Root(ctx)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !root.Eq(committed) {
		t.Fatal("dry run changed committed state")
	}

	// Dry run of an already-set key reports the current root.
	dry, err := tree.DryRunNullify(ctx, []*uint256.Int{uint256.NewInt(1)})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !dry.Eq(committed) {
		t.Fatalf("dry run of a set key should match the current root: %s != %s", dry.Hex(), committed.Hex())
	}

	// The prediction matches the real application.
	applied := nullify(t, tree, db, 9)
	if !applied.Eq(predicted) {
		t.Fatal("applied root should match the earlier prediction")
	}
}

func TestNullifierEmptyRoot(t *testing.T) {
	t.Parallel()

	h := hasher.NewKeccak()
	tree := NewNullifierTree(store.NewMemory(), 8, h)
	root, err := tree.Root(context.Background())
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !h.Equal(root, hasher.GenesisRoot[*uint256.Int](h, 8)) {
		t.Fatal("empty tree root should be the deepest pre-hash")
	}
}
