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

	"github.com/zkopru-network/go-grove/store"
)

func TestCacheKeepsOnlyObservedPaths(t *testing.T) {
	t.Parallel()

	cache := NewTreeCache()
	db := store.NewMemory()
	tx := db.Transaction()

	// Nothing observed yet: nothing is kept.
	if cache.Keep(tx, "utxo", "16", "0x1") {
		t.Fatal("an unobserved node should not be kept")
	}

	// Observing leaf 0 of a depth-4 tree makes its path interesting:
	// nodes 16/17 down at the leaf level, then 8/9, 4/5, 2/3 and 1.
	cache.Observe("utxo", 4, new(uint256.Int))
	if !cache.Keep(tx, "utxo", "16", "0x1") {
		t.Fatal("the observed leaf node should be kept")
	}
	if !cache.Keep(tx, "utxo", "17", "0x2") {
		t.Fatal("the observed leaf's sibling should be kept")
	}
	if cache.Keep(tx, "utxo", "18", "0x3") {
		t.Fatal("a node off the observed path should not be kept")
	}
	if cache.Keep(tx, "withdrawal", "16", "0x1") {
		t.Fatal("interest must be per tree")
	}

	if value, ok := cache.Get("utxo", "17"); !ok || value != "0x2" {
		t.Fatalf("cached value for node 17: %q, %v", value, ok)
	}
}

func TestCachedSiblingsFallsBackToDB(t *testing.T) {
	t.Parallel()

	cache := NewTreeCache()
	db := store.NewMemory()
	ctx := context.Background()

	// Persist the level-0 and level-1 siblings of leaf 0 directly, as a
	// previous process run would have.
	tx := db.Transaction()
	tx.PutTreeNode(store.TreeNode{TreeID: "utxo", NodeIndex: "17", Value: "0xaa"})
	tx.PutTreeNode(store.TreeNode{TreeID: "utxo", NodeIndex: "9", Value: "0xbb"})
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	siblings, err := cache.CachedSiblings(ctx, db, 4, "utxo", new(uint256.Int))
	if err != nil {
		t.Fatalf("cached siblings: %v", err)
	}
	if siblings[0] != "0xaa" || siblings[1] != "0xbb" {
		t.Fatalf("unexpected siblings from DB fallback: %v", siblings)
	}
	if _, ok := siblings[2]; ok {
		t.Fatal("levels with no retained node should be absent")
	}

	// A cached value wins over the persisted one.
	cache.Observe("utxo", 4, new(uint256.Int))
	tx = db.Transaction()
	cache.Keep(tx, "utxo", "17", "0xcc")
	siblings, err = cache.CachedSiblings(ctx, db, 4, "utxo", new(uint256.Int))
	if err != nil {
		t.Fatalf("cached siblings: %v", err)
	}
	if siblings[0] != "0xcc" {
		t.Fatalf("cache should take precedence, got %q", siblings[0])
	}
}

func TestNodeIndexMath(t *testing.T) {
	t.Parallel()

	leaf := leafNodeIndex(4, uint256.NewInt(5))
	if leaf.Uint64() != 21 {
		t.Fatalf("leaf 5 of a depth-4 tree should be node 21, got %d", leaf.Uint64())
	}
	if siblingNodeIndex(leaf).Uint64() != 20 {
		t.Fatalf("sibling of node 21 should be 20")
	}
	if parentNodeIndex(leaf).Uint64() != 10 {
		t.Fatalf("parent of node 21 should be 10")
	}
}
