package store

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func TestMemoryNotFound(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	if _, err := m.LightTree(ctx, SpeciesUtxo); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.TreeNode(ctx, "utxo", "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.Utxo(ctx, "42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.Bootstrap(ctx, "0x1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryTransactionIsAtomic(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	tx := m.Transaction()
	tx.UpsertLightTree(LightTree{Species: SpeciesUtxo, Root: "1", Index: "0"})
	tx.PutTreeNode(TreeNode{TreeID: "utxo", NodeIndex: "1", Value: "0xaa"})
	tx.UpsertUtxoIndex("42", "0")

	// Nothing is visible before commit.
	if _, err := m.LightTree(ctx, SpeciesUtxo); !errors.Is(err, ErrNotFound) {
		t.Fatal("staged writes should not be visible")
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	row, err := m.LightTree(ctx, SpeciesUtxo)
	if err != nil {
		t.Fatalf("reading committed row: %v", err)
	}
	if row.Root != "1" {
		t.Fatalf("root %q, want %q", row.Root, "1")
	}
	utxo, err := m.Utxo(ctx, "42")
	if err != nil {
		t.Fatalf("reading committed utxo: %v", err)
	}
	if utxo.Index == nil || *utxo.Index != "0" {
		t.Fatal("utxo index should be committed")
	}
}

func TestMemoryAbandonedTransaction(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	tx := m.Transaction()
	tx.PutTreeNode(TreeNode{TreeID: "utxo", NodeIndex: "1", Value: "0xaa"})
	// Dropped without commit: no trace.
	if _, err := m.TreeNode(context.Background(), "utxo", "1"); !errors.Is(err, ErrNotFound) {
		t.Fatal("an abandoned transaction must leave no state")
	}
}

func TestMemoryTreeNodesBatch(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	tx := m.Transaction()
	tx.PutTreeNode(TreeNode{TreeID: "utxo", NodeIndex: "4", Value: "0xa"})
	tx.PutTreeNode(TreeNode{TreeID: "utxo", NodeIndex: "5", Value: "0xb"})
	tx.PutTreeNode(TreeNode{TreeID: "withdrawal", NodeIndex: "4", Value: "0xc"})
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	nodes, err := m.TreeNodes(ctx, "utxo", []string{"4", "5", "6"})
	if err != nil {
		t.Fatalf("batch read: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
}

func TestMemoryBootstrapRows(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	tx := m.Transaction()
	tx.PutBootstrap(Bootstrap{BlockHash: "0x1", UtxoBootstrap: "[]", WithdrawalBootstrap: "[]"})
	tx.PutBootstrap(Bootstrap{UtxoBootstrap: "[]", WithdrawalBootstrap: "[]"}) // unkeyed
	tx.EnsureBlock("0x1")
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := m.Bootstrap(ctx, "0x1"); err != nil {
		t.Fatalf("keyed bootstrap row should exist: %v", err)
	}
	if len(m.unkeyed) != 1 {
		t.Fatalf("expected one unkeyed bootstrap row, got %d", len(m.unkeyed))
	}
	if _, ok := m.blocks["0x1"]; !ok {
		t.Fatal("block row should exist")
	}

	// Upserting by the same hash replaces, not duplicates.
	tx = m.Transaction()
	tx.PutBootstrap(Bootstrap{BlockHash: "0x1", UtxoBootstrap: `["0x2"]`, WithdrawalBootstrap: "[]"})
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	row, err := m.Bootstrap(ctx, "0x1")
	if err != nil {
		t.Fatalf("reading upserted row: %v", err)
	}
	if row.UtxoBootstrap != `["0x2"]` {
		t.Fatal("upsert should replace the keyed row")
	}
}
