// Package store defines the persistence contract the grove consumes: a small
// document store with per-table lookups and a transaction type that stages
// writes for a single atomic commit.
package store

import (
	"context"

	"github.com/pkg/errors"
)

// Species identifies one of the two light rollup trees.
type Species string

const (
	SpeciesUtxo       Species = "utxo"
	SpeciesWithdrawal Species = "withdrawal"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("store: not found")

	// ErrSchemaMismatch is returned when the backing database lacks the
	// required tables or columns.
	ErrSchemaMismatch = errors.New("store: schema mismatch")
)

// LightTree is the persisted metadata row of one tree species. Root and the
// siblings entries use the species' canonical value encoding; Index, Start
// and End are base-10 strings.
type LightTree struct {
	Species  Species
	Root     string
	Index    string
	Siblings string // JSON array of encoded node values
	Start    string
	End      string
}

// TreeNode is a retained internal node. NodeIndex is the heap-style index
// (root = 1, children of n are 2n and 2n+1) as a base-10 string.
type TreeNode struct {
	TreeID    string
	NodeIndex string
	Value     string
}

// Utxo is the leaf record of a note commitment. Index is nil until the leaf
// is part of a committed block.
type Utxo struct {
	Hash  string
	Index *string
}

// Withdrawal is the leaf record of a withdrawal hash.
type Withdrawal struct {
	Hash  string
	Index *string
}

// Bootstrap is a resume point: the frontier of both trees, keyed by the
// block header hash when one was supplied.
type Bootstrap struct {
	BlockHash           string // empty for unkeyed rows
	UtxoBootstrap       string // JSON array of encoded siblings
	WithdrawalBootstrap string
}

// DB is the read side of the persistence contract. Implementations must
// return ErrNotFound for missing rows, never a nil row with a nil error.
type DB interface {
	// LightTree returns the metadata row of a species.
	LightTree(ctx context.Context, species Species) (*LightTree, error)

	// TreeNode returns a single retained node.
	TreeNode(ctx context.Context, treeID, nodeIndex string) (*TreeNode, error)

	// TreeNodes returns the retained nodes among nodeIndices, in no
	// particular order. Missing indices are simply absent.
	TreeNodes(ctx context.Context, treeID string, nodeIndices []string) ([]TreeNode, error)

	// Utxo returns the leaf record with the given commitment hash.
	Utxo(ctx context.Context, hash string) (*Utxo, error)

	// Withdrawal returns the leaf record with the given withdrawal hash.
	Withdrawal(ctx context.Context, hash string) (*Withdrawal, error)

	// Bootstrap returns the bootstrap row keyed by blockHash.
	Bootstrap(ctx context.Context, blockHash string) (*Bootstrap, error)

	// Transaction opens a staging batch. Nothing is visible to readers
	// until Commit.
	Transaction() Tx
}

// Tx stages writes for an atomic commit. Staging never fails; all errors
// surface from Commit. A Tx that is never committed leaves no trace.
type Tx interface {
	// UpsertLightTree stages the metadata row of a species.
	UpsertLightTree(row LightTree)

	// PutTreeNode stages a retained node, replacing any previous value.
	PutTreeNode(node TreeNode)

	// EnsureUtxo stages a pending note commitment record with no index,
	// if none exists.
	EnsureUtxo(hash string)

	// EnsureWithdrawal stages a pending withdrawal record with no index,
	// if none exists.
	EnsureWithdrawal(hash string)

	// UpsertUtxoIndex stages the committed index of a note commitment.
	UpsertUtxoIndex(hash, index string)

	// UpsertWithdrawalIndex stages the committed index of a withdrawal.
	UpsertWithdrawalIndex(hash, index string)

	// PutBootstrap stages a bootstrap row. Rows with a block hash are
	// upserted by it; unkeyed rows are inserted.
	PutBootstrap(row Bootstrap)

	// EnsureBlock stages creation of a Block row if absent.
	EnsureBlock(hash string)

	// Commit applies every staged write atomically.
	Commit(ctx context.Context) error
}
