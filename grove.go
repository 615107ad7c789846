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

// Package grove maintains the persistent, append-only forest of Merkle
// trees backing a zk-rollup's state commitments: a UTXO tree of note
// commitments, a Withdrawal tree of withdrawal hashes, and a sparse
// Nullifier tree of spent-note bits.
package grove

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/zkopru-network/go-grove/hasher"
	"github.com/zkopru-network/go-grove/store"
)

var (
	// ErrNotInitialized is returned by mutations and proof queries before
	// Init or ApplyBootstrap has run.
	ErrNotInitialized = errors.New("grove: not initialized")

	// ErrInvalidBootstrapProof is returned when a starting-leaf proof is
	// rejected by the hasher.
	ErrInvalidBootstrapProof = errors.New("grove: invalid bootstrap proof")

	// ErrTreeFull is returned when an append would exceed 2^depth leaves.
	ErrTreeFull = errors.New("grove: tree is full")

	// ErrLeafNotFound is returned by proof queries for unknown leaves.
	ErrLeafNotFound = errors.New("grove: leaf not found")

	// ErrLeafNotCommitted is returned when a leaf is known but not yet
	// part of a committed block.
	ErrLeafNotCommitted = errors.New("grove: leaf not committed")

	// ErrProofUnavailable is returned when a reconstructed proof fails
	// verification, typically because the ancestor nodes were not
	// retained.
	ErrProofUnavailable = errors.New("grove: proof unavailable")

	// ErrLeafExists is the idempotence guard: a tracked leaf that already
	// has a committed index is being appended again. ForceUpdate bypasses
	// it.
	ErrLeafExists = errors.New("grove: leaf already committed")
)

// GrovePatch is the per-block mutation produced by block ingestion.
type GrovePatch struct {
	// Header is the hash of the applied block, when known.
	Header string

	Utxos       []Leaf[*big.Int]
	Withdrawals []Leaf[*uint256.Int]
	Nullifiers  []*uint256.Int
}

// GroveSnapshot reports the prospective or current state of the forest.
type GroveSnapshot struct {
	UtxoTreeIndex       *uint256.Int
	UtxoTreeRoot        *big.Int
	WithdrawalTreeIndex *uint256.Int
	WithdrawalTreeRoot  *uint256.Int

	// NullifierTreeRoot is nil when no nullifier tree is kept (light
	// mode).
	NullifierTreeRoot *uint256.Int
}

// Grove coordinates the three trees behind one exclusive write lock. All
// mutations stage into a caller-supplied transaction and commit at caller
// scope; proof queries bypass the lock and read committed state only.
type Grove struct {
	config Config
	db     store.DB
	cache  *TreeCache

	// lock is the grove write lock: a fair single-slot semaphore, so
	// waiters acquire in FIFO order and I/O may suspend inside the
	// critical section without blocking the scheduler.
	lock *semaphore.Weighted

	utxoTree       *UtxoTree
	withdrawalTree *WithdrawalTree
	nullifierTree  *NullifierTree
}

// NewGrove builds a grove over db. The returned grove is unusable until
// Init or ApplyBootstrap has run.
func NewGrove(db store.DB, config Config) (*Grove, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Grove{
		config: config,
		db:     db,
		cache:  NewTreeCache(),
		lock:   semaphore.NewWeighted(1),
	}, nil
}

// Init loads the persisted metadata rows, bootstrapping genesis rows when
// absent, and constructs the trees. The in-memory frontier after Init is
// exactly the last committed state.
func (g *Grove) Init(ctx context.Context) error {
	if err := g.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.lock.Release(1)

	observed, err := g.config.observedAddresses()
	if err != nil {
		return err
	}

	utxoRow, err := g.db.LightTree(ctx, store.SpeciesUtxo)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	withdrawalRow, err := g.db.LightTree(ctx, store.SpeciesWithdrawal)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	tx := g.db.Transaction()
	genesis := false

	if utxoRow == nil {
		u := NewUtxoTree(g.db, g.cache, g.config.UtxoTreeDepth, g.config.UtxoHasher,
			g.config.ForceUpdate, g.config.ZkAddressesToObserve)
		row, err := u.metadataRow()
		if err != nil {
			return err
		}
		tx.UpsertLightTree(row)
		g.utxoTree = u
		genesis = true
	} else {
		u, err := UtxoTreeFrom(g.db, utxoRow, g.cache, g.config.UtxoTreeDepth, g.config.UtxoHasher,
			g.config.ForceUpdate, g.config.ZkAddressesToObserve)
		if err != nil {
			return err
		}
		g.utxoTree = u
	}

	if withdrawalRow == nil {
		w := NewWithdrawalTree(g.db, g.cache, g.config.WithdrawalTreeDepth, g.config.WithdrawalHasher,
			g.config.ForceUpdate, observed)
		row, err := w.metadataRow()
		if err != nil {
			return err
		}
		tx.UpsertLightTree(row)
		g.withdrawalTree = w
		genesis = true
	} else {
		w, err := WithdrawalTreeFrom(g.db, withdrawalRow, g.cache, g.config.WithdrawalTreeDepth, g.config.WithdrawalHasher,
			g.config.ForceUpdate, observed)
		if err != nil {
			return err
		}
		g.withdrawalTree = w
	}

	if genesis {
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	if g.config.FullSync {
		g.nullifierTree = NewNullifierTree(g.db, g.config.NullifierTreeDepth, g.config.NullifierHasher)
	}
	return nil
}

// ApplyBootstrap resumes a fresh grove from the starting-leaf proofs a
// trusted peer served. Both proofs must verify; the resulting frontiers
// are persisted and the trees rebuilt from them.
func (g *Grove) ApplyBootstrap(ctx context.Context, data *BootstrapData) error {
	if err := g.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.lock.Release(1)

	observed, err := g.config.observedAddresses()
	if err != nil {
		return err
	}

	if len(data.UtxoProof.Siblings) != g.config.UtxoTreeDepth ||
		!StartingLeafProof(g.config.UtxoHasher, data.UtxoProof.Root, data.UtxoProof.Index, data.UtxoProof.Siblings) {
		return errors.Wrap(ErrInvalidBootstrapProof, "utxo tree")
	}
	if len(data.WithdrawalProof.Siblings) != g.config.WithdrawalTreeDepth ||
		!StartingLeafProof(g.config.WithdrawalHasher, data.WithdrawalProof.Root, data.WithdrawalProof.Index, data.WithdrawalProof.Siblings) {
		return errors.Wrap(ErrInvalidBootstrapProof, "withdrawal tree")
	}

	u := NewUtxoTree(g.db, g.cache, g.config.UtxoTreeDepth, g.config.UtxoHasher,
		g.config.ForceUpdate, g.config.ZkAddressesToObserve)
	u.adopt(data.UtxoProof.Root, data.UtxoProof.Index, data.UtxoProof.Siblings)
	w := NewWithdrawalTree(g.db, g.cache, g.config.WithdrawalTreeDepth, g.config.WithdrawalHasher,
		g.config.ForceUpdate, observed)
	w.adopt(data.WithdrawalProof.Root, data.WithdrawalProof.Index, data.WithdrawalProof.Siblings)

	tx := g.db.Transaction()
	utxoRow, err := u.metadataRow()
	if err != nil {
		return err
	}
	withdrawalRow, err := w.metadataRow()
	if err != nil {
		return err
	}
	tx.UpsertLightTree(utxoRow)
	tx.UpsertLightTree(withdrawalRow)
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	g.utxoTree = u
	g.withdrawalTree = w
	if g.config.FullSync {
		g.nullifierTree = NewNullifierTree(g.db, g.config.NullifierTreeDepth, g.config.NullifierHasher)
	}
	return nil
}

// ApplyGrovePatch appends the patch's leaves with sub-tree padding,
// nullifies its spent notes, and, in full-sync mode, records a bootstrap
// row. Everything stages into tx; the caller commits or aborts.
func (g *Grove) ApplyGrovePatch(ctx context.Context, tx store.Tx, patch GrovePatch) error {
	if err := g.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.lock.Release(1)

	if g.utxoTree == nil || g.withdrawalTree == nil {
		return ErrNotInitialized
	}

	utxos := padLeaves(g.config.UtxoHasher, patch.Utxos, g.config.UtxoSubTreeSize)
	withdrawals := padLeaves(g.config.WithdrawalHasher, patch.Withdrawals, g.config.WithdrawalSubTreeSize)

	// Capacity is asserted for both species before anything stages, so a
	// full tree leaves the patch untouched.
	if over(g.utxoTree.LatestLeafIndex(), len(utxos), g.utxoTree.MaxSize()) {
		return errors.Wrapf(ErrTreeFull, "utxo tree: %d leaves at index %s",
			len(utxos), g.utxoTree.LatestLeafIndex().Dec())
	}
	if over(g.withdrawalTree.LatestLeafIndex(), len(withdrawals), g.withdrawalTree.MaxSize()) {
		return errors.Wrapf(ErrTreeFull, "withdrawal tree: %d leaves at index %s",
			len(withdrawals), g.withdrawalTree.LatestLeafIndex().Dec())
	}

	if err := g.utxoTree.Append(ctx, tx, utxos); err != nil {
		return err
	}
	if err := g.withdrawalTree.Append(ctx, tx, withdrawals); err != nil {
		return err
	}
	if err := g.markAsNullified(ctx, tx, patch.Nullifiers); err != nil {
		return err
	}
	if g.config.FullSync {
		if err := g.recordBootstrap(tx, patch.Header); err != nil {
			return err
		}
	}
	return nil
}

// markAsNullified stages nullifier updates. Light nodes keep no nullifier
// tree, which makes this a no-op, not an error.
func (g *Grove) markAsNullified(ctx context.Context, tx store.Tx, nullifiers []*uint256.Int) error {
	if g.nullifierTree == nil || len(nullifiers) == 0 {
		return nil
	}
	_, err := g.nullifierTree.Nullify(ctx, tx, nullifiers)
	return err
}

// recordBootstrap stages a resume point holding the current frontiers.
// With a header the row is upserted by block hash and a Block row is
// ensured; without one an unkeyed row is inserted.
func (g *Grove) recordBootstrap(tx store.Tx, header string) error {
	utxoSiblings, err := encodeSiblings(g.utxoTree.hasher, g.utxoTree.metadata.Siblings)
	if err != nil {
		return err
	}
	withdrawalSiblings, err := encodeSiblings(g.withdrawalTree.hasher, g.withdrawalTree.metadata.Siblings)
	if err != nil {
		return err
	}
	tx.PutBootstrap(store.Bootstrap{
		BlockHash:           header,
		UtxoBootstrap:       utxoSiblings,
		WithdrawalBootstrap: withdrawalSiblings,
	})
	if header != "" {
		tx.EnsureBlock(header)
	}
	return nil
}

// DryPatch computes the snapshot that applying patch would produce,
// without touching any state. The reported tree indices are the positions
// prior to the batch offset by the number of padding leaves
// (paddedLen - rawLen), which downstream proof indexing relies on.
func (g *Grove) DryPatch(ctx context.Context, patch GrovePatch) (*GroveSnapshot, error) {
	if err := g.lock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.lock.Release(1)

	if g.utxoTree == nil || g.withdrawalTree == nil {
		return nil, ErrNotInitialized
	}

	utxos := padLeaves(g.config.UtxoHasher, patch.Utxos, g.config.UtxoSubTreeSize)
	withdrawals := padLeaves(g.config.WithdrawalHasher, patch.Withdrawals, g.config.WithdrawalSubTreeSize)

	utxoRoot, _, err := g.utxoTree.DryAppend(utxos)
	if err != nil {
		return nil, err
	}
	utxoIndex := new(uint256.Int).AddUint64(g.utxoTree.LatestLeafIndex(),
		uint64(len(utxos)-len(patch.Utxos)))

	withdrawalRoot, _, err := g.withdrawalTree.DryAppend(withdrawals)
	if err != nil {
		return nil, err
	}
	withdrawalIndex := new(uint256.Int).AddUint64(g.withdrawalTree.LatestLeafIndex(),
		uint64(len(withdrawals)-len(patch.Withdrawals)))

	snapshot := &GroveSnapshot{
		UtxoTreeIndex:       utxoIndex,
		UtxoTreeRoot:        utxoRoot,
		WithdrawalTreeIndex: withdrawalIndex,
		WithdrawalTreeRoot:  withdrawalRoot,
	}
	if g.nullifierTree != nil {
		root, err := g.nullifierTree.DryRunNullify(ctx, patch.Nullifiers)
		if err != nil {
			return nil, err
		}
		snapshot.NullifierTreeRoot = root
	}
	return snapshot, nil
}

// GetSnapshot reports the current committed state of the forest.
func (g *Grove) GetSnapshot(ctx context.Context) (*GroveSnapshot, error) {
	return g.DryPatch(ctx, GrovePatch{})
}

// UtxoMerkleProof reconstructs the inclusion proof of a committed note
// commitment. It does not take the write lock.
func (g *Grove) UtxoMerkleProof(ctx context.Context, hash *big.Int) (MerkleProof[*big.Int], error) {
	if g.utxoTree == nil {
		return MerkleProof[*big.Int]{}, ErrNotInitialized
	}
	return g.utxoTree.MerkleProof(ctx, hash)
}

// WithdrawalMerkleProof reconstructs the inclusion proof of a committed
// withdrawal hash. A non-nil index skips the leaf record lookup. It does
// not take the write lock.
func (g *Grove) WithdrawalMerkleProof(ctx context.Context, hash *uint256.Int, index *uint256.Int) (MerkleProof[*uint256.Int], error) {
	if g.withdrawalTree == nil {
		return MerkleProof[*uint256.Int]{}, ErrNotInitialized
	}
	return g.withdrawalTree.merkleProofAt(ctx, hash, index)
}

// UpdatePubKeys replaces the UTXO observation predicate for future appends.
func (g *Grove) UpdatePubKeys(ctx context.Context, pubKeys []string) error {
	if err := g.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.lock.Release(1)
	if g.utxoTree == nil {
		return ErrNotInitialized
	}
	g.utxoTree.UpdatePubKeys(pubKeys)
	return nil
}

// UpdateAddresses replaces the withdrawal observation predicate for future
// appends.
func (g *Grove) UpdateAddresses(ctx context.Context, addresses []common.Address) error {
	if err := g.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.lock.Release(1)
	if g.withdrawalTree == nil {
		return ErrNotInitialized
	}
	g.withdrawalTree.UpdateAddresses(addresses)
	return nil
}

// padLeaves extends leaves to the next multiple of subTreeSize with empty
// leaves, so sub-tree roots used in zk proofs stay well-defined. An empty
// batch needs no padding.
func padLeaves[T any](h hasher.Hasher[T], leaves []Leaf[T], subTreeSize int) []Leaf[T] {
	if subTreeSize <= 1 || len(leaves)%subTreeSize == 0 {
		return leaves
	}
	padded := make([]Leaf[T], (len(leaves)/subTreeSize+1)*subTreeSize)
	copy(padded, leaves)
	for i := len(leaves); i < len(padded); i++ {
		padded[i] = Leaf[T]{Hash: h.Zero()}
	}
	return padded
}

// over reports whether appending count leaves at index exceeds max.
func over(index *uint256.Int, count int, max *uint256.Int) bool {
	return new(uint256.Int).AddUint64(index, uint64(count)).Gt(max)
}
