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

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/zkopru-network/go-grove/hasher"
	"github.com/zkopru-network/go-grove/store"
)

// Note carries the plaintext a leaf needs for the retention decision.
type Note struct {
	// PubKey is the zk address of the note owner. The UTXO tree keeps the
	// Merkle path of any leaf whose owner is observed.
	PubKey string

	// To is the withdrawal recipient. The Withdrawal tree keeps the path
	// of any leaf destined for an observed address.
	To common.Address
}

// Leaf is one entry of an append batch. ShouldTrack forces retention
// regardless of the observation policy, as a wallet does for leaves it
// minted itself.
type Leaf[T any] struct {
	Hash        T
	Note        *Note
	ShouldTrack bool
}

// TreeMetadata is the in-memory image of a species' persisted row.
type TreeMetadata[T any] struct {
	Species  store.Species
	Root     T
	Index    *uint256.Int
	Siblings []T
	Start    *uint256.Int
	End      *uint256.Int
}

// LightRollupTree is the append-only frontier engine. It maintains the
// root, the next free leaf index, and one pending sibling per level, so a
// tree of 2^depth leaves costs O(depth) state.
//
// The frontier invariant: siblings[k] is the completed left subtree at
// level k still waiting for its right counterpart when bit k of Index is
// 1, and the empty-subtree root otherwise. The second half is what lets
// the stored frontier double as a starting-leaf proof.
type LightRollupTree[T any] struct {
	species     store.Species
	depth       int
	hasher      hasher.Hasher[T]
	preHash     []T
	db          store.DB
	cache       *TreeCache
	forceUpdate bool

	// observed decides retention for leaves that carry a note.
	observed func(*Note) bool

	metadata TreeMetadata[T]
}

func newLightRollupTree[T any](species store.Species, depth int, h hasher.Hasher[T], db store.DB, cache *TreeCache, forceUpdate bool, observed func(*Note) bool) *LightRollupTree[T] {
	pre := hasher.PreHash(h, depth)
	siblings := make([]T, depth)
	copy(siblings, pre[:depth])
	return &LightRollupTree[T]{
		species:     species,
		depth:       depth,
		hasher:      h,
		preHash:     pre,
		db:          db,
		cache:       cache,
		forceUpdate: forceUpdate,
		observed:    observed,
		metadata: TreeMetadata[T]{
			Species:  species,
			Root:     pre[depth],
			Index:    new(uint256.Int),
			Siblings: siblings,
			Start:    new(uint256.Int),
			End:      new(uint256.Int),
		},
	}
}

// restore rehydrates the in-memory frontier from a persisted metadata row.
func (t *LightRollupTree[T]) restore(row *store.LightTree) error {
	root, err := t.hasher.Decode(row.Root)
	if err != nil {
		return err
	}
	index, err := decodeIndex(row.Index)
	if err != nil {
		return err
	}
	siblings, err := decodeSiblings(t.hasher, row.Siblings)
	if err != nil {
		return err
	}
	if len(siblings) != t.depth {
		return errors.Wrapf(ErrInvalidEncoding, "%s tree: %d siblings for depth %d", t.species, len(siblings), t.depth)
	}
	start, err := decodeIndex(row.Start)
	if err != nil {
		return err
	}
	end, err := decodeIndex(row.End)
	if err != nil {
		return err
	}
	t.metadata = TreeMetadata[T]{
		Species:  t.species,
		Root:     root,
		Index:    index,
		Siblings: siblings,
		Start:    start,
		End:      end,
	}
	return nil
}

// adopt replaces the frontier wholesale, as bootstrap does after verifying
// a starting-leaf proof.
func (t *LightRollupTree[T]) adopt(root T, index *uint256.Int, siblings []T) {
	cloned := make([]T, len(siblings))
	copy(cloned, siblings)
	t.metadata = TreeMetadata[T]{
		Species:  t.species,
		Root:     root,
		Index:    index.Clone(),
		Siblings: cloned,
		Start:    index.Clone(),
		End:      index.Clone(),
	}
}

// metadataRow encodes the in-memory metadata as its persisted row.
func (t *LightRollupTree[T]) metadataRow() (store.LightTree, error) {
	siblings, err := encodeSiblings(t.hasher, t.metadata.Siblings)
	if err != nil {
		return store.LightTree{}, err
	}
	return store.LightTree{
		Species:  t.species,
		Root:     t.hasher.Encode(t.metadata.Root),
		Index:    encodeIndex(t.metadata.Index),
		Siblings: siblings,
		Start:    encodeIndex(t.metadata.Start),
		End:      encodeIndex(t.metadata.End),
	}, nil
}

func (t *LightRollupTree[T]) treeID() string { return string(t.species) }

// Root returns the current committed root.
func (t *LightRollupTree[T]) Root() T { return t.metadata.Root }

// LatestLeafIndex returns the next free leaf index, which equals the
// current leaf count.
func (t *LightRollupTree[T]) LatestLeafIndex() *uint256.Int {
	return t.metadata.Index.Clone()
}

// Siblings returns a copy of the current frontier.
func (t *LightRollupTree[T]) Siblings() []T {
	siblings := make([]T, t.depth)
	copy(siblings, t.metadata.Siblings)
	return siblings
}

// MaxSize returns the leaf capacity, 2^depth.
func (t *LightRollupTree[T]) MaxSize() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), uint(t.depth))
}

// Append inserts leaves at the current index, staging retained nodes, leaf
// records and the updated metadata row into tx. The in-memory frontier
// moves with the staged state; a crash before the caller commits is healed
// by restoring from the last committed row.
func (t *LightRollupTree[T]) Append(ctx context.Context, tx store.Tx, leaves []Leaf[T]) error {
	final := new(uint256.Int).AddUint64(t.metadata.Index, uint64(len(leaves)))
	if final.Gt(t.MaxSize()) {
		return errors.Wrapf(ErrTreeFull, "%s tree: %s leaves over capacity %s",
			t.species, final.Dec(), t.MaxSize().Dec())
	}

	index := t.metadata.Index.Clone()
	siblings := make([]T, t.depth)
	copy(siblings, t.metadata.Siblings)
	root := t.metadata.Root

	for _, leaf := range leaves {
		track := leaf.ShouldTrack || (leaf.Note != nil && t.observed != nil && t.observed(leaf.Note))
		encoded := t.hasher.Encode(leaf.Hash)
		if track {
			if !t.forceUpdate {
				committed, found, err := t.committedLeaf(ctx, encoded)
				if err != nil {
					return err
				}
				if found && committed != nil {
					return errors.Wrapf(ErrLeafExists, "%s leaf %s already committed at index %s",
						t.species, encoded, *committed)
				}
			}
			t.cache.Observe(t.treeID(), t.depth, index)
			t.recordLeaf(tx, encoded, encodeIndex(index))
		}

		cur := leaf.Hash
		nodeIdx := leafNodeIndex(t.depth, index)
		// Only the levels up to the lowest zero bit of index change in
		// the frontier; the slots above it keep their values.
		carry := true
		for k := 0; k < t.depth; k++ {
			var sibling T
			var parent T
			if bitOf(index, k) == 1 {
				// Right child: the pending left subtree pairs up and
				// level k is whole again.
				sibling = siblings[k]
				parent = t.hasher.ParentOf(sibling, cur)
				if carry {
					siblings[k] = t.preHash[k]
				}
			} else {
				// Left child: park it and pair with an empty right
				// subtree for now.
				sibling = t.preHash[k]
				parent = t.hasher.ParentOf(cur, sibling)
				if carry {
					siblings[k] = cur
					carry = false
				}
			}
			t.cache.Keep(tx, t.treeID(), encodeIndex(nodeIdx), t.hasher.Encode(cur))
			t.cache.Keep(tx, t.treeID(), encodeIndex(siblingNodeIndex(nodeIdx)), t.hasher.Encode(sibling))
			cur = parent
			nodeIdx = parentNodeIndex(nodeIdx)
		}
		root = cur
		t.cache.Keep(tx, t.treeID(), "1", t.hasher.Encode(root))
		index = new(uint256.Int).AddUint64(index, 1)
	}

	encodedSiblings, err := encodeSiblings(t.hasher, siblings)
	if err != nil {
		return err
	}
	tx.UpsertLightTree(store.LightTree{
		Species:  t.species,
		Root:     t.hasher.Encode(root),
		Index:    encodeIndex(index),
		Siblings: encodedSiblings,
		Start:    encodeIndex(t.metadata.Start),
		End:      encodeIndex(index),
	})

	t.metadata.Root = root
	t.metadata.Index = index
	t.metadata.Siblings = siblings
	t.metadata.End = index
	return nil
}

// DryAppend runs the append computation against a scratch copy of the
// frontier and returns the prospective root and final index. No state, no
// transaction, no cache is touched.
func (t *LightRollupTree[T]) DryAppend(leaves []Leaf[T]) (T, *uint256.Int, error) {
	var zero T
	index := t.metadata.Index.Clone()
	final := new(uint256.Int).AddUint64(index, uint64(len(leaves)))
	if final.Gt(t.MaxSize()) {
		return zero, nil, errors.Wrapf(ErrTreeFull, "%s tree: %s leaves over capacity %s",
			t.species, final.Dec(), t.MaxSize().Dec())
	}

	siblings := make([]T, t.depth)
	copy(siblings, t.metadata.Siblings)
	root := t.metadata.Root

	for _, leaf := range leaves {
		cur := leaf.Hash
		carry := true
		for k := 0; k < t.depth; k++ {
			if bitOf(index, k) == 1 {
				cur = t.hasher.ParentOf(siblings[k], cur)
				if carry {
					siblings[k] = t.preHash[k]
				}
			} else {
				next := t.hasher.ParentOf(cur, t.preHash[k])
				if carry {
					siblings[k] = cur
					carry = false
				}
				cur = next
			}
		}
		root = cur
		index = new(uint256.Int).AddUint64(index, 1)
	}
	return root, index, nil
}

// MerkleProof reconstructs the inclusion proof of a committed leaf from
// the retained nodes. It reads only committed state and takes no lock.
func (t *LightRollupTree[T]) MerkleProof(ctx context.Context, hash T) (MerkleProof[T], error) {
	return t.merkleProofAt(ctx, hash, nil)
}

// merkleProofAt reconstructs a proof for hash; index overrides the leaf
// record lookup when non-nil.
func (t *LightRollupTree[T]) merkleProofAt(ctx context.Context, hash T, index *uint256.Int) (MerkleProof[T], error) {
	var none MerkleProof[T]
	encoded := t.hasher.Encode(hash)
	if index == nil {
		committed, found, err := t.committedLeaf(ctx, encoded)
		if err != nil {
			return none, err
		}
		if !found {
			return none, errors.Wrapf(ErrLeafNotFound, "%s leaf %s", t.species, encoded)
		}
		if committed == nil {
			return none, errors.Wrapf(ErrLeafNotCommitted, "%s leaf %s", t.species, encoded)
		}
		index, err = decodeIndex(*committed)
		if err != nil {
			return none, err
		}
	}

	siblings := make([]T, t.depth)
	copy(siblings, t.preHash[:t.depth])
	cached, err := t.cache.CachedSiblings(ctx, t.db, t.depth, t.treeID(), index)
	if err != nil {
		return none, err
	}
	for level, value := range cached {
		v, err := t.hasher.Decode(value)
		if err != nil {
			return none, err
		}
		siblings[level] = v
	}

	// The committed root comes from the persisted row, so a proof built
	// concurrently with an append never sees a torn frontier.
	row, err := t.db.LightTree(ctx, t.species)
	if err != nil {
		return none, err
	}
	root, err := t.hasher.Decode(row.Root)
	if err != nil {
		return none, err
	}

	proof := MerkleProof[T]{
		Root:     root,
		Index:    index,
		Leaf:     hash,
		Siblings: siblings,
	}
	if !VerifyProof(t.hasher, proof) {
		return none, errors.Wrapf(ErrProofUnavailable, "%s leaf %s at index %s",
			t.species, encoded, encodeIndex(index))
	}
	return proof, nil
}

// BootstrapProof exposes the current frontier as a starting-leaf proof, the
// payload a peer needs to resume from this tree's state.
func (t *LightRollupTree[T]) BootstrapProof() BootstrapProof[T] {
	return BootstrapProof[T]{
		Root:     t.metadata.Root,
		Index:    t.LatestLeafIndex(),
		Siblings: t.Siblings(),
	}
}

func (t *LightRollupTree[T]) recordLeaf(tx store.Tx, hash, index string) {
	switch t.species {
	case store.SpeciesUtxo:
		tx.UpsertUtxoIndex(hash, index)
	case store.SpeciesWithdrawal:
		tx.UpsertWithdrawalIndex(hash, index)
	}
}

// committedLeaf returns the committed index of a leaf record, a nil index
// for a known-but-uncommitted leaf, and found=false when no record exists.
func (t *LightRollupTree[T]) committedLeaf(ctx context.Context, hash string) (*string, bool, error) {
	switch t.species {
	case store.SpeciesUtxo:
		row, err := t.db.Utxo(ctx, hash)
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return row.Index, true, nil
	case store.SpeciesWithdrawal:
		row, err := t.db.Withdrawal(ctx, hash)
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return row.Index, true, nil
	}
	return nil, false, nil
}
