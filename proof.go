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
	"github.com/holiman/uint256"

	"github.com/zkopru-network/go-grove/hasher"
)

// MerkleProof attests that Leaf sits at Index in the tree committed to by
// Root. Siblings holds one node per level, leaf level first.
type MerkleProof[T any] struct {
	Root     T
	Index    *uint256.Int
	Leaf     T
	Siblings []T
}

// VerifyProof folds Leaf up through the siblings, picking the pairing side
// at level k from bit k of Index, and compares the result with Root.
func VerifyProof[T any](h hasher.Hasher[T], proof MerkleProof[T]) bool {
	cur := proof.Leaf
	for k, sib := range proof.Siblings {
		if bitOf(proof.Index, k) == 1 {
			cur = h.ParentOf(sib, cur)
		} else {
			cur = h.ParentOf(cur, sib)
		}
	}
	return h.Equal(cur, proof.Root)
}

// StartingLeafProof checks that the leaf at index is empty and that every
// subtree to its right still is: wherever bit k of index is 0, the sibling
// at level k must be the empty-subtree root. A frontier that satisfies it
// is a valid resume point for a tree with index leaves.
func StartingLeafProof[T any](h hasher.Hasher[T], root T, index *uint256.Int, siblings []T) bool {
	pre := hasher.PreHash(h, len(siblings))
	for k := range siblings {
		if bitOf(index, k) == 0 && !h.Equal(siblings[k], pre[k]) {
			return false
		}
	}
	return VerifyProof(h, MerkleProof[T]{
		Root:     root,
		Index:    index,
		Leaf:     h.Zero(),
		Siblings: siblings,
	})
}

// bitOf returns bit k of v, counting from the least significant bit.
func bitOf(v *uint256.Int, k int) uint64 {
	if v == nil || k < 0 || k > 255 {
		return 0
	}
	return (v[k/64] >> (k % 64)) & 1
}
