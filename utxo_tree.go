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
	"math/big"
	"sync"

	"github.com/zkopru-network/go-grove/hasher"
	"github.com/zkopru-network/go-grove/store"
)

// UtxoTree is the prime-field species of the frontier engine. Its leaves
// are note commitments, and its observation policy retains the path of any
// leaf owned by an observed zk address.
type UtxoTree struct {
	*LightRollupTree[*big.Int]

	mu       sync.RWMutex
	observed map[string]struct{}
}

// NewUtxoTree builds an empty UTXO tree at genesis state.
func NewUtxoTree(db store.DB, cache *TreeCache, depth int, h hasher.Hasher[*big.Int], forceUpdate bool, pubKeys []string) *UtxoTree {
	u := &UtxoTree{observed: make(map[string]struct{}, len(pubKeys))}
	for _, pk := range pubKeys {
		u.observed[pk] = struct{}{}
	}
	u.LightRollupTree = newLightRollupTree(store.SpeciesUtxo, depth, h, db, cache, forceUpdate, u.observes)
	return u
}

// UtxoTreeFrom rehydrates a UTXO tree from its persisted metadata row.
func UtxoTreeFrom(db store.DB, row *store.LightTree, cache *TreeCache, depth int, h hasher.Hasher[*big.Int], forceUpdate bool, pubKeys []string) (*UtxoTree, error) {
	u := NewUtxoTree(db, cache, depth, h, forceUpdate, pubKeys)
	if err := u.restore(row); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *UtxoTree) observes(note *Note) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.observed[note.PubKey]
	return ok
}

// UpdatePubKeys replaces the observation predicate. Only future appends
// consult it; nodes already retained stay retained.
func (u *UtxoTree) UpdatePubKeys(pubKeys []string) {
	observed := make(map[string]struct{}, len(pubKeys))
	for _, pk := range pubKeys {
		observed[pk] = struct{}{}
	}
	u.mu.Lock()
	u.observed = observed
	u.mu.Unlock()
}
