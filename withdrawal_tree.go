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
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/zkopru-network/go-grove/hasher"
	"github.com/zkopru-network/go-grove/store"
)

// WithdrawalTree is the 256-bit integer species of the frontier engine.
// Its leaves are withdrawal hashes, and its observation policy retains the
// path of any leaf destined for an observed Ethereum address.
type WithdrawalTree struct {
	*LightRollupTree[*uint256.Int]

	mu       sync.RWMutex
	observed map[common.Address]struct{}
}

// NewWithdrawalTree builds an empty withdrawal tree at genesis state.
func NewWithdrawalTree(db store.DB, cache *TreeCache, depth int, h hasher.Hasher[*uint256.Int], forceUpdate bool, addresses []common.Address) *WithdrawalTree {
	w := &WithdrawalTree{observed: make(map[common.Address]struct{}, len(addresses))}
	for _, addr := range addresses {
		w.observed[addr] = struct{}{}
	}
	w.LightRollupTree = newLightRollupTree(store.SpeciesWithdrawal, depth, h, db, cache, forceUpdate, w.observes)
	return w
}

// WithdrawalTreeFrom rehydrates a withdrawal tree from its persisted
// metadata row.
func WithdrawalTreeFrom(db store.DB, row *store.LightTree, cache *TreeCache, depth int, h hasher.Hasher[*uint256.Int], forceUpdate bool, addresses []common.Address) (*WithdrawalTree, error) {
	w := NewWithdrawalTree(db, cache, depth, h, forceUpdate, addresses)
	if err := w.restore(row); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WithdrawalTree) observes(note *Note) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.observed[note.To]
	return ok
}

// UpdateAddresses replaces the observation predicate. Only future appends
// consult it; nodes already retained stay retained.
func (w *WithdrawalTree) UpdateAddresses(addresses []common.Address) {
	observed := make(map[common.Address]struct{}, len(addresses))
	for _, addr := range addresses {
		observed[addr] = struct{}{}
	}
	w.mu.Lock()
	w.observed = observed
	w.mu.Unlock()
}
