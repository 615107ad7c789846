package store

import (
	"context"
	"sync"
)

// Memory is an in-memory DB. Light clients run on it, and it is the test
// double for every backend-agnostic test in this module.
type Memory struct {
	mu         sync.RWMutex
	lightTrees map[Species]LightTree
	treeNodes  map[string]map[string]string // treeID -> nodeIndex -> value
	utxos      map[string]Utxo
	withdrawal map[string]Withdrawal
	bootstraps map[string]Bootstrap // keyed by block hash
	unkeyed    []Bootstrap
	blocks     map[string]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		lightTrees: make(map[Species]LightTree),
		treeNodes:  make(map[string]map[string]string),
		utxos:      make(map[string]Utxo),
		withdrawal: make(map[string]Withdrawal),
		bootstraps: make(map[string]Bootstrap),
		blocks:     make(map[string]struct{}),
	}
}

func (m *Memory) LightTree(_ context.Context, species Species) (*LightTree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.lightTrees[species]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (m *Memory) TreeNode(_ context.Context, treeID, nodeIndex string) (*TreeNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.treeNodes[treeID][nodeIndex]
	if !ok {
		return nil, ErrNotFound
	}
	return &TreeNode{TreeID: treeID, NodeIndex: nodeIndex, Value: value}, nil
}

func (m *Memory) TreeNodes(_ context.Context, treeID string, nodeIndices []string) ([]TreeNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var nodes []TreeNode
	for _, idx := range nodeIndices {
		if value, ok := m.treeNodes[treeID][idx]; ok {
			nodes = append(nodes, TreeNode{TreeID: treeID, NodeIndex: idx, Value: value})
		}
	}
	return nodes, nil
}

func (m *Memory) Utxo(_ context.Context, hash string) (*Utxo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.utxos[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (m *Memory) Withdrawal(_ context.Context, hash string) (*Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.withdrawal[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (m *Memory) Bootstrap(_ context.Context, blockHash string) (*Bootstrap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.bootstraps[blockHash]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (m *Memory) Transaction() Tx {
	return &memoryTx{db: m}
}

// memoryTx stages closures and replays them under the write lock on Commit.
type memoryTx struct {
	db  *Memory
	ops []func(*Memory)
}

func (tx *memoryTx) UpsertLightTree(row LightTree) {
	tx.ops = append(tx.ops, func(m *Memory) {
		m.lightTrees[row.Species] = row
	})
}

func (tx *memoryTx) PutTreeNode(node TreeNode) {
	tx.ops = append(tx.ops, func(m *Memory) {
		nodes, ok := m.treeNodes[node.TreeID]
		if !ok {
			nodes = make(map[string]string)
			m.treeNodes[node.TreeID] = nodes
		}
		nodes[node.NodeIndex] = node.Value
	})
}

func (tx *memoryTx) EnsureUtxo(hash string) {
	tx.ops = append(tx.ops, func(m *Memory) {
		if _, ok := m.utxos[hash]; !ok {
			m.utxos[hash] = Utxo{Hash: hash}
		}
	})
}

func (tx *memoryTx) EnsureWithdrawal(hash string) {
	tx.ops = append(tx.ops, func(m *Memory) {
		if _, ok := m.withdrawal[hash]; !ok {
			m.withdrawal[hash] = Withdrawal{Hash: hash}
		}
	})
}

func (tx *memoryTx) UpsertUtxoIndex(hash, index string) {
	tx.ops = append(tx.ops, func(m *Memory) {
		idx := index
		m.utxos[hash] = Utxo{Hash: hash, Index: &idx}
	})
}

func (tx *memoryTx) UpsertWithdrawalIndex(hash, index string) {
	tx.ops = append(tx.ops, func(m *Memory) {
		idx := index
		m.withdrawal[hash] = Withdrawal{Hash: hash, Index: &idx}
	})
}

func (tx *memoryTx) PutBootstrap(row Bootstrap) {
	tx.ops = append(tx.ops, func(m *Memory) {
		if row.BlockHash == "" {
			m.unkeyed = append(m.unkeyed, row)
			return
		}
		m.bootstraps[row.BlockHash] = row
	})
}

func (tx *memoryTx) EnsureBlock(hash string) {
	tx.ops = append(tx.ops, func(m *Memory) {
		m.blocks[hash] = struct{}{}
	})
}

func (tx *memoryTx) Commit(_ context.Context) error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for _, op := range tx.ops {
		op(tx.db)
	}
	tx.ops = nil
	return nil
}
