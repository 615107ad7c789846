// Package sql implements the grove store contract over a SQL database via
// sqlx. Statements use PostgreSQL-style placeholders and ON CONFLICT
// upserts; callers supply the driver and connection.
package sql

import (
	"context"
	dbsql "database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/zkopru-network/go-grove/store"
)

const (
	upsertLightTreeStmt = `INSERT INTO light_tree (species, root, leaf_index, siblings, start_leaf, end_leaf) ` +
		`VALUES ($1, $2, $3, $4, $5, $6) ` +
		`ON CONFLICT (species) DO UPDATE SET root = $2, leaf_index = $3, siblings = $4, start_leaf = $5, end_leaf = $6`

	upsertTreeNodeStmt = `INSERT INTO tree_node (tree_id, node_index, value) VALUES ($1, $2, $3) ` +
		`ON CONFLICT (tree_id, node_index) DO UPDATE SET value = $3`

	upsertUtxoStmt = `INSERT INTO utxo (hash, leaf_index) VALUES ($1, $2) ` +
		`ON CONFLICT (hash) DO UPDATE SET leaf_index = $2`

	ensureUtxoStmt = `INSERT INTO utxo (hash, leaf_index) VALUES ($1, NULL) ON CONFLICT (hash) DO NOTHING`

	ensureWithdrawalStmt = `INSERT INTO withdrawal (withdrawal_hash, leaf_index) VALUES ($1, NULL) ` +
		`ON CONFLICT (withdrawal_hash) DO NOTHING`

	upsertWithdrawalStmt = `INSERT INTO withdrawal (withdrawal_hash, leaf_index) VALUES ($1, $2) ` +
		`ON CONFLICT (withdrawal_hash) DO UPDATE SET leaf_index = $2`

	upsertBootstrapStmt = `INSERT INTO bootstrap (block_hash, utxo_bootstrap, withdrawal_bootstrap) ` +
		`VALUES ($1, $2, $3) ` +
		`ON CONFLICT (block_hash) DO UPDATE SET utxo_bootstrap = $2, withdrawal_bootstrap = $3`

	insertBootstrapStmt = `INSERT INTO bootstrap (block_hash, utxo_bootstrap, withdrawal_bootstrap) ` +
		`VALUES (NULL, $1, $2)`

	ensureBlockStmt = `INSERT INTO block (hash) VALUES ($1) ON CONFLICT (hash) DO NOTHING`
)

// probeStmts verify that every required table is present.
var probeStmts = []string{
	`SELECT species, root, leaf_index, siblings, start_leaf, end_leaf FROM light_tree LIMIT 1`,
	`SELECT tree_id, node_index, value FROM tree_node LIMIT 1`,
	`SELECT hash, leaf_index FROM utxo LIMIT 1`,
	`SELECT withdrawal_hash, leaf_index FROM withdrawal LIMIT 1`,
	`SELECT block_hash, utxo_bootstrap, withdrawal_bootstrap FROM bootstrap LIMIT 1`,
	`SELECT hash FROM block LIMIT 1`,
}

type lightTreeItem struct {
	Species  string `db:"species"`
	Root     string `db:"root"`
	Index    string `db:"leaf_index"`
	Siblings string `db:"siblings"`
	Start    string `db:"start_leaf"`
	End      string `db:"end_leaf"`
}

type treeNodeItem struct {
	TreeID    string `db:"tree_id"`
	NodeIndex string `db:"node_index"`
	Value     string `db:"value"`
}

type leafItem struct {
	Hash  string  `db:"hash"`
	Index *string `db:"leaf_index"`
}

type bootstrapItem struct {
	BlockHash           *string `db:"block_hash"`
	UtxoBootstrap       string  `db:"utxo_bootstrap"`
	WithdrawalBootstrap string  `db:"withdrawal_bootstrap"`
}

// Storage implements store.DB over a sqlx handle.
type Storage struct {
	db *sqlx.DB
}

// NewStorage wraps db after probing that the grove schema is present.
func NewStorage(ctx context.Context, db *sqlx.DB) (*Storage, error) {
	for _, stmt := range probeStmts {
		rows, err := db.QueryxContext(ctx, stmt)
		if err != nil {
			return nil, errors.Wrap(store.ErrSchemaMismatch, err.Error())
		}
		_ = rows.Close()
	}
	return &Storage{db: db}, nil
}

func (s *Storage) LightTree(ctx context.Context, species store.Species) (*store.LightTree, error) {
	var item lightTreeItem
	err := s.db.GetContext(ctx, &item,
		`SELECT species, root, leaf_index, siblings, start_leaf, end_leaf FROM light_tree WHERE species = $1`,
		string(species))
	if err == dbsql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &store.LightTree{
		Species:  store.Species(item.Species),
		Root:     item.Root,
		Index:    item.Index,
		Siblings: item.Siblings,
		Start:    item.Start,
		End:      item.End,
	}, nil
}

func (s *Storage) TreeNode(ctx context.Context, treeID, nodeIndex string) (*store.TreeNode, error) {
	var item treeNodeItem
	err := s.db.GetContext(ctx, &item,
		`SELECT tree_id, node_index, value FROM tree_node WHERE tree_id = $1 AND node_index = $2`,
		treeID, nodeIndex)
	if err == dbsql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &store.TreeNode{TreeID: item.TreeID, NodeIndex: item.NodeIndex, Value: item.Value}, nil
}

func (s *Storage) TreeNodes(ctx context.Context, treeID string, nodeIndices []string) ([]store.TreeNode, error) {
	if len(nodeIndices) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT tree_id, node_index, value FROM tree_node WHERE tree_id = ? AND node_index IN (?)`,
		treeID, nodeIndices)
	if err != nil {
		return nil, err
	}
	var items []treeNodeItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	nodes := make([]store.TreeNode, len(items))
	for i, item := range items {
		nodes[i] = store.TreeNode{TreeID: item.TreeID, NodeIndex: item.NodeIndex, Value: item.Value}
	}
	return nodes, nil
}

func (s *Storage) Utxo(ctx context.Context, hash string) (*store.Utxo, error) {
	var item leafItem
	err := s.db.GetContext(ctx, &item, `SELECT hash, leaf_index FROM utxo WHERE hash = $1`, hash)
	if err == dbsql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &store.Utxo{Hash: item.Hash, Index: item.Index}, nil
}

func (s *Storage) Withdrawal(ctx context.Context, hash string) (*store.Withdrawal, error) {
	var item leafItem
	err := s.db.GetContext(ctx, &item,
		`SELECT withdrawal_hash AS hash, leaf_index FROM withdrawal WHERE withdrawal_hash = $1`, hash)
	if err == dbsql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &store.Withdrawal{Hash: item.Hash, Index: item.Index}, nil
}

func (s *Storage) Bootstrap(ctx context.Context, blockHash string) (*store.Bootstrap, error) {
	var item bootstrapItem
	err := s.db.GetContext(ctx, &item,
		`SELECT block_hash, utxo_bootstrap, withdrawal_bootstrap FROM bootstrap WHERE block_hash = $1`,
		blockHash)
	if err == dbsql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	row := &store.Bootstrap{
		UtxoBootstrap:       item.UtxoBootstrap,
		WithdrawalBootstrap: item.WithdrawalBootstrap,
	}
	if item.BlockHash != nil {
		row.BlockHash = *item.BlockHash
	}
	return row, nil
}

func (s *Storage) Transaction() store.Tx {
	return &storageTx{storage: s}
}

type stagedStmt struct {
	query string
	args  []interface{}
}

// storageTx buffers statements and runs them inside one SQL transaction.
type storageTx struct {
	storage *Storage
	stmts   []stagedStmt
}

func (tx *storageTx) stage(query string, args ...interface{}) {
	tx.stmts = append(tx.stmts, stagedStmt{query: query, args: args})
}

func (tx *storageTx) UpsertLightTree(row store.LightTree) {
	tx.stage(upsertLightTreeStmt, string(row.Species), row.Root, row.Index, row.Siblings, row.Start, row.End)
}

func (tx *storageTx) PutTreeNode(node store.TreeNode) {
	tx.stage(upsertTreeNodeStmt, node.TreeID, node.NodeIndex, node.Value)
}

func (tx *storageTx) EnsureUtxo(hash string) {
	tx.stage(ensureUtxoStmt, hash)
}

func (tx *storageTx) EnsureWithdrawal(hash string) {
	tx.stage(ensureWithdrawalStmt, hash)
}

func (tx *storageTx) UpsertUtxoIndex(hash, index string) {
	tx.stage(upsertUtxoStmt, hash, index)
}

func (tx *storageTx) UpsertWithdrawalIndex(hash, index string) {
	tx.stage(upsertWithdrawalStmt, hash, index)
}

func (tx *storageTx) PutBootstrap(row store.Bootstrap) {
	if row.BlockHash == "" {
		tx.stage(insertBootstrapStmt, row.UtxoBootstrap, row.WithdrawalBootstrap)
		return
	}
	tx.stage(upsertBootstrapStmt, row.BlockHash, row.UtxoBootstrap, row.WithdrawalBootstrap)
}

func (tx *storageTx) EnsureBlock(hash string) {
	tx.stage(ensureBlockStmt, hash)
}

func (tx *storageTx) Commit(ctx context.Context) error {
	sqlTx, err := tx.storage.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range tx.stmts {
		if _, err := sqlTx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			_ = sqlTx.Rollback()
			return err
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return err
	}
	tx.stmts = nil
	return nil
}
