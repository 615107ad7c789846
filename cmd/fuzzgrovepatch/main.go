package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	grove "github.com/zkopru-network/go-grove"
	"github.com/zkopru-network/go-grove/store"
)

// Applies random patches forever, checking after each one that the dry-run
// prediction matches the committed state. Panics on the first divergence.
func main() {
	config := grove.DefaultConfig()
	config.UtxoTreeDepth = 16
	config.WithdrawalTreeDepth = 16
	config.NullifierTreeDepth = 16
	config.UtxoSubTreeSize = 8
	config.WithdrawalSubTreeSize = 8
	config.FullSync = true

	db := store.NewMemory()
	forest, err := grove.NewGrove(db, config)
	if err != nil {
		panic(err)
	}
	ctx := context.Background()
	if err := forest.Init(ctx); err != nil {
		panic(err)
	}

	for i := 0; ; i++ {
		patch := randomPatch(i)
		dry, err := forest.DryPatch(ctx, patch)
		if err != nil {
			panic(err)
		}

		tx := db.Transaction()
		if err := forest.ApplyGrovePatch(ctx, tx, patch); err != nil {
			panic(err)
		}
		if err := tx.Commit(ctx); err != nil {
			panic(err)
		}

		snapshot, err := forest.GetSnapshot(ctx)
		if err != nil {
			panic(err)
		}
		if dry.UtxoTreeRoot.Cmp(snapshot.UtxoTreeRoot) != 0 {
			panic(fmt.Sprintf("patch %d: dry utxo root %s != applied %s",
				i, dry.UtxoTreeRoot, snapshot.UtxoTreeRoot))
		}
		if !dry.WithdrawalTreeRoot.Eq(snapshot.WithdrawalTreeRoot) {
			panic(fmt.Sprintf("patch %d: dry withdrawal root diverged", i))
		}
		if !dry.NullifierTreeRoot.Eq(snapshot.NullifierTreeRoot) {
			panic(fmt.Sprintf("patch %d: dry nullifier root diverged", i))
		}
		if i%100 == 0 {
			fmt.Printf("%d patches applied, utxo index %s\n", i, snapshot.UtxoTreeIndex.Dec())
		}
	}
}

func randomPatch(seed int) grove.GrovePatch {
	patch := grove.GrovePatch{}
	n := seed%5 + 1
	for i := 0; i < n; i++ {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}
		patch.Utxos = append(patch.Utxos, grove.Leaf[*big.Int]{Hash: new(big.Int).SetBytes(buf)})
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}
		patch.Withdrawals = append(patch.Withdrawals, grove.Leaf[*uint256.Int]{Hash: new(uint256.Int).SetBytes(buf)})
		if _, err := rand.Read(buf[:2]); err != nil {
			panic(err)
		}
		patch.Nullifiers = append(patch.Nullifiers, new(uint256.Int).SetBytes(buf[:2]))
	}
	return patch
}
