package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"runtime/pprof"
	"time"

	"github.com/holiman/uint256"

	grove "github.com/zkopru-network/go-grove"
	"github.com/zkopru-network/go-grove/hasher"
	"github.com/zkopru-network/go-grove/store"
)

func main() {
	benchmarkApplyPatches()
}

func benchmarkApplyPatches() {
	f, _ := os.Create("cpu.prof")
	g, _ := os.Create("mem.prof")
	_ = pprof.StartCPUProfile(f)
	defer pprof.StopCPUProfile()
	defer func() { _ = pprof.WriteHeapProfile(g) }()

	// Patches of one sub-tree each, applied back to back.
	patches := 200
	subTree := 32

	config := grove.DefaultConfig()
	config.UtxoTreeDepth = 32
	config.WithdrawalTreeDepth = 32
	config.NullifierTreeDepth = 32
	config.UtxoSubTreeSize = subTree
	config.WithdrawalSubTreeSize = subTree
	config.FullSync = true

	for round := 0; round < 4; round++ {
		db := store.NewMemory()
		forest, err := grove.NewGrove(db, config)
		if err != nil {
			panic(err)
		}
		ctx := context.Background()
		if err := forest.Init(ctx); err != nil {
			panic(err)
		}

		start := time.Now()
		for i := 0; i < patches; i++ {
			patch := randomPatch(subTree)
			tx := db.Transaction()
			if err := forest.ApplyGrovePatch(ctx, tx, patch); err != nil {
				panic(err)
			}
			if err := tx.Commit(ctx); err != nil {
				panic(err)
			}
		}
		elapsed := time.Since(start)
		leaves := patches * subTree
		fmt.Printf("round %d: %d patches (%d leaves) in %v, %.1f leaves/s\n",
			round, patches, leaves, elapsed, float64(leaves)/elapsed.Seconds())
	}
}

func randomPatch(subTree int) grove.GrovePatch {
	modulus, _ := new(big.Int).SetString(
		"21888242871839275222246405745257275088548364400416034343698204186575808495617", 10)

	patch := grove.GrovePatch{}
	for i := 0; i < subTree; i++ {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}
		v := new(big.Int).SetBytes(buf)
		v.Mod(v, modulus)
		patch.Utxos = append(patch.Utxos, grove.Leaf[*big.Int]{Hash: v})

		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}
		w := hasher.NewKeccak()
		patch.Withdrawals = append(patch.Withdrawals, grove.Leaf[*uint256.Int]{
			Hash: w.ParentOf(new(uint256.Int).SetBytes(buf), new(uint256.Int)),
		})

		if _, err := rand.Read(buf[:4]); err != nil {
			panic(err)
		}
		patch.Nullifiers = append(patch.Nullifiers, new(uint256.Int).SetBytes(buf[:4]))
	}
	return patch
}
