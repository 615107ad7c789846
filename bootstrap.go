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

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	dynssz "github.com/pk910/dynamic-ssz"
	"github.com/pkg/errors"
)

// BootstrapProof is the resume point of one tree: a frontier that must
// satisfy StartingLeafProof before it is adopted.
type BootstrapProof[T any] struct {
	Root     T
	Index    *uint256.Int
	Siblings []T
}

// BootstrapData is the payload a trusted peer serves to bootstrap a fresh
// grove.
type BootstrapData struct {
	// BlockHash names the block the frontiers were taken at, when known.
	BlockHash string

	UtxoProof       BootstrapProof[*big.Int]
	WithdrawalProof BootstrapProof[*uint256.Int]
}

// BootstrapProof exposes the grove's current frontiers as a bootstrap
// payload for peers. The block hash of the latest applied patch is the
// caller's to fill in.
func (g *Grove) BootstrapProof() (*BootstrapData, error) {
	if g.utxoTree == nil || g.withdrawalTree == nil {
		return nil, ErrNotInitialized
	}
	return &BootstrapData{
		UtxoProof:       g.utxoTree.BootstrapProof(),
		WithdrawalProof: g.withdrawalTree.BootstrapProof(),
	}, nil
}

// Wire form. Values travel as fixed 32-byte big-endian words; the siblings
// lists are depth-dependent, so they stay dynamic.
type wireBootstrapProof struct {
	Root     [32]byte
	Index    uint64
	Siblings [][32]byte `ssz-max:"256"`
}

type wireBootstrap struct {
	BlockHash  [32]byte
	Utxo       wireBootstrapProof
	Withdrawal wireBootstrapProof
}

var bootstrapCodec = dynssz.NewDynSsz(nil)

// EncodeBootstrap renders a bootstrap payload as SSZ bytes.
func EncodeBootstrap(data *BootstrapData) ([]byte, error) {
	utxo, err := wireProofOf(data.UtxoProof.Index, bigToWord(data.UtxoProof.Root), bigSiblings(data.UtxoProof.Siblings))
	if err != nil {
		return nil, err
	}
	withdrawal, err := wireProofOf(data.WithdrawalProof.Index, u256ToWord(data.WithdrawalProof.Root), u256Siblings(data.WithdrawalProof.Siblings))
	if err != nil {
		return nil, err
	}
	wire := wireBootstrap{
		BlockHash:  common.HexToHash(data.BlockHash),
		Utxo:       utxo,
		Withdrawal: withdrawal,
	}
	return bootstrapCodec.MarshalSSZ(&wire)
}

// DecodeBootstrap parses SSZ bytes back into a bootstrap payload. The
// proofs are not verified here; ApplyBootstrap does that.
func DecodeBootstrap(data []byte) (*BootstrapData, error) {
	var wire wireBootstrap
	if err := bootstrapCodec.UnmarshalSSZ(&wire, data); err != nil {
		return nil, errors.Wrap(ErrInvalidEncoding, err.Error())
	}
	out := &BootstrapData{
		UtxoProof: BootstrapProof[*big.Int]{
			Root:     new(big.Int).SetBytes(wire.Utxo.Root[:]),
			Index:    uint256.NewInt(wire.Utxo.Index),
			Siblings: make([]*big.Int, len(wire.Utxo.Siblings)),
		},
		WithdrawalProof: BootstrapProof[*uint256.Int]{
			Root:     new(uint256.Int).SetBytes(wire.Withdrawal.Root[:]),
			Index:    uint256.NewInt(wire.Withdrawal.Index),
			Siblings: make([]*uint256.Int, len(wire.Withdrawal.Siblings)),
		},
	}
	for i, s := range wire.Utxo.Siblings {
		out.UtxoProof.Siblings[i] = new(big.Int).SetBytes(s[:])
	}
	for i, s := range wire.Withdrawal.Siblings {
		out.WithdrawalProof.Siblings[i] = new(uint256.Int).SetBytes(s[:])
	}
	if wire.BlockHash != ([32]byte{}) {
		out.BlockHash = common.Hash(wire.BlockHash).Hex()
	}
	return out, nil
}

func wireProofOf(index *uint256.Int, root [32]byte, siblings [][32]byte) (wireBootstrapProof, error) {
	if index == nil || !index.IsUint64() {
		return wireBootstrapProof{}, errors.Wrap(ErrInvalidEncoding, "bootstrap index out of range")
	}
	return wireBootstrapProof{
		Root:     root,
		Index:    index.Uint64(),
		Siblings: siblings,
	}, nil
}

func bigToWord(v *big.Int) [32]byte {
	var word [32]byte
	v.FillBytes(word[:])
	return word
}

func u256ToWord(v *uint256.Int) [32]byte {
	return v.Bytes32()
}

func bigSiblings(siblings []*big.Int) [][32]byte {
	words := make([][32]byte, len(siblings))
	for i, s := range siblings {
		words[i] = bigToWord(s)
	}
	return words
}

func u256Siblings(siblings []*uint256.Int) [][32]byte {
	words := make([][32]byte, len(siblings))
	for i, s := range siblings {
		words[i] = u256ToWord(s)
	}
	return words
}
