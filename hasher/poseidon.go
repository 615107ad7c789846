package hasher

import (
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/iden3/go-iden3-crypto/utils"
	"github.com/pkg/errors"
)

// ErrNotInField is returned when a decoded value does not fit the BN254
// scalar field.
var ErrNotInField = errors.New("hasher: value is not a field element")

// PoseidonHasher hashes BN254 scalar-field elements with the Poseidon
// permutation. The UTXO tree commits with it, so its roots can be opened
// inside a zk circuit.
type PoseidonHasher struct{}

// NewPoseidon returns the Poseidon hasher.
func NewPoseidon() PoseidonHasher { return PoseidonHasher{} }

func (PoseidonHasher) ParentOf(left, right *big.Int) *big.Int {
	out, err := poseidon.Hash([]*big.Int{left, right})
	if err != nil {
		// Inputs are either hash outputs or values validated by Decode,
		// so they are always in the field.
		panic(err)
	}
	return out
}

func (PoseidonHasher) Zero() *big.Int { return new(big.Int) }

func (PoseidonHasher) Equal(a, b *big.Int) bool { return a.Cmp(b) == 0 }

// Encode renders the element as a base-10 string.
func (PoseidonHasher) Encode(v *big.Int) string { return v.String() }

func (PoseidonHasher) Decode(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Wrapf(ErrNotInField, "malformed decimal %q", s)
	}
	if v.Sign() < 0 || !utils.CheckBigIntInField(v) {
		return nil, errors.Wrapf(ErrNotInField, "%s exceeds the modulus", s)
	}
	return v, nil
}
