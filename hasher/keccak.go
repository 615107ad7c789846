package hasher

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// KeccakHasher hashes 256-bit words with Keccak256 over the big-endian
// concatenation of both children. The Withdrawal and Nullifier trees commit
// with it, matching the on-chain verifier.
type KeccakHasher struct{}

// NewKeccak returns the Keccak256 hasher.
func NewKeccak() KeccakHasher { return KeccakHasher{} }

func (KeccakHasher) ParentOf(left, right *uint256.Int) *uint256.Int {
	lb := left.Bytes32()
	rb := right.Bytes32()
	return new(uint256.Int).SetBytes(crypto.Keccak256(lb[:], rb[:]))
}

func (KeccakHasher) Zero() *uint256.Int { return new(uint256.Int) }

func (KeccakHasher) Equal(a, b *uint256.Int) bool { return a.Eq(b) }

// Encode renders the word as minimal 0x-prefixed hex.
func (KeccakHasher) Encode(v *uint256.Int) string { return v.Hex() }

func (KeccakHasher) Decode(s string) (*uint256.Int, error) {
	v, err := uint256.FromHex(s)
	if err != nil {
		return nil, errors.Wrapf(err, "hasher: malformed hex %q", s)
	}
	return v, nil
}
