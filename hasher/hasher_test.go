package hasher

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

// keccak256 of 64 zero bytes, the level-1 empty-subtree root.
const keccakZeroPair = "0xad3228b676f7d3cd4284a5443f17f1962b36e491b30a40b2405849e597ba5fb5"

// circomlib test vector for poseidon(1, 2).
const poseidonOneTwo = "7853200120776062878684798364095072458815029376092732009249414926327459813530"

func TestKeccakZeroPair(t *testing.T) {
	t.Parallel()

	h := NewKeccak()
	parent := h.ParentOf(h.Zero(), h.Zero())
	if h.Encode(parent) != keccakZeroPair {
		t.Fatalf("keccak(0, 0) = %s, want %s", h.Encode(parent), keccakZeroPair)
	}
}

func TestPoseidonKnownVector(t *testing.T) {
	t.Parallel()

	h := NewPoseidon()
	parent := h.ParentOf(big.NewInt(1), big.NewInt(2))
	if h.Encode(parent) != poseidonOneTwo {
		t.Fatalf("poseidon(1, 2) = %s, want %s", h.Encode(parent), poseidonOneTwo)
	}
}

func TestPreHashChain(t *testing.T) {
	t.Parallel()

	h := NewKeccak()
	pre := PreHash[*uint256.Int](h, 8)
	if len(pre) != 9 {
		t.Fatalf("expected 9 pre-hashes, got %d", len(pre))
	}
	if !pre[0].IsZero() {
		t.Fatal("pre-hash 0 should be the zero element")
	}
	for k := 1; k <= 8; k++ {
		if !h.Equal(pre[k], h.ParentOf(pre[k-1], pre[k-1])) {
			t.Fatalf("pre-hash chain broken at level %d", k)
		}
	}
	if !h.Equal(GenesisRoot[*uint256.Int](h, 8), pre[8]) {
		t.Fatal("genesis root should be the deepest pre-hash")
	}
}

func TestPoseidonEncodeDecode(t *testing.T) {
	t.Parallel()

	h := NewPoseidon()
	v := h.ParentOf(big.NewInt(42), big.NewInt(43))
	decoded, err := h.Decode(h.Encode(v))
	if err != nil {
		t.Fatalf("decoding an encoded element: %v", err)
	}
	if !h.Equal(v, decoded) {
		t.Fatalf("roundtrip mismatch: %s != %s", h.Encode(v), h.Encode(decoded))
	}

	if _, err := h.Decode("not a number"); err == nil {
		t.Fatal("decoding garbage should fail")
	}
	// One above the BN254 modulus.
	overflow := "21888242871839275222246405745257275088548364400416034343698204186575808495618"
	if _, err := h.Decode(overflow); err == nil {
		t.Fatal("decoding an out-of-field value should fail")
	}
}

func TestKeccakEncodeDecode(t *testing.T) {
	t.Parallel()

	h := NewKeccak()
	v := h.ParentOf(uint256.NewInt(7), uint256.NewInt(8))
	decoded, err := h.Decode(h.Encode(v))
	if err != nil {
		t.Fatalf("decoding an encoded word: %v", err)
	}
	if !h.Equal(v, decoded) {
		t.Fatalf("roundtrip mismatch: %s != %s", h.Encode(v), h.Encode(decoded))
	}
	if _, err := h.Decode("0xzz"); err == nil {
		t.Fatal("decoding garbage should fail")
	}
}
