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
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zkopru-network/go-grove/hasher"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("grove: invalid configuration")

// Config holds the grove parameters. The hasher fields have no file form;
// LoadConfig fills them with the defaults.
type Config struct {
	UtxoTreeDepth       int `yaml:"utxoTreeDepth"`
	WithdrawalTreeDepth int `yaml:"withdrawalTreeDepth"`
	NullifierTreeDepth  int `yaml:"nullifierTreeDepth"`

	// Sub-tree sizes are the batching quanta: every applied patch is
	// padded to a multiple of them with empty leaves.
	UtxoSubTreeSize       int `yaml:"utxoSubTreeSize"`
	WithdrawalSubTreeSize int `yaml:"withdrawalSubTreeSize"`

	// FullSync keeps the nullifier tree and records a bootstrap row for
	// every applied patch.
	FullSync bool `yaml:"fullSync"`

	// ForceUpdate bypasses the idempotence guard on re-appending a leaf
	// that is already committed.
	ForceUpdate bool `yaml:"forceUpdate"`

	ZkAddressesToObserve []string `yaml:"zkAddressesToObserve"`
	AddressesToObserve   []string `yaml:"addressesToObserve"`

	UtxoHasher       hasher.Hasher[*big.Int]     `yaml:"-"`
	WithdrawalHasher hasher.Hasher[*uint256.Int] `yaml:"-"`
	NullifierHasher  hasher.Hasher[*uint256.Int] `yaml:"-"`
}

// DefaultConfig returns the mainnet parameters: 48-deep rollup trees
// batched in sub-trees of 32, and a 254-deep nullifier tree.
func DefaultConfig() Config {
	return Config{
		UtxoTreeDepth:         48,
		WithdrawalTreeDepth:   48,
		NullifierTreeDepth:    254,
		UtxoSubTreeSize:       32,
		WithdrawalSubTreeSize: 32,
		UtxoHasher:            hasher.NewPoseidon(),
		WithdrawalHasher:      hasher.NewKeccak(),
		NullifierHasher:       hasher.NewKeccak(),
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return Config{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// validate checks the parameters and fills nil hashers with defaults.
func (c *Config) validate() error {
	if c.UtxoTreeDepth <= 0 || c.UtxoTreeDepth > 255 {
		return errors.Wrapf(ErrInvalidConfig, "utxoTreeDepth %d", c.UtxoTreeDepth)
	}
	if c.WithdrawalTreeDepth <= 0 || c.WithdrawalTreeDepth > 255 {
		return errors.Wrapf(ErrInvalidConfig, "withdrawalTreeDepth %d", c.WithdrawalTreeDepth)
	}
	if c.NullifierTreeDepth <= 0 || c.NullifierTreeDepth > 255 {
		return errors.Wrapf(ErrInvalidConfig, "nullifierTreeDepth %d", c.NullifierTreeDepth)
	}
	if !powerOfTwo(c.UtxoSubTreeSize) {
		return errors.Wrapf(ErrInvalidConfig, "utxoSubTreeSize %d is not a power of two", c.UtxoSubTreeSize)
	}
	if !powerOfTwo(c.WithdrawalSubTreeSize) {
		return errors.Wrapf(ErrInvalidConfig, "withdrawalSubTreeSize %d is not a power of two", c.WithdrawalSubTreeSize)
	}
	for _, addr := range c.AddressesToObserve {
		if !common.IsHexAddress(addr) {
			return errors.Wrapf(ErrInvalidConfig, "address %q", addr)
		}
	}
	if c.UtxoHasher == nil {
		c.UtxoHasher = hasher.NewPoseidon()
	}
	if c.WithdrawalHasher == nil {
		c.WithdrawalHasher = hasher.NewKeccak()
	}
	if c.NullifierHasher == nil {
		c.NullifierHasher = hasher.NewKeccak()
	}
	return nil
}

// observedAddresses parses the configured withdrawal addresses.
func (c *Config) observedAddresses() ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(c.AddressesToObserve))
	for _, addr := range c.AddressesToObserve {
		if !common.IsHexAddress(addr) {
			return nil, errors.Wrapf(ErrInvalidConfig, "address %q", addr)
		}
		addresses = append(addresses, common.HexToAddress(addr))
	}
	return addresses, nil
}

func powerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
