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
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	raw := `utxoTreeDepth: 31
utxoSubTreeSize: 16
fullSync: true
zkAddressesToObserve:
  - zk-alice
addressesToObserve:
  - "0x9fB29AAc15b9A4B7F17c3385939b007540f4d791"
`
	path := filepath.Join(t.TempDir(), "grove.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if config.UtxoTreeDepth != 31 {
		t.Fatalf("utxoTreeDepth = %d, want 31", config.UtxoTreeDepth)
	}
	if config.UtxoSubTreeSize != 16 {
		t.Fatalf("utxoSubTreeSize = %d, want 16", config.UtxoSubTreeSize)
	}
	// Omitted fields keep the defaults.
	if config.WithdrawalTreeDepth != 48 || config.NullifierTreeDepth != 254 {
		t.Fatal("omitted depths should keep their defaults")
	}
	if !config.FullSync {
		t.Fatal("fullSync should be set")
	}
	if config.UtxoHasher == nil || config.WithdrawalHasher == nil || config.NullifierHasher == nil {
		t.Fatal("hashers should be defaulted")
	}
	addresses, err := config.observedAddresses()
	if err != nil {
		t.Fatalf("parsing addresses: %v", err)
	}
	if len(addresses) != 1 {
		t.Fatalf("expected one observed address, got %d", len(addresses))
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero depth", func(c *Config) { c.UtxoTreeDepth = 0 }},
		{"excessive depth", func(c *Config) { c.WithdrawalTreeDepth = 300 }},
		{"non power of two quantum", func(c *Config) { c.UtxoSubTreeSize = 12 }},
		{"zero quantum", func(c *Config) { c.WithdrawalSubTreeSize = 0 }},
		{"bad address", func(c *Config) { c.AddressesToObserve = []string{"not-an-address"} }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			config := DefaultConfig()
			tc.mutate(&config)
			if err := config.validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	if err := config.validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
