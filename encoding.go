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
	"encoding/json"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/zkopru-network/go-grove/hasher"
)

// ErrInvalidEncoding is returned when a persisted row cannot be decoded.
var ErrInvalidEncoding = errors.New("grove: invalid persisted encoding")

// encodeSiblings renders a frontier as a JSON array of the species'
// canonical value strings.
func encodeSiblings[T any](h hasher.Hasher[T], siblings []T) (string, error) {
	strs := make([]string, len(siblings))
	for i, s := range siblings {
		strs[i] = h.Encode(s)
	}
	raw, err := json.Marshal(strs)
	if err != nil {
		return "", errors.Wrap(ErrInvalidEncoding, err.Error())
	}
	return string(raw), nil
}

func decodeSiblings[T any](h hasher.Hasher[T], encoded string) ([]T, error) {
	var strs []string
	if err := json.Unmarshal([]byte(encoded), &strs); err != nil {
		return nil, errors.Wrap(ErrInvalidEncoding, err.Error())
	}
	siblings := make([]T, len(strs))
	for i, s := range strs {
		v, err := h.Decode(s)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidEncoding, "sibling %d: %v", i, err)
		}
		siblings[i] = v
	}
	return siblings, nil
}

// encodeIndex renders a leaf or node index as a base-10 string.
func encodeIndex(v *uint256.Int) string { return v.Dec() }

func decodeIndex(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidEncoding, "index %q: %v", s, err)
	}
	return v, nil
}
