// Package bloom implements the approximate-membership Bloom filter used by
// the generic-variant final voter to encode "which size >= k subsets of
// voters voted yes" without revealing the subsets themselves.
//
// It mirrors the sizing formula and insertion scheme of the protocol's
// original implementation, which used MurmurHash3 over a little-endian
// byte encoding of each inserted item.
package bloom

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"

	"github.com/spaolacci/murmur3"
)

// Filter is a fixed-size bit array tested with HashCount independent
// MurmurHash3 instances (one per seed 0..HashCount-1). It has no false
// negatives; its false-positive rate is fixed at construction via the
// expected element count E (New targets approximately 1%).
type Filter struct {
	size      uint64
	hashCount uint64
	bits      []byte // little-endian bit-packed
}

// New sizes a filter for approximately a 1% false-positive rate when
// populated with up to expectedElements entries.
//
//	m = ceil(-E * ln(0.01) / ln(2)^2)
//	h = ceil((m / E) * ln(2))
func New(expectedElements uint64) *Filter {
	if expectedElements == 0 {
		expectedElements = 1
	}
	e := float64(expectedElements)
	m := uint64(math.Ceil(-e * math.Log(0.01) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 1
	}
	h := uint64(math.Ceil((float64(m) / e) * math.Ln2))
	if h == 0 {
		h = 1
	}
	return &Filter{
		size:      m,
		hashCount: h,
		bits:      make([]byte, (m+7)/8),
	}
}

// Add inserts a 256-bit XOR fingerprint into the filter.
func (f *Filter) Add(x *big.Int) {
	data := toBytesLE(x)
	for i := uint64(0); i < f.hashCount; i++ {
		idx := f.index(data, i)
		f.bits[idx/8] |= 1 << (idx % 8)
	}
}

// Check reports whether x might be a member. False positives are possible;
// false negatives never are.
func (f *Filter) Check(x *big.Int) bool {
	data := toBytesLE(x)
	for i := uint64(0); i < f.hashCount; i++ {
		idx := f.index(data, i)
		if f.bits[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

func (f *Filter) index(data []byte, seed uint64) uint64 {
	h := murmur3.Sum32WithSeed(data, uint32(seed))
	return uint64(h) % f.size
}

// Size returns the number of bits in the filter's underlying array.
func (f *Filter) Size() uint64 { return f.size }

// HashCount returns the number of independent hash functions in use.
func (f *Filter) HashCount() uint64 { return f.hashCount }

// Wire is the serialized form of a Filter, matching the wire format in
// the protocol's message envelopes: {size, hash_count, bit_array (hex)}.
type Wire struct {
	Size      uint64 `json:"size"`
	HashCount uint64 `json:"hash_count"`
	BitArray  string `json:"bit_array"`
}

// ToWire serializes the filter. The bit array is little-endian packed and
// hex-encoded; Size is carried separately because the packed byte length
// may be padded up to a whole byte.
func (f *Filter) ToWire() Wire {
	return Wire{
		Size:      f.size,
		HashCount: f.hashCount,
		BitArray:  hex.EncodeToString(f.bits),
	}
}

// FromWire reconstructs a Filter from its wire form. The bit length comes
// from Size, not from the decoded byte slice's length.
func FromWire(w Wire) (*Filter, error) {
	raw, err := hex.DecodeString(w.BitArray)
	if err != nil {
		return nil, fmt.Errorf("bloom: decode bit array: %w", err)
	}
	want := (w.Size + 7) / 8
	if uint64(len(raw)) < want {
		return nil, fmt.Errorf("bloom: bit array too short for declared size %d", w.Size)
	}
	return &Filter{
		size:      w.Size,
		hashCount: w.HashCount,
		bits:      raw[:want],
	}, nil
}

// toBytesLE renders x as its minimal little-endian byte encoding, matching
// the original implementation's `item.to_bytes(..., byteorder='little')`.
func toBytesLE(x *big.Int) []byte {
	be := x.Bytes() // big-endian, minimal length, no sign
	out := make([]byte, len(be))
	for i, b := range be {
		out[len(be)-1-i] = b
	}
	return out
}

// SubsetSum computes E = sum_{i=k}^{n} C(n, i), the number of voter
// subsets of size >= k out of n, used to size the Bloom filter the final
// voter builds for the generic variant.
func SubsetSum(n, k int) uint64 {
	var total uint64
	for i := k; i <= n; i++ {
		total += binomial(n, i)
	}
	return total
}

func binomial(n, k int) uint64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := uint64(1)
	for i := 0; i < k; i++ {
		result = result * uint64(n-i) / uint64(i+1)
	}
	return result
}
