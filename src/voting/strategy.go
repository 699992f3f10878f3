// Package voting factors the two points of variation between the
// efficient (threshold=1) and generic (threshold=k) protocols into a
// small strategy object, per the "duplicated variant classes" design
// note: every participant shares the same masking, PRF and Bloom
// machinery and differs only in how a "1" vote is encoded and how the
// tallier turns the XOR-folded contributions into a verdict.
package voting

import (
	"fmt"
	"math/big"

	"github.com/EitanKalman/evote/src/bloom"
	"github.com/EitanKalman/evote/src/primitives"
)

// Aggregation selects OR-aggregation (efficient, threshold fixed at 1)
// or k-of-n aggregation (generic, threshold configurable).
type Aggregation int

const (
	// Efficient encodes "1" as a fresh random field element; the
	// verdict is 1 iff the XOR fold is nonzero.
	Efficient Aggregation = iota
	// Generic encodes "1" as a deterministic PRF image; the verdict is
	// checked against a precomputed Bloom filter of winning subsets.
	Generic
)

func (a Aggregation) String() string {
	switch a {
	case Efficient:
		return "efficient"
	case Generic:
		return "generic"
	default:
		return "unknown"
	}
}

// EncodeVote returns the plaintext vote value v_i for participant
// (voterIndex, voterID) under the election key k0 and salt offset. A "0"
// vote always encodes to 0; a "1" vote's encoding depends on aggregation.
func EncodeVote(aggregation Aggregation, vote int, k0 []byte, offset, voterIndex int, voterID string) (*big.Int, error) {
	if vote == 0 {
		return big.NewInt(0), nil
	}
	switch aggregation {
	case Efficient:
		v, err := primitives.RandomUint256()
		if err != nil {
			return nil, fmt.Errorf("voting: encode random vote: %w", err)
		}
		return v, nil
	case Generic:
		return primitives.PRF(k0, VoteLabel(offset, voterIndex, voterID)), nil
	default:
		return nil, fmt.Errorf("voting: unknown aggregation %v", aggregation)
	}
}

// PadLabel builds the PRF label for a non-final voter's masking pad.
func PadLabel(offset, voterIndex int, voterID string) string {
	return fmt.Sprintf("1|%d|%d|%s", offset, voterIndex, voterID)
}

// VoteLabel builds the PRF label for a generic-variant "1" vote image.
func VoteLabel(offset, voterIndex int, voterID string) string {
	return fmt.Sprintf("2|%d|%d|%s", offset, voterIndex, voterID)
}

// CanonicalVoterID is the voterID the final voter uses when it computes
// the canonical PRF images for every voter's "1" vote while building the
// Bloom filter (it does not know other voters' real string IDs, so the
// original protocol enumerates the canonical "voter<i>" form instead).
func CanonicalVoterID(voterIndex int) string {
	return fmt.Sprintf("voter%d", voterIndex)
}

// BuildBloomFilter constructs the generic variant's Bloom filter: for
// every subset T of voters of size >= threshold, it inserts the XOR of
// T's canonical "1"-vote PRF images. The filter is sized for
// approximately a 1% false-positive rate against the total subset count.
func BuildBloomFilter(k0 []byte, offset, n, threshold int) *bloom.Filter {
	images := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		images[i] = primitives.PRF(k0, VoteLabel(offset, i, CanonicalVoterID(i)))
	}

	filter := bloom.New(bloom.SubsetSum(n, threshold))
	var visit func(start int, size int, xor *big.Int)
	visit = func(start int, size int, xor *big.Int) {
		if size == 0 {
			filter.Add(xor)
			return
		}
		for i := start; i <= n-size; i++ {
			visit(i+1, size-1, new(big.Int).Xor(xor, images[i]))
		}
	}
	for size := threshold; size <= n; size++ {
		visit(0, size, big.NewInt(0))
	}
	return filter
}

// Verdict derives the {0,1} final verdict from the XOR fold of every
// participant's masked vote (encodedVotes), given the aggregation
// strategy and, for the generic variant, the Bloom filter the final
// voter built.
func Verdict(aggregation Aggregation, encodedVotes []*big.Int, filter *bloom.Filter) (int, error) {
	combined := big.NewInt(0)
	for _, v := range encodedVotes {
		combined.Xor(combined, v)
	}

	switch aggregation {
	case Efficient:
		if combined.Sign() == 0 {
			return 0, nil
		}
		return 1, nil
	case Generic:
		if filter == nil {
			return 0, fmt.Errorf("voting: generic verdict requires a bloom filter")
		}
		if filter.Check(combined) {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("voting: unknown aggregation %v", aggregation)
	}
}
