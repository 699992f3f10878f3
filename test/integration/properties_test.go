// Package integration exercises the election end to end across the
// full module: voting encodings, Bloom filter sizing, and the
// correctness invariants the tallier must uphold regardless of
// aggregation strategy.
package integration

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/EitanKalman/evote/src/bloom"
	"github.com/EitanKalman/evote/src/primitives"
	"github.com/EitanKalman/evote/src/voting"
)

// deterministicKey derives a reproducible 32-byte test key from seed so
// property trials stay reproducible without depending on crypto/rand.
func deterministicKey(rng *rand.Rand) []byte {
	k := make([]byte, 32)
	rng.Read(k)
	return k
}

// TestInvariant2EfficientCorrectness sweeps random vote vectors and
// checks that the efficient verdict is 1 iff at least one vote is 1.
func TestInvariant2EfficientCorrectness(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const trials = 1000

	for trial := 0; trial < trials; trial++ {
		n := 2 + rng.Intn(15) // n in [2,16]
		k0 := deterministicKey(rng)
		offset := rng.Intn(1000)

		votes := make([]int, n)
		anyYes := false
		for i := range votes {
			v := rng.Intn(2)
			votes[i] = v
			if v == 1 {
				anyYes = true
			}
		}

		var encoded []*big.Int
		for i, vote := range votes {
			v, err := voting.EncodeVote(voting.Efficient, vote, k0, offset, i, voting.CanonicalVoterID(i))
			if err != nil {
				t.Fatalf("trial %d: EncodeVote: %v", trial, err)
			}
			encoded = append(encoded, v)
		}

		verdict, err := voting.Verdict(voting.Efficient, encoded, nil)
		if err != nil {
			t.Fatalf("trial %d: Verdict: %v", trial, err)
		}

		want := 0
		if anyYes {
			want = 1
		}
		if verdict != want {
			t.Fatalf("trial %d: n=%d votes=%v: expected verdict %d, got %d", trial, n, votes, want, verdict)
		}
	}
}

// TestInvariant3GenericCorrectness sweeps random vote vectors and
// checks that the generic verdict is 1 with certainty when the number
// of yes votes meets or exceeds k, and that false positives below
// threshold stay within the Bloom filter's expected false-positive
// budget across the whole sweep.
func TestInvariant3GenericCorrectness(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	const trials = 1000

	var belowThreshold, falsePositives int

	for trial := 0; trial < trials; trial++ {
		n := 2 + rng.Intn(15)
		k := 1 + rng.Intn(n)
		k0 := deterministicKey(rng)
		offset := rng.Intn(1000)

		votes := make([]int, n)
		yesCount := 0
		for i := range votes {
			v := rng.Intn(2)
			votes[i] = v
			if v == 1 {
				yesCount++
			}
		}

		filter := voting.BuildBloomFilter(k0, offset, n, k)

		var encoded []*big.Int
		for i, vote := range votes {
			v, err := voting.EncodeVote(voting.Generic, vote, k0, offset, i, voting.CanonicalVoterID(i))
			if err != nil {
				t.Fatalf("trial %d: EncodeVote: %v", trial, err)
			}
			encoded = append(encoded, v)
		}

		verdict, err := voting.Verdict(voting.Generic, encoded, filter)
		if err != nil {
			t.Fatalf("trial %d: Verdict: %v", trial, err)
		}

		if yesCount >= k {
			if verdict != 1 {
				t.Fatalf("trial %d: n=%d k=%d yes=%d: expected certain verdict 1, got %d", trial, n, k, yesCount, verdict)
			}
		} else {
			belowThreshold++
			if verdict == 1 {
				falsePositives++
			}
		}
	}

	if belowThreshold > 0 {
		rate := float64(falsePositives) / float64(belowThreshold)
		if rate > 0.05 {
			t.Fatalf("false-positive rate %.3f over %d below-threshold trials exceeds budget", rate, belowThreshold)
		}
	}
}

// TestInvariant1PadCancellation checks that XOR-folding every
// participant's masked contribution recovers exactly the XOR of the
// "yes" voters' plaintext encodings, independent of pad values.
func TestInvariant1PadCancellation(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 200; trial++ {
		n := 2 + rng.Intn(10)
		k0 := deterministicKey(rng)
		offset := rng.Intn(1000)

		votes := make([]int, n)
		for i := range votes {
			votes[i] = rng.Intn(2)
		}

		pads := make([]*big.Int, n)
		for i := 0; i < n-1; i++ {
			pads[i] = prfPad(k0, offset, i)
		}
		finalPad := big.NewInt(0)
		for i := 0; i < n-1; i++ {
			finalPad.Xor(finalPad, pads[i])
		}
		pads[n-1] = finalPad

		combined := big.NewInt(0)
		expected := big.NewInt(0)
		for i, vote := range votes {
			v, err := voting.EncodeVote(voting.Generic, vote, k0, offset, i, voting.CanonicalVoterID(i))
			if err != nil {
				t.Fatalf("trial %d: EncodeVote: %v", trial, err)
			}
			masked := new(big.Int).Xor(v, pads[i])
			combined.Xor(combined, masked)
			if vote == 1 {
				expected.Xor(expected, v)
			}
		}

		if combined.Cmp(expected) != 0 {
			t.Fatalf("trial %d: pad cancellation failed: combined=%s expected=%s", trial, combined, expected)
		}
	}
}

func prfPad(k0 []byte, offset, voterIndex int) *big.Int {
	return primitives.PRF(k0, voting.PadLabel(offset, voterIndex, voting.CanonicalVoterID(voterIndex)))
}

// TestInvariant4BloomRoundTrip checks that serializing and
// deserializing a Bloom filter preserves every membership check.
func TestInvariant4BloomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	k0 := deterministicKey(rng)

	filter := voting.BuildBloomFilter(k0, 0, 6, 3)
	w := filter.ToWire()
	roundTripped, err := bloom.FromWire(w)
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}

	for i := 0; i < 50; i++ {
		x := new(big.Int).SetInt64(rng.Int63())
		if filter.Check(x) != roundTripped.Check(x) {
			t.Fatalf("round-tripped filter disagrees with original on %s", x)
		}
	}
}
