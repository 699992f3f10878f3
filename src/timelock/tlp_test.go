package timelock

import (
	"math/big"
	"testing"
	"time"
)

func TestEncodeSolveRoundTrip(t *testing.T) {
	message := big.NewInt(123456789)
	puzzle, err := Encode(message, 0, 1000, 64)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Solve(puzzle, nil)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got.Cmp(message) != 0 {
		t.Fatalf("round trip mismatch: want %s got %s", message, got)
	}
}

func TestEncodeSolveZeroMessage(t *testing.T) {
	puzzle, err := Encode(big.NewInt(0), 0, 1000, 64)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Solve(puzzle, nil)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("expected zero message, got %s", got)
	}
}

func TestNegativeDeltaClampsToZero(t *testing.T) {
	puzzle, err := Encode(big.NewInt(7), -5*time.Second, 1000, 64)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if puzzle.T != 0 {
		t.Fatalf("expected T=0 for negative delta, got %d", puzzle.T)
	}
}

func TestMonotonicityInDelta(t *testing.T) {
	t1 := EstimateSquarings(1*time.Second, 1000)
	t2 := EstimateSquarings(2*time.Second, 1000)
	if t2 < t1 {
		t.Fatalf("T should be non-decreasing in delta: t1=%d t2=%d", t1, t2)
	}
}

func TestMonotonicityInSquaringsPerSecond(t *testing.T) {
	t1 := EstimateSquarings(1*time.Second, 1000)
	t2 := EstimateSquarings(1*time.Second, 2000)
	if t2 < t1 {
		t.Fatalf("T should be non-decreasing in squarings/sec: t1=%d t2=%d", t1, t2)
	}
}

func TestSolveFailsOnIncompletePuzzle(t *testing.T) {
	if _, err := Solve(Puzzle{}, nil); err == nil {
		t.Fatalf("expected error for incomplete puzzle")
	}
}

func TestProgressCallbackInvoked(t *testing.T) {
	puzzle, err := Encode(big.NewInt(1), time.Second, 1<<21, 64)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var calls int
	if _, err := Solve(puzzle, func(done uint64) { calls++ }); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if calls == 0 {
		t.Fatalf("progress callback never invoked")
	}
}

func TestRoundTripAcrossMessageRange(t *testing.T) {
	cases := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		new(big.Int).Lsh(big.NewInt(1), 255),
		new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)),
	}
	for _, m := range cases {
		puzzle, err := Encode(m, 0, 1000, 64)
		if err != nil {
			t.Fatalf("Encode(%s): %v", m, err)
		}
		got, err := Solve(puzzle, nil)
		if err != nil {
			t.Fatalf("Solve(%s): %v", m, err)
		}
		if got.Cmp(m) != 0 {
			t.Fatalf("round trip mismatch for %s: got %s", m, got)
		}
	}
}
