package integration

import (
	"context"
	"testing"
	"time"

	"github.com/EitanKalman/evote/src/driver"
	"github.com/EitanKalman/evote/src/voting"
)

// TestInvariant7DropoutSemantics checks that a dropout-resilient
// election's verdict over a set of voters equals the verdict computed
// from the same vote assignment run without dropout, since a missing
// voter's time-locked contribution still arrives (just later) and pads
// still cancel regardless of delivery order.
func TestInvariant7DropoutSemantics(t *testing.T) {
	votes := []int{0, 1, 0, 1}

	original, err := driver.Run(context.Background(), driver.Options{
		Votes:       votes,
		Aggregation: voting.Efficient,
	})
	if err != nil {
		t.Fatalf("original run: %v", err)
	}

	dropout, err := driver.Run(context.Background(), driver.Options{
		Votes:              votes,
		Aggregation:        voting.Efficient,
		Dropout:            true,
		VoteDeadline:       time.Now().Add(-time.Second),
		SquaringsPerSecond: 1_000_000,
		TimeLockBits:       64,
	})
	if err != nil {
		t.Fatalf("dropout run: %v", err)
	}

	if original.Verdict != dropout.Verdict {
		t.Fatalf("dropout verdict %d diverges from original verdict %d for the same vote assignment", dropout.Verdict, original.Verdict)
	}
}

// TestInvariant7DropoutSemanticsGeneric repeats the check for the
// generic (threshold) aggregation.
func TestInvariant7DropoutSemanticsGeneric(t *testing.T) {
	votes := []int{1, 1, 1, 0, 0}

	original, err := driver.Run(context.Background(), driver.Options{
		Votes:       votes,
		Aggregation: voting.Generic,
		Threshold:   3,
	})
	if err != nil {
		t.Fatalf("original run: %v", err)
	}

	dropout, err := driver.Run(context.Background(), driver.Options{
		Votes:              votes,
		Aggregation:        voting.Generic,
		Threshold:          3,
		Dropout:            true,
		VoteDeadline:       time.Now().Add(-time.Second),
		SquaringsPerSecond: 1_000_000,
		TimeLockBits:       64,
	})
	if err != nil {
		t.Fatalf("dropout run: %v", err)
	}

	if original.Verdict != dropout.Verdict {
		t.Fatalf("dropout verdict %d diverges from original verdict %d for the same vote assignment", dropout.Verdict, original.Verdict)
	}
}
