// Package driver wires the protocol's participants into a single
// in-process election: n-1 ordinary voters, one final voter, and one
// tallier, each bound to an ephemeral loopback port, run concurrently
// and joined into a single verdict. It is the library entry point the
// cmd/evote CLI and the integration tests both build on, mirroring the
// teacher's operations package (CLI-facing option/result structs with
// no flag parsing inside them).
package driver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/EitanKalman/evote/src/finalvoter"
	"github.com/EitanKalman/evote/src/logging"
	"github.com/EitanKalman/evote/src/primitives"
	"github.com/EitanKalman/evote/src/tallier"
	"github.com/EitanKalman/evote/src/voter"
	"github.com/EitanKalman/evote/src/voting"
)

// DefaultSquaringsPerSecond is the reference solving rate dropout-
// resilient elections use to convert a voting deadline into a puzzle's
// work factor, matching the benchmark rate this implementation targets.
const DefaultSquaringsPerSecond uint64 = 3_000_000

// Options configures a single election run.
type Options struct {
	// Votes holds each voter's {0,1} ballot, indexed by voter position.
	// The last entry belongs to the final voter.
	Votes []int

	// Offset domain-separates elections that reuse the same k0.
	Offset int

	Aggregation voting.Aggregation
	// Threshold is only meaningful for the generic aggregation; it
	// defaults to len(Votes)/2+1 when zero.
	Threshold int

	// Dropout enables the dropout-resilient variant, time-locking every
	// non-final voter's contribution against VoteDeadline.
	Dropout            bool
	VoteDeadline       time.Time
	SquaringsPerSecond uint64
	TimeLockBits       int

	// ElectionDeadline bounds how long the tallier waits for
	// contributions to arrive before computing the verdict from
	// whatever it has collected. Zero means wait indefinitely.
	ElectionDeadline time.Time

	// Logger receives per-participant progress messages. A nil value
	// falls back to a default logger scoped to "driver".
	Logger *zerolog.Logger
}

// Result reports the outcome of a single election run.
type Result struct {
	Verdict        int
	NumberOfVoters int
	Aggregation    voting.Aggregation
	Threshold      int
}

// Run executes one election end to end and returns the tallier's
// verdict. It generates a fresh election key internally; callers who
// need a reproducible key for testing should use RunWithKey.
func Run(ctx context.Context, opts Options) (Result, error) {
	k0, err := primitives.RandomUint256()
	if err != nil {
		return Result{}, fmt.Errorf("driver: generate election key: %w", err)
	}
	return RunWithKey(ctx, opts, k0.Bytes())
}

// RunWithKey is Run with an explicit election key k0, for deterministic
// tests and for offset-reuse scenarios (spec's multi-election offset
// parameter distinguishes runs sharing a key).
func RunWithKey(ctx context.Context, opts Options, k0 []byte) (Result, error) {
	n := len(opts.Votes)
	if n < 2 {
		return Result{}, fmt.Errorf("driver: need at least 2 voters, got %d", n)
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = n/2 + 1
	}
	logger := logging.New("driver")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	squaringsPerSecond := opts.SquaringsPerSecond
	if squaringsPerSecond == 0 {
		squaringsPerSecond = DefaultSquaringsPerSecond
	}

	tallierLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return Result{}, fmt.Errorf("driver: bind tallier: %w", err)
	}
	tallierAddr := tallierLn.Addr().String()
	tallierLn.Close()

	finalVoterLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return Result{}, fmt.Errorf("driver: bind final voter: %w", err)
	}
	finalVoterAddr := finalVoterLn.Addr().String()
	finalVoterLn.Close()

	tallierCtx := ctx
	if !opts.ElectionDeadline.IsZero() {
		var cancel context.CancelFunc
		tallierCtx, cancel = context.WithDeadline(ctx, opts.ElectionDeadline)
		defer cancel()
	}

	tl := tallier.New(tallier.Config{
		NumberOfVoters: n,
		Aggregation:    opts.Aggregation,
		ListenAddr:     tallierAddr,
		Logger:         logger,
	})

	verdictCh := make(chan int, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := tl.Run(tallierCtx)
		if err != nil {
			return fmt.Errorf("tallier: %w", err)
		}
		verdictCh <- v
		return nil
	})

	// Give the tallier a moment to bind before dialing it.
	time.Sleep(10 * time.Millisecond)

	fv := finalvoter.New(finalvoter.Config{
		K0:             k0,
		VoterID:        voting.CanonicalVoterID(n - 1),
		VoterIndex:     n - 1,
		Vote:           opts.Votes[n-1],
		Offset:         opts.Offset,
		Aggregation:    opts.Aggregation,
		NumberOfVoters: n,
		Threshold:      threshold,
		Dropout:        opts.Dropout,
		ListenAddr:     finalVoterAddr,
		TallierAddr:    tallierAddr,
		Logger:         logger,
	})
	g.Go(func() error {
		if err := fv.Run(); err != nil {
			return fmt.Errorf("final voter: %w", err)
		}
		return nil
	})

	time.Sleep(10 * time.Millisecond)

	for i := 0; i < n-1; i++ {
		i := i
		vt := voter.New(voter.Config{
			K0:                 k0,
			VoterID:            voting.CanonicalVoterID(i),
			VoterIndex:         i,
			Vote:               opts.Votes[i],
			Offset:             opts.Offset,
			Aggregation:        opts.Aggregation,
			FinalVoterAddr:     finalVoterAddr,
			TallierAddr:        tallierAddr,
			Dropout:            opts.Dropout,
			VoteTime:           opts.VoteDeadline,
			SquaringsPerSecond: squaringsPerSecond,
			TimeLockBits:       opts.TimeLockBits,
			Logger:             logger,
		})
		g.Go(func() error {
			if err := vt.Run(gctx); err != nil {
				return fmt.Errorf("voter %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	select {
	case verdict := <-verdictCh:
		return Result{Verdict: verdict, NumberOfVoters: n, Aggregation: opts.Aggregation, Threshold: threshold}, nil
	default:
		return Result{}, fmt.Errorf("driver: tallier finished without reporting a verdict")
	}
}
