// Package tallier implements the protocol's tallying participant: it
// accepts every voter's masked vote over TCP, solves any time-locked
// contributions from dropped-out voters, and computes the final {0,1}
// verdict once all contributions are in (or the election deadline
// passes, for dropout-resilient runs).
//
// The puzzle-solving workload is CPU-bound and independent per puzzle,
// so it runs on a bounded worker pool rather than one goroutine per
// connection, mirroring the teacher's use of a worker count capped by
// runtime.NumCPU() for its own sequential-squaring workload.
package tallier

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/EitanKalman/evote/src/bloom"
	"github.com/EitanKalman/evote/src/timelock"
	"github.com/EitanKalman/evote/src/voting"
	"github.com/EitanKalman/evote/src/wire"
)

// Config holds everything the tallier needs to run a single election.
type Config struct {
	NumberOfVoters int
	Aggregation    voting.Aggregation

	ListenAddr string

	// Workers bounds the number of concurrent puzzle solvers. Zero means
	// runtime.NumCPU().
	Workers int

	Logger zerolog.Logger
}

// Tallier runs the tallying participant's protocol role.
type Tallier struct {
	cfg Config

	mu     sync.Mutex
	votes  []*big.Int
	filter *bloom.Filter
}

// New constructs a Tallier from cfg.
func New(cfg Config) *Tallier {
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Tallier{cfg: cfg}
}

// puzzleJob is a time-locked contribution awaiting a solver.
type puzzleJob struct {
	puzzle timelock.Puzzle
}

// Run listens for NumberOfVoters masked-vote messages, dispatches any
// time-locked ones to the solver pool, and returns the {0,1} verdict
// once every contribution has been collected or ctx is done. A
// cancelled or expired ctx abandons any puzzles still being solved and
// computes the verdict from whatever contributions arrived in time,
// which is the dropout-resilient variants' defined behavior.
func (t *Tallier) Run(ctx context.Context) (int, error) {
	ln, err := net.Listen("tcp", t.cfg.ListenAddr)
	if err != nil {
		return 0, fmt.Errorf("tallier: listen: %w", err)
	}
	defer ln.Close()

	// Buffered to NumberOfVoters so a dispatching handleConn never blocks
	// on jobs<- once every solver is busy; otherwise the accept loop's
	// select could wedge on the send and stop draining results, and with
	// all workers parked on results<- nothing would ever unblock it.
	jobs := make(chan puzzleJob, t.cfg.NumberOfVoters)
	results := make(chan *big.Int)
	solverErrs := make(chan error, t.cfg.Workers)

	var solverWG sync.WaitGroup
	for i := 0; i < t.cfg.Workers; i++ {
		solverWG.Add(1)
		go func() {
			defer solverWG.Done()
			t.solveLoop(ctx, jobs, results)
		}()
	}

	done := make(chan struct{})
	acceptErrs := make(chan error, 1)
	go func() {
		acceptErrs <- t.acceptLoop(ctx, ln, jobs, results, done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.cfg.Logger.Warn().Msg("election deadline reached before all votes arrived")
	case err := <-acceptErrs:
		if err != nil {
			close(jobs)
			solverWG.Wait()
			return 0, err
		}
	}

	ln.Close()
	close(jobs)
	// Once ctx is done, puzzles still being solved are abandoned: their
	// solvers return on their own, and the verdict does not wait for them.
	if ctx.Err() == nil {
		solverWG.Wait()
	}
	close(solverErrs)
	for err := range solverErrs {
		if err != nil {
			t.cfg.Logger.Warn().Err(err).Msg("puzzle solver reported an error")
		}
	}

	verdict, err := voting.Verdict(t.cfg.Aggregation, t.snapshotVotes(), t.snapshotFilter())
	if err != nil {
		return 0, fmt.Errorf("tallier: compute verdict: %w", err)
	}
	return verdict, nil
}

// acceptLoop accepts connections until NumberOfVoters masked votes have
// been accounted for (either received directly or dispatched as a
// puzzle job whose result later arrives on results), then closes done.
func (t *Tallier) acceptLoop(ctx context.Context, ln net.Listener, jobs chan<- puzzleJob, results <-chan *big.Int, done chan<- struct{}) error {
	pending := 0
	received := 0
	want := t.cfg.NumberOfVoters

	connCh := make(chan net.Conn)
	acceptErrCh := make(chan error, 1)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				acceptErrCh <- err
				return
			}
			connCh <- conn
		}
	}()

	for received < want {
		select {
		case <-ctx.Done():
			close(done)
			return nil
		case err := <-acceptErrCh:
			if received >= want {
				close(done)
				return nil
			}
			return err
		case conn := <-connCh:
			isPuzzle, err := t.handleConn(conn, jobs)
			if err != nil {
				t.cfg.Logger.Warn().Err(err).Msg("dropping malformed message")
				continue
			}
			if isPuzzle {
				pending++
			} else {
				received++
			}
		case vote := <-results:
			pending--
			received++
			// A nil vote means the solver failed or abandoned the
			// puzzle; drop the contribution and proceed without it
			// (dropout semantics) rather than waiting for it forever.
			if vote != nil {
				t.addVote(vote)
			}
		}
	}
	close(done)
	return nil
}

// handleConn reads a single frame from conn, decodes it, and either
// records a masked vote directly or enqueues a puzzle job. It reports
// whether the message was a puzzle (result pending) or immediate.
func (t *Tallier) handleConn(conn net.Conn, jobs chan<- puzzleJob) (isPuzzle bool, err error) {
	defer conn.Close()
	payload, err := wire.ReadFrame(conn)
	if err != nil {
		return false, fmt.Errorf("read frame: %w", err)
	}

	if vote, ok := new(big.Int).SetString(string(payload), 10); ok {
		t.addVote(vote)
		return false, nil
	}

	env, err := wire.DecodeEnvelope(payload)
	if err != nil {
		return false, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case wire.TypeVote:
		if env.Content == nil {
			return false, fmt.Errorf("vote envelope missing content")
		}
		t.addVote(env.Content.Int())
		return false, nil
	case wire.TypeNotTimeLocked:
		if env.Vote == nil {
			return false, fmt.Errorf("not_time_locked envelope missing vote")
		}
		t.addVote(env.Vote.Int())
		return false, nil
	case wire.TypeVoteBF:
		if env.Vote == nil || env.BF == nil {
			return false, fmt.Errorf("vote_bf envelope missing vote or filter")
		}
		filter, err := bloom.FromWire(bloom.Wire{Size: env.BF.Size, HashCount: env.BF.HashCount, BitArray: env.BF.BitArray})
		if err != nil {
			return false, fmt.Errorf("decode bloom filter: %w", err)
		}
		t.addVote(env.Vote.Int())
		t.setFilter(filter)
		return false, nil
	case wire.TypeTimeLocked:
		if env.N == nil || env.A == nil || env.T == nil || env.CK == nil || env.CM == nil || env.Nonce == nil {
			return false, fmt.Errorf("time_locked envelope missing a field")
		}
		jobs <- puzzleJob{puzzle: timelock.Puzzle{
			N:     env.N.Int(),
			A:     env.A.Int(),
			T:     *env.T,
			CK:    env.CK.Int(),
			CM:    env.CM.Int(),
			Nonce: env.Nonce.Int(),
		}}
		return true, nil
	default:
		return false, fmt.Errorf("unhandled message type %q", env.Type)
	}
}

// solveLoop drains jobs, solving each puzzle and forwarding its
// recovered masked vote onto results, until jobs closes or ctx is done.
func (t *Tallier) solveLoop(ctx context.Context, jobs <-chan puzzleJob, results chan<- *big.Int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			start := time.Now()
			vote, err := timelock.Solve(job.puzzle, nil)
			if err == nil {
				t.cfg.Logger.Debug().Dur("elapsed", time.Since(start)).Msg("solved time-locked vote")
			}
			if err != nil {
				// Report the failure as a dropped contribution (nil)
				// rather than silently skipping it, so the accept loop's
				// received counter still settles and the election can
				// proceed without this voter (spec's dropout semantics).
				t.cfg.Logger.Warn().Err(err).Msg("failed to solve time-locked vote")
				vote = nil
			}
			select {
			case results <- vote:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *Tallier) addVote(v *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.votes = append(t.votes, v)
}

func (t *Tallier) setFilter(f *bloom.Filter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter = f
}

func (t *Tallier) snapshotVotes() []*big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*big.Int, len(t.votes))
	copy(out, t.votes)
	return out
}

func (t *Tallier) snapshotFilter() *bloom.Filter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter
}
