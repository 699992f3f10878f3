// Package voter implements a single non-final participant: it derives its
// masking pad, ships the pad to the final voter, encodes and masks its
// vote, optionally wraps it in a time-lock puzzle, and ships the result
// to the tallier.
package voter

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/EitanKalman/evote/src/primitives"
	"github.com/EitanKalman/evote/src/timelock"
	"github.com/EitanKalman/evote/src/voting"
	"github.com/EitanKalman/evote/src/wire"
)

// Config holds everything one voter needs to run a single election.
type Config struct {
	K0          []byte
	VoterID     string
	VoterIndex  int
	Vote        int
	Offset      int
	Aggregation voting.Aggregation

	FinalVoterAddr string
	TallierAddr    string

	// Dropout enables the dropout-resilient variant: the masked vote is
	// shipped as a time-lock puzzle rather than in the clear.
	Dropout bool

	// VoteTime and SquaringsPerSecond only matter when Dropout is true.
	VoteTime           time.Time
	SquaringsPerSecond uint64
	TimeLockBits       int

	Logger zerolog.Logger
}

// Voter runs one participant's protocol role.
type Voter struct {
	cfg Config
}

// New constructs a Voter from cfg.
func New(cfg Config) *Voter {
	return &Voter{cfg: cfg}
}

// Pad returns this voter's masking pad, PRF(k0, "1"||offset||index||id).
func (v *Voter) Pad() *big.Int {
	return primitives.PRF(v.cfg.K0, voting.PadLabel(v.cfg.Offset, v.cfg.VoterIndex, v.cfg.VoterID))
}

// Run derives the pad, sends it to the final voter, and sends the masked
// (optionally time-locked) vote to the tallier. The two sends run
// concurrently since their relative order carries no protocol meaning.
func (v *Voter) Run(ctx context.Context) error {
	pad := v.Pad()

	encodedVote, err := voting.EncodeVote(v.cfg.Aggregation, v.cfg.Vote, v.cfg.K0, v.cfg.Offset, v.cfg.VoterIndex, v.cfg.VoterID)
	if err != nil {
		return fmt.Errorf("voter %s: encode vote: %w", v.cfg.VoterID, err)
	}
	maskedVote := new(big.Int).Xor(encodedVote, pad)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return v.sendPad(pad) })
	g.Go(func() error { return v.sendMaskedVote(maskedVote) })
	if err := g.Wait(); err != nil {
		return err
	}

	v.cfg.Logger.Debug().Str("voter", v.cfg.VoterID).Msg("voter finished")
	return nil
}

func (v *Voter) sendPad(pad *big.Int) error {
	conn, err := net.Dial("tcp", v.cfg.FinalVoterAddr)
	if err != nil {
		return fmt.Errorf("voter %s: dial final voter: %w", v.cfg.VoterID, err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, []byte(pad.String())); err != nil {
		return fmt.Errorf("voter %s: send pad: %w", v.cfg.VoterID, err)
	}
	return nil
}

func (v *Voter) sendMaskedVote(maskedVote *big.Int) error {
	conn, err := net.Dial("tcp", v.cfg.TallierAddr)
	if err != nil {
		return fmt.Errorf("voter %s: dial tallier: %w", v.cfg.VoterID, err)
	}
	defer conn.Close()

	payload, err := v.buildTallierPayload(maskedVote)
	if err != nil {
		return fmt.Errorf("voter %s: build tallier message: %w", v.cfg.VoterID, err)
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		return fmt.Errorf("voter %s: send masked vote: %w", v.cfg.VoterID, err)
	}
	return nil
}

func (v *Voter) buildTallierPayload(maskedVote *big.Int) ([]byte, error) {
	if v.cfg.Dropout {
		delta := time.Until(v.cfg.VoteTime)
		if delta < 0 {
			delta = 0
		}
		bits := v.cfg.TimeLockBits
		if bits == 0 {
			bits = timelock.DefaultBits
		}
		puzzle, err := timelock.Encode(maskedVote, delta, v.cfg.SquaringsPerSecond, bits)
		if err != nil {
			return nil, fmt.Errorf("time-lock masked vote: %w", err)
		}
		env := wire.Envelope{
			Type:  wire.TypeTimeLocked,
			N:     wire.NewBigInt(puzzle.N),
			A:     wire.NewBigInt(puzzle.A),
			T:     &puzzle.T,
			CK:    wire.NewBigInt(puzzle.CK),
			CM:    wire.NewBigInt(puzzle.CM),
			Nonce: wire.NewBigInt(puzzle.Nonce),
		}
		return wire.EncodeEnvelope(env)
	}

	switch v.cfg.Aggregation {
	case voting.Efficient:
		// Original-efficient: bare decimal integer, no envelope.
		return []byte(maskedVote.String()), nil
	case voting.Generic:
		// Original-generic: {"type":"vote","content":<int>}.
		env := wire.Envelope{Type: wire.TypeVote, Content: wire.NewBigInt(maskedVote)}
		return wire.EncodeEnvelope(env)
	default:
		return nil, fmt.Errorf("unknown aggregation %v", v.cfg.Aggregation)
	}
}
