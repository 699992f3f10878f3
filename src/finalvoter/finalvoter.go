// Package finalvoter implements the distinguished n-th participant: it
// collects every other voter's masking pad, combines them by XOR, and
// uses that combined pad — rather than a fresh PRF-derived one — to mask
// its own vote. Because its pad already cancels every other voter's pad,
// the final voter never time-locks its contribution; the tallier needs
// it in the clear to make progress deterministically.
package finalvoter

import (
	"fmt"
	"math/big"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/EitanKalman/evote/src/voting"
	"github.com/EitanKalman/evote/src/wire"
)

// Config holds everything the final voter needs to run a single election.
type Config struct {
	K0             []byte
	VoterID        string
	VoterIndex     int // always n-1
	Vote           int
	Offset         int
	Aggregation    voting.Aggregation
	NumberOfVoters int
	Threshold      int // only used for the generic variant

	// Dropout selects the dropout-resilient wire framing for the
	// efficient variant ({"type":"not_time_locked",...} instead of a
	// bare decimal integer). The final voter itself never time-locks;
	// this only changes how its plaintext contribution is tagged.
	Dropout bool

	ListenAddr  string
	TallierAddr string

	Logger zerolog.Logger
}

// FinalVoter runs the distinguished final participant's protocol role.
type FinalVoter struct {
	cfg Config

	mu            sync.Mutex
	maskingValues []*big.Int
}

// New constructs a FinalVoter from cfg.
func New(cfg Config) *FinalVoter {
	return &FinalVoter{cfg: cfg}
}

// Run listens for n-1 inbound pads, combines them, encodes and masks its
// own vote, builds a Bloom filter for the generic variant, and ships its
// contribution to the tallier. It blocks until all pads have arrived and
// the send to the tallier completes.
func (fv *FinalVoter) Run() error {
	ln, err := net.Listen("tcp", fv.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("final voter %s: listen: %w", fv.cfg.VoterID, err)
	}
	defer ln.Close()

	if err := fv.collectPads(ln); err != nil {
		return fmt.Errorf("final voter %s: collect pads: %w", fv.cfg.VoterID, err)
	}

	combinedPad := fv.combinePads()

	encodedVote, err := voting.EncodeVote(fv.cfg.Aggregation, fv.cfg.Vote, fv.cfg.K0, fv.cfg.Offset, fv.cfg.VoterIndex, fv.cfg.VoterID)
	if err != nil {
		return fmt.Errorf("final voter %s: encode vote: %w", fv.cfg.VoterID, err)
	}
	maskedVote := new(big.Int).Xor(encodedVote, combinedPad)

	payload, err := fv.buildTallierPayload(maskedVote)
	if err != nil {
		return fmt.Errorf("final voter %s: build tallier message: %w", fv.cfg.VoterID, err)
	}

	conn, err := net.Dial("tcp", fv.cfg.TallierAddr)
	if err != nil {
		return fmt.Errorf("final voter %s: dial tallier: %w", fv.cfg.VoterID, err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, payload); err != nil {
		return fmt.Errorf("final voter %s: send masked vote: %w", fv.cfg.VoterID, err)
	}

	fv.cfg.Logger.Debug().Str("voter", fv.cfg.VoterID).Msg("final voter finished")
	return nil
}

// collectPads blocks until n-1 pads have arrived on ln, appending each
// to fv.maskingValues as it arrives; combinePads XORs them afterwards.
func (fv *FinalVoter) collectPads(ln net.Listener) error {
	want := fv.cfg.NumberOfVoters - 1
	for i := 0; i < want; i++ {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept pad %d/%d: %w", i+1, want, err)
		}
		payload, err := wire.ReadFrame(conn)
		conn.Close()
		if err != nil {
			return fmt.Errorf("read pad %d/%d: %w", i+1, want, err)
		}

		pad, ok := new(big.Int).SetString(string(payload), 10)
		if !ok {
			// ProtocolFormatError: drop and do not advance the counter,
			// else the final voter would deadlock waiting for a pad
			// that already arrived malformed.
			fv.cfg.Logger.Warn().Msg("dropping malformed masking pad")
			i--
			continue
		}

		fv.mu.Lock()
		fv.maskingValues = append(fv.maskingValues, pad)
		fv.mu.Unlock()
	}
	return nil
}

func (fv *FinalVoter) combinePads() *big.Int {
	fv.mu.Lock()
	defer fv.mu.Unlock()

	combined := big.NewInt(0)
	for _, p := range fv.maskingValues {
		combined.Xor(combined, p)
	}
	return combined
}

func (fv *FinalVoter) buildTallierPayload(maskedVote *big.Int) ([]byte, error) {
	switch fv.cfg.Aggregation {
	case voting.Generic:
		filter := voting.BuildBloomFilter(fv.cfg.K0, fv.cfg.Offset, fv.cfg.NumberOfVoters, fv.cfg.Threshold)
		w := filter.ToWire()
		env := wire.Envelope{
			Type: wire.TypeVoteBF,
			Vote: wire.NewBigInt(maskedVote),
			BF: &wire.BloomWire{
				Size:      w.Size,
				HashCount: w.HashCount,
				BitArray:  w.BitArray,
			},
		}
		return wire.EncodeEnvelope(env)
	case voting.Efficient:
		if fv.cfg.Dropout {
			env := wire.Envelope{Type: wire.TypeNotTimeLocked, Vote: wire.NewBigInt(maskedVote)}
			return wire.EncodeEnvelope(env)
		}
		return []byte(maskedVote.String()), nil
	default:
		return nil, fmt.Errorf("unknown aggregation %v", fv.cfg.Aggregation)
	}
}
