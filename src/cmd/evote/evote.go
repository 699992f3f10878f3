// Package evote implements the election CLI: flag parsing for the four
// protocol variants, wiring the parsed options into a driver.Run call,
// and reporting the verdict or a non-zero exit code. It generalizes the
// teacher's per-subcommand flag.FlagSet shape (cmd/encrypt.go and
// friends) to the voting variants instead of file operations.
package evote

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/EitanKalman/evote/src/driver"
	"github.com/EitanKalman/evote/src/keystore"
	"github.com/EitanKalman/evote/src/logging"
	"github.com/EitanKalman/evote/src/primitives"
	"github.com/EitanKalman/evote/src/voting"
)

// Options mirrors the parsed command line, kept separate from
// driver.Options so flag parsing and election wiring stay independently
// testable, matching the teacher's Command/operations.Options split.
type Options struct {
	Original bool
	Dropout  bool

	Efficient bool
	Generic   bool

	NumberOfVoters int
	Threshold      int
	Votes          []int
	Offset         int

	SquaringsPerSecond uint64
	VoteDeadlineIn     time.Duration
}

// Run parses args, runs one election, and writes a human-readable
// verdict line to stdout. It returns a non-nil error for any usage or
// election failure; callers translate that into a process exit code.
func Run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("evote", flag.ContinueOnError)
	fs.SetOutput(stderr)

	original := fs.Bool("o", false, "run the original (non-dropout-resilient) protocol")
	dropout := fs.Bool("dr", false, "run the dropout-resilient protocol")
	efficient := fs.Bool("e", false, "use OR aggregation (threshold fixed at 1)")
	generic := fs.Bool("g", false, "use k-of-n threshold aggregation")
	n := fs.Int("n", 0, "number of voters (required, >= 2)")
	threshold := fs.Int("t", 0, "threshold k for the generic variant (default n/2+1)")
	votesFlag := fs.String("votes", "", "comma-separated {0,1} ballots, one per voter, in voter-index order (required)")
	offset := fs.Int("offset", 0, "election salt, for elections that reuse k0")
	squaringsPerSecond := fs.Uint64("squarings-per-second", driver.DefaultSquaringsPerSecond, "solver rate used to size dropout-resilient puzzles")
	voteDeadlineIn := fs.Duration("vote-deadline-in", 0, "how long from now the vote submission window stays open (dropout variant only)")
	keyfile := fs.String("keyfile", "", "path to a persisted election key k0, for elections that reuse it across offsets; generated and saved here if the file doesn't exist")
	passphrase := fs.String("passphrase", "", "passphrase protecting -keyfile (omit for an unencrypted key file)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: evote (-o|-dr) (-e|-g) -n NUM_VOTERS -votes BALLOTS [-t THRESHOLD] [-offset N]\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  evote -o -e -n 4 -votes 0,0,1,0\n")
		fmt.Fprintf(stderr, "  evote -o -g -n 5 -t 3 -votes 1,1,1,0,0\n")
		fmt.Fprintf(stderr, "  evote -dr -e -n 3 -votes 0,1,0 -vote-deadline-in 2s\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	opts, err := parseOptions(*original, *dropout, *efficient, *generic, *n, *threshold, *votesFlag, *offset, *squaringsPerSecond, *voteDeadlineIn)
	if err != nil {
		fs.Usage()
		return err
	}

	logger := logging.New("evote")

	k0, err := resolveKey(*keyfile, *passphrase)
	if err != nil {
		return fmt.Errorf("resolve election key: %w", err)
	}

	res, err := driver.RunWithKey(context.Background(), driver.Options{
		Votes:              opts.Votes,
		Offset:             opts.Offset,
		Aggregation:        aggregationOf(opts),
		Threshold:          opts.Threshold,
		Dropout:            opts.Dropout,
		VoteDeadline:       time.Now().Add(opts.VoteDeadlineIn),
		SquaringsPerSecond: opts.SquaringsPerSecond,
		Logger:             &logger,
	}, k0)
	if err != nil {
		return fmt.Errorf("election failed: %w", err)
	}

	fmt.Fprintf(stdout, "verdict: %d\n", res.Verdict)
	return nil
}

// resolveKey loads k0 from keyfile if it exists, otherwise generates a
// fresh one and saves it there (skipping persistence entirely if
// keyfile is empty).
func resolveKey(keyfilePath, passphrase string) ([]byte, error) {
	if keyfilePath == "" {
		k0, err := primitives.RandomUint256()
		if err != nil {
			return nil, fmt.Errorf("generate election key: %w", err)
		}
		return k0.Bytes(), nil
	}

	if _, err := os.Stat(keyfilePath); err == nil {
		return keystore.Load(keyfilePath, []byte(passphrase))
	}

	k0, err := primitives.RandomUint256()
	if err != nil {
		return nil, fmt.Errorf("generate election key: %w", err)
	}
	if err := keystore.Save(keyfilePath, k0.Bytes(), []byte(passphrase)); err != nil {
		return nil, fmt.Errorf("save election key: %w", err)
	}
	return k0.Bytes(), nil
}

func aggregationOf(opts Options) voting.Aggregation {
	if opts.Generic {
		return voting.Generic
	}
	return voting.Efficient
}

func parseOptions(original, dropout, efficient, generic bool, n, threshold int, votesFlag string, offset int, squaringsPerSecond uint64, voteDeadlineIn time.Duration) (Options, error) {
	if original == dropout {
		return Options{}, fmt.Errorf("exactly one of -o or -dr is required")
	}
	if efficient == generic {
		return Options{}, fmt.Errorf("exactly one of -e or -g is required")
	}
	if n < 2 {
		return Options{}, fmt.Errorf("-n must be at least 2, got %d", n)
	}
	if votesFlag == "" {
		return Options{}, fmt.Errorf("-votes is required")
	}

	votes, err := parseVotes(votesFlag)
	if err != nil {
		return Options{}, err
	}
	if len(votes) != n {
		return Options{}, fmt.Errorf("-votes has %d entries, expected %d (matching -n)", len(votes), n)
	}

	if generic && threshold == 0 {
		threshold = n/2 + 1
	}
	if generic && (threshold < 1 || threshold > n) {
		return Options{}, fmt.Errorf("-t must be between 1 and %d, got %d", n, threshold)
	}
	if efficient && threshold != 0 {
		return Options{}, fmt.Errorf("-t is only meaningful with -g")
	}

	return Options{
		Original:           original,
		Dropout:            dropout,
		Efficient:          efficient,
		Generic:            generic,
		NumberOfVoters:     n,
		Threshold:          threshold,
		Votes:              votes,
		Offset:             offset,
		SquaringsPerSecond: squaringsPerSecond,
		VoteDeadlineIn:     voteDeadlineIn,
	}, nil
}

func parseVotes(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	votes := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("-votes entry %q is not an integer: %w", p, err)
		}
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("-votes entry %d must be 0 or 1, got %d", i, v)
		}
		votes[i] = v
	}
	return votes, nil
}
