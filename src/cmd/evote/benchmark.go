package evote

import (
	"flag"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/EitanKalman/evote/src/primitives"
	"github.com/EitanKalman/evote/src/progress"
	"github.com/EitanKalman/evote/src/timelock"
)

// RunBenchmark calibrates this machine's modular squaring rate so a
// caller can pick a realistic squarings-per-second value for the
// dropout-resilient variants. Adapted from the teacher's own squaring
// benchmark, generalized from a fixed RSA-encryption modulus to the
// election puzzle's configurable bit width.
func RunBenchmark(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	fs.SetOutput(stderr)

	duration := fs.Duration("duration", 5*time.Second, "how long to run the benchmark")
	samples := fs.Int("samples", 3, "number of benchmark samples to take")
	bits := fs.Int("bits", timelock.DefaultBits, "modulus width to benchmark against")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: evote benchmark [-duration DURATION] [-samples COUNT] [-bits N]\n\n")
		fmt.Fprintf(stderr, "Estimates the squarings-per-second rate for -squarings-per-second.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	n, _, err := primitives.GenerateModulus(*bits)
	if err != nil {
		return fmt.Errorf("generate benchmark modulus: %w", err)
	}

	var totalOps uint64
	var totalTime time.Duration
	for sample := 1; sample <= *samples; sample++ {
		ops, elapsed := benchmarkSquaring(n, *duration)
		fmt.Fprintf(stdout, "sample %d/%d: %d squarings in %v (%.0f/s)\n", sample, *samples, ops, elapsed, float64(ops)/elapsed.Seconds())
		totalOps += ops
		totalTime += elapsed
	}

	rate := float64(totalOps) / totalTime.Seconds()
	fmt.Fprintf(stdout, "average rate: %.0f squarings/second\n", rate)
	fmt.Fprintf(stdout, "pass this to -squarings-per-second to size dropout-resilient puzzles for this machine\n\n")

	fmt.Fprintf(stdout, "vote-deadline-in estimates at this rate:\n")
	for _, deadline := range []time.Duration{time.Second, 10 * time.Second, time.Minute, time.Hour} {
		squarings := uint64(deadline.Seconds() * rate)
		fmt.Fprintf(stdout, "  %-6v -> %d squarings (%s to solve if dropped)\n", deadline, squarings, progress.FormatDuration(progress.EstimateTime(squarings, rate)))
	}
	return nil
}

func benchmarkSquaring(n *big.Int, duration time.Duration) (uint64, time.Duration) {
	x := big.NewInt(12345)
	x.Mod(x, n)

	var operations uint64
	start := time.Now()
	end := start.Add(duration)
	for time.Now().Before(end) {
		for i := 0; i < 1000; i++ {
			x.Mul(x, x)
			x.Mod(x, n)
			operations++
		}
	}
	return operations, time.Since(start)
}
