package main

import (
	"fmt"
	"os"

	"github.com/EitanKalman/evote/src/cmd/evote"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "benchmark":
		err = evote.RunBenchmark(args, os.Stdout, os.Stderr)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		// Any other argument is treated as the start of the election
		// flags themselves (-o/-dr, -e/-g, ...), not a subcommand name.
		err = evote.Run(os.Args[1:], os.Stdout, os.Stderr)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("evote - private threshold e-voting aggregation engine\n\n")
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s (-o|-dr) (-e|-g) -n NUM_VOTERS -votes BALLOTS [-t THRESHOLD] [-offset N]\n", os.Args[0])
	fmt.Printf("  %s benchmark [-duration D] [-samples N] [-bits N]\n\n", os.Args[0])
	fmt.Printf("Flags:\n")
	fmt.Printf("  -o                     original (non-dropout-resilient) protocol\n")
	fmt.Printf("  -dr                    dropout-resilient protocol\n")
	fmt.Printf("  -e                     efficient (OR) aggregation\n")
	fmt.Printf("  -g                     generic (k-of-n) aggregation\n")
	fmt.Printf("  -n NUM_VOTERS          number of voters\n")
	fmt.Printf("  -t THRESHOLD           threshold k (generic only, default n/2+1)\n")
	fmt.Printf("  -votes BALLOTS         comma-separated 0/1 ballots, one per voter\n")
	fmt.Printf("  -offset N              election salt, for elections reusing k0\n")
	fmt.Printf("  -keyfile PATH          persist/reuse the election key k0 across runs\n")
	fmt.Printf("  -passphrase PASS       protects -keyfile (omit for an unencrypted file)\n\n")
	fmt.Printf("Examples:\n")
	fmt.Printf("  %s -o -e -n 4 -votes 0,0,1,0\n", os.Args[0])
	fmt.Printf("  %s -o -g -n 5 -t 3 -votes 1,1,1,0,0\n", os.Args[0])
	fmt.Printf("  %s -dr -e -n 3 -votes 0,1,0 -vote-deadline-in 2s\n", os.Args[0])
	fmt.Printf("  %s benchmark\n", os.Args[0])
}
