// Package timelock implements the RSW time-lock puzzle used by the
// dropout-resilient protocol variants to let the tallier recover a silent
// voter's masked vote after a bounded computational delay.
//
// It follows the same trapdoor construction as the teacher's file-level
// time-lock puzzle (encode with phi(N) for instant setup, solve by
// sequential squaring without it) generalized to a 256-bit election
// payload instead of a file body, and to an unauthenticated ChaCha20
// stream cipher instead of an AEAD, matching the exact wire shape this
// protocol specifies (CM is a bare ciphertext integer, not a sealed box).
package timelock

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"golang.org/x/crypto/chacha20"

	"github.com/EitanKalman/evote/src/primitives"
)

// DefaultBits is the experimental modulus width this protocol uses for
// its time-lock puzzles. 128 bits is cryptographically weak and is
// appropriate only for benchmarking/demo runs; any non-experimental
// deployment must raise this, ideally to 2048+ bits, and treat it as a
// per-run parameter rather than a constant.
const DefaultBits = 128

// payloadLen is the big-endian byte width of the masked vote being
// time-locked (spec's 256-bit field elements).
const payloadLen = 32

// Puzzle is the public information needed to solve a time-lock puzzle.
// N, A, CK, CM and Nonce are never nil once returned from Encode.
type Puzzle struct {
	N     *big.Int // RSA-style modulus
	A     *big.Int // puzzle base
	T     uint64   // number of sequential squarings required
	CK    *big.Int // int(K) + b, where b = A^(2^T) mod N
	CM    *big.Int // ChaCha20 ciphertext of the message, as a big integer
	Nonce *big.Int // cipher nonce, as a big integer
}

// Encode creates a fresh puzzle that hides message (a value in
// [0, 2^256)) until approximately delta has elapsed, assuming the solver
// performs squaringsPerSecond modular squarings per second. bits sets the
// modulus width; callers needing production security should pass >= 2048.
func Encode(message *big.Int, delta time.Duration, squaringsPerSecond uint64, bits int) (Puzzle, error) {
	n, phi, err := primitives.GenerateModulus(bits)
	if err != nil {
		return Puzzle{}, fmt.Errorf("timelock: generate modulus: %w", err)
	}

	seconds := delta.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	t := uint64(math.Ceil(seconds * float64(squaringsPerSecond)))

	key := make([]byte, chacha20.KeySize)
	if err := fillRandom(key); err != nil {
		return Puzzle{}, fmt.Errorf("timelock: generate key: %w", err)
	}
	nonce := make([]byte, chacha20.NonceSize)
	if err := fillRandom(nonce); err != nil {
		return Puzzle{}, fmt.Errorf("timelock: generate nonce: %w", err)
	}

	plaintext := message.FillBytes(make([]byte, payloadLen))
	ciphertext, err := streamXOR(key, nonce, plaintext)
	if err != nil {
		return Puzzle{}, fmt.Errorf("timelock: encrypt payload: %w", err)
	}

	a, err := primitives.RandomCoprime(n)
	if err != nil {
		return Puzzle{}, fmt.Errorf("timelock: sample base: %w", err)
	}

	e := primitives.PowTwoMod(phi, t)
	b := new(big.Int).Exp(a, e, n)

	ck := new(big.Int).Add(new(big.Int).SetBytes(key), b)

	return Puzzle{
		N:     n,
		A:     a,
		T:     t,
		CK:    ck,
		CM:    new(big.Int).SetBytes(ciphertext),
		Nonce: new(big.Int).SetBytes(nonce),
	}, nil
}

// progressStep is how often Solve invokes its progress callback, matching
// the teacher's SolvePuzzle cadence.
const progressStep uint64 = 1 << 20

// Solve recovers the original message by performing T sequential modular
// squarings of A mod N. This is inherently sequential; it cannot be sped
// up without knowledge of phi(N). progress, if non-nil, is invoked after
// every progressStep squarings and once more on completion.
func Solve(p Puzzle, progress func(done uint64)) (*big.Int, error) {
	if p.N == nil || p.A == nil || p.CK == nil || p.CM == nil || p.Nonce == nil {
		return nil, fmt.Errorf("timelock: incomplete puzzle")
	}

	b := new(big.Int).Set(p.A)
	for i := uint64(0); i < p.T; i++ {
		b.Mul(b, b)
		b.Mod(b, p.N)
		if progress != nil && ((i+1)%progressStep == 0 || i+1 == p.T) {
			progress(i + 1)
		}
	}

	keyInt := new(big.Int).Sub(p.CK, b)
	if keyInt.Sign() < 0 || keyInt.BitLen() > chacha20.KeySize*8 {
		return nil, fmt.Errorf("timelock: recovered key out of range")
	}
	key := keyInt.FillBytes(make([]byte, chacha20.KeySize))

	if p.Nonce.BitLen() > chacha20.NonceSize*8 {
		return nil, fmt.Errorf("timelock: recovered nonce out of range")
	}
	nonce := p.Nonce.FillBytes(make([]byte, chacha20.NonceSize))

	ciphertext := p.CM.FillBytes(make([]byte, payloadLen))
	plaintext, err := streamXOR(key, nonce, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("timelock: decrypt payload: %w", err)
	}
	if len(plaintext) != payloadLen {
		return nil, fmt.Errorf("timelock: decrypted payload has wrong length %d", len(plaintext))
	}

	return new(big.Int).SetBytes(plaintext), nil
}

// EstimateSquarings returns ceil(delta.Seconds() * squaringsPerSecond),
// the puzzle's T for a given delay and solver speed. Exposed so drivers
// and CLIs can print a human-readable work estimate without re-deriving
// the formula Encode uses internally.
func EstimateSquarings(delta time.Duration, squaringsPerSecond uint64) uint64 {
	seconds := delta.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	return uint64(math.Ceil(seconds * float64(squaringsPerSecond)))
}

func streamXOR(key, nonce, in []byte) ([]byte, error) {
	cipher, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in))
	cipher.XORKeyStream(out, in)
	return out, nil
}

func fillRandom(b []byte) error {
	_, err := rand.Read(b)
	return err
}
