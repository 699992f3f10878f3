// Package keystore persists an election's k0 between runs that reuse
// it under distinct offsets, optionally protected by a passphrase.
//
// It is adapted from the teacher's password-protected file format: the
// teacher derives its per-file encryption key from a time-lock puzzle
// target XORed with a passphrase hash; a standing election key has no
// puzzle to derive from, so this package instead derives the key
// directly from the passphrase via Argon2id (the same KDF the teacher
// uses for its password-derived puzzle base) and reuses the teacher's
// ChaCha20-Poly1305 sealing scheme as is.
package keystore

import (
	"crypto/rand"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// argon2Memory, argon2Time and argon2Parallelism mirror the teacher's
// DefaultArgon2idParams (64 MiB, 3 iterations, single-threaded).
const (
	argon2Memory      = 64 * 1024
	argon2Time        = 3
	argon2Parallelism = 1
	argon2KeyLen      = 32
	saltLen           = 16
)

// Save writes k0 to path. If passphrase is non-empty the file is
// encrypted with a key derived from it via Argon2id; otherwise k0 is
// written in the clear.
func Save(path string, k0 []byte, passphrase []byte) error {
	if len(passphrase) == 0 {
		return os.WriteFile(path, k0, 0600)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("keystore: generate salt: %w", err)
	}
	key := deriveKey(passphrase, salt)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return fmt.Errorf("keystore: init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("keystore: generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, k0, nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return os.WriteFile(path, out, 0600)
}

// Load reads a key previously written by Save. passphrase must match
// what Save was given (empty for an unencrypted file).
func Load(path string, passphrase []byte) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}

	if len(passphrase) == 0 {
		return data, nil
	}

	nonceLen := chacha20poly1305.NonceSize
	if len(data) < saltLen+nonceLen {
		return nil, fmt.Errorf("keystore: %s is too short to contain a salt and nonce", path)
	}
	salt := data[:saltLen]
	nonce := data[saltLen : saltLen+nonceLen]
	sealed := data[saltLen+nonceLen:]

	key := deriveKey(passphrase, salt)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: init cipher: %w", err)
	}

	k0, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: wrong passphrase or corrupted key file: %w", err)
	}
	return k0, nil
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
}
