// Package crypto provides the hashing, signing and address derivation used by
// locally held signers.
package crypto

import "github.com/zeebo/blake3"

// HashSize is the length of a BLAKE3-256 digest.
const HashSize = 32

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) [HashSize]byte {
	return blake3.Sum256(data)
}

// HashString hashes the UTF-8 bytes of s.
func HashString(s string) [HashSize]byte {
	return Hash([]byte(s))
}
