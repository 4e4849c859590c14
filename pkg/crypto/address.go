package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// Native address layout: base58(prefix(1) | BLAKE3(pubkey)(32) | checksum(2)).
const (
	nativeBodySize     = HashSize
	nativeChecksumSize = 2
)

// Address prefixes for the two networks.
const (
	MainnetPrefix byte = 42
	TestnetPrefix byte = 43
)

// NativeAddress derives the base58 native account address of a compressed
// public key.
func NativeAddress(pubKey []byte, prefix byte) string {
	body := Hash(pubKey)
	payload := make([]byte, 0, 1+nativeBodySize+nativeChecksumSize)
	payload = append(payload, prefix)
	payload = append(payload, body[:]...)
	sum := Hash(payload)
	payload = append(payload, sum[:nativeChecksumSize]...)
	return base58.Encode(payload)
}

// ValidateNativeAddress checks the encoding and checksum of a native address
// and returns its network prefix.
func ValidateNativeAddress(addr string) (byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid base58: %w", err)
	}
	if len(raw) != 1+nativeBodySize+nativeChecksumSize {
		return 0, fmt.Errorf("address must be %d bytes, got %d", 1+nativeBodySize+nativeChecksumSize, len(raw))
	}
	split := len(raw) - nativeChecksumSize
	sum := Hash(raw[:split])
	if !bytes.Equal(sum[:nativeChecksumSize], raw[split:]) {
		return 0, fmt.Errorf("address checksum mismatch")
	}
	return raw[0], nil
}

// EvmAddress derives the default 0x-prefixed EVM address of a compressed
// secp256k1 public key: the last 20 bytes of Keccak-256 over the
// uncompressed point.
func EvmAddress(pubKey []byte) (string, error) {
	pk, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	uncompressed := pk.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:]), nil
}
