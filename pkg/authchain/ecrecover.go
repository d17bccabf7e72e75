package authchain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

// personalMessagePrefix is the EIP-191 prefix Ethereum wallets apply before
// signing arbitrary text, so recovery must hash over the prefixed message
// rather than the raw bytes.
const personalMessagePrefix = "\x19Ethereum Signed Message:\n"

// keccak256 hashes data with Keccak-256 (not the NIST SHA3 variant).
func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// personalHash reproduces the hash an Ethereum wallet signs for a
// human-readable message: Keccak256("\x19Ethereum Signed Message:\n" +
// len(message) + message).
func personalHash(message []byte) []byte {
	prefix := personalMessagePrefix + strconv.Itoa(len(message))
	return keccak256([]byte(prefix), message)
}

// ecrecoverAddress recovers the Ethereum address that produced sig over
// the EIP-191 personal hash of message. sig is the 65-byte
// r(32)||s(32)||v(1) Ethereum signature format, v ∈ {0,1,27,28}.
func ecrecoverAddress(message, sig []byte) (string, error) {
	if len(sig) != 65 {
		return "", fmt.Errorf("authchain: signature must be 65 bytes, got %d", len(sig))
	}

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return "", errors.New("authchain: invalid recovery id")
	}

	compact := make([]byte, 65)
	compact[0] = v + 27 // btcec compact format wants recovery id in [27,30]
	copy(compact[1:], sig[:64])

	hash := personalHash(message)
	pubKey, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return "", fmt.Errorf("authchain: recover public key: %w", err)
	}

	return addressFromPubKey(pubKey), nil
}

// addressFromPubKey derives the Ethereum address (the lower 20 bytes of
// Keccak256 of the uncompressed public key, sans the 0x04 prefix byte).
func addressFromPubKey(pub *btcec.PublicKey) string {
	raw := pub.SerializeUncompressed() // 0x04 || X(32) || Y(32)
	digest := keccak256(raw[1:])
	return "0x" + hex.EncodeToString(digest[12:])
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// decodeHexSignature decodes a 0x-prefixed (or bare) hex-encoded
// signature string into its 65 raw bytes.
func decodeHexSignature(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("authchain: decode signature: %w", err)
	}
	return raw, nil
}
