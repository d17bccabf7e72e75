package hashing

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"
)

// Codec selects the CID multicodec tag used when hashing a payload. Content
// blobs are tagged Raw; the canonical entity JSON is tagged DagJSON so a CID
// decoder can tell the two apart without out-of-band context.
type Codec uint64

const (
	CodecRaw     Codec = cid.Raw
	CodecDagJSON Codec = cid.DagJSON
)

// Hash returns the CIDv1 (base32, lower-case, unpadded) of data — the "IPFS
// v2" hash convention the content server's IPFS_HASHING predicate expects.
func Hash(data []byte, codec Codec) (string, error) {
	digest, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hashing: sum: %w", err)
	}
	c := cid.NewCidV1(uint64(codec), digest)
	s, err := c.StringOfBase(multibase.Base32)
	if err != nil {
		return "", fmt.Errorf("hashing: encode: %w", err)
	}
	return s, nil
}

// Validate reports whether s parses as a CIDv1 string, implementing the
// IPFS_HASHING predicate's per-hash check.
func Validate(s string) bool {
	c, err := cid.Decode(s)
	if err != nil {
		return false
	}
	return c.Version() == 1
}
