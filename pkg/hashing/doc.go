// Package hashing computes and validates the CIDv1 content hashes that
// address every entity and content blob in the repository, built on
// go-ipfs's cid/multihash/multibase libraries rather than a hand-rolled
// digest+encoding pair.
package hashing
