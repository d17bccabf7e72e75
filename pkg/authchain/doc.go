/*
Package authchain verifies the auth chain carried by a deployment: a
sequence of links that, starting from an owning Ethereum address, either
delegate signing authority to an ephemeral key or sign the entity id
itself. This is the "verify" half of the assumption spec.md makes about
signature cryptography — the core only calls Verify and gets back the
address that ultimately authorized the entity.

Recovery uses secp256k1 signature recovery (btcec) over the Ethereum
personal-message hash (Keccak-256 with the EIP-191 prefix), the same
primitive go-ethereum's crypto package wraps as Ecrecover.
*/
package authchain
