package authchain

import (
	"errors"
	"fmt"

	"github.com/meshland/catalyst/pkg/entity"
)

// Link types a chain entry may carry. SIGNER is always the root and
// carries no signature; every subsequent link transfers or exercises
// signing authority.
const (
	LinkTypeSigner    = "SIGNER"
	LinkTypeEphemeral = "ECDSA_EPHEMERAL"
	LinkTypeEntity    = "ECDSA_SIGNED_ENTITY"
)

// ErrEmptyChain is returned when the chain has no links at all.
var ErrEmptyChain = errors.New("the signature is invalid")

// Verify checks that chain is a well-formed auth chain authorizing
// entityID, and returns the root owner address it resolves to.
//
// chain[0] must be a SIGNER link naming the owner address. Every
// subsequent link's signature must recover to the address currently
// holding authority; ECDSA_EPHEMERAL links delegate authority to a new
// address named in their payload, and the final link must be of type
// ECDSA_SIGNED_ENTITY with payload equal to entityID.
func Verify(chain []entity.AuthChainLink, entityID string) (string, error) {
	if len(chain) == 0 {
		return "", ErrEmptyChain
	}
	if chain[0].Type != LinkTypeSigner {
		return "", fmt.Errorf("authchain: first link must be %s", LinkTypeSigner)
	}

	authority := normalizeAddress(chain[0].Payload)
	if authority == "" {
		return "", errors.New("authchain: signer link has empty payload")
	}

	sawEntityLink := false
	for _, link := range chain[1:] {
		if link.Signature == "" {
			return "", fmt.Errorf("authchain: link %s has no signature", link.Type)
		}
		sig, err := decodeHexSignature(link.Signature)
		if err != nil {
			return "", err
		}

		recovered, err := ecrecoverAddress([]byte(link.Payload), sig)
		if err != nil {
			return "", err
		}
		if normalizeAddress(recovered) != authority {
			return "", fmt.Errorf("authchain: link signed by %s, expected %s", recovered, authority)
		}

		switch link.Type {
		case LinkTypeEphemeral:
			authority = normalizeAddress(link.Payload)
		case LinkTypeEntity:
			if link.Payload != entityID {
				return "", fmt.Errorf("authchain: entity link signs %q, expected %q", link.Payload, entityID)
			}
			sawEntityLink = true
		default:
			return "", fmt.Errorf("authchain: unknown link type %q", link.Type)
		}
	}

	if !sawEntityLink {
		return "", errors.New("authchain: chain never signs the entity id")
	}
	if last := chain[len(chain)-1]; last.Type != LinkTypeEntity {
		return "", fmt.Errorf("authchain: final link must be %s, got %s", LinkTypeEntity, last.Type)
	}
	return normalizeAddress(chain[0].Payload), nil
}
