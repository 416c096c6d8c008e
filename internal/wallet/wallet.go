// Package wallet models the external key-holding agent that signs link
// challenges, plus a local ed25519 keypair implementation.
package wallet

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrDeclined is returned by a Signer when the user refuses to sign.
var ErrDeclined = errors.New("user declined to sign")

// ErrNoSigning is returned by wallets that can expose a key but not sign.
var ErrNoSigning = errors.New("wallet does not support message signing")

// Signer is a connected wallet able to prove control of its key.
type Signer interface {
	// PublicKey is the wallet address in its chain's textual encoding.
	PublicKey() string
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// Verify checks an ed25519 signature over msg against a base58 address,
// the same check the backend performs for Solana wallets.
func Verify(address string, msg, sig []byte) (bool, error) {
	pub, err := base58.Decode(address)
	if err != nil {
		return false, fmt.Errorf("invalid address: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key length %d", len(pub))
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid signature length %d", len(sig))
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
}
