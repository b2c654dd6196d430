// Package dh25519 computes the shared secret side of key agreement over
// the edwards25519 group used by crypto/key25519.
package dh25519

import (
	"errors"

	"e2ee/crypto/key25519"
)

var ErrInvalidInput = errors.New("dh25519: invalid input")

// GetSharedSecret returns the DH shared secret priv*pub, encoded as the
// marshaled group element.
func GetSharedSecret(priv key25519.PrivateKey, pub key25519.PublicKey) ([]byte, error) {
	privScalar, err := priv.ToScalar()
	if err != nil {
		return nil, err
	}
	pubPoint, err := pub.ToPoint()
	if err != nil {
		return nil, err
	}
	secret := key25519.Suite.Point().Mul(privScalar, pubPoint)
	return secret.MarshalBinary()
}
