// Package key25519 implements the asymmetric key pairs used by the cipher
// suite: both the key-agreement keys and the signing keys live on the
// same edwards25519 group, but callers must not mix the two roles.
package key25519

import (
	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/suites"
)

type (
	// PrivateKey is a 32-byte scalar on the edwards25519 group.
	PrivateKey [32]byte
	// PublicKey is a 32-byte point on the edwards25519 group.
	PublicKey [32]byte
	Pair      struct {
		Priv PrivateKey
		Pub  PublicKey
	}
)

// Suite is the group all key25519 keys, DH computations and Schnorr
// signatures are defined over.
var Suite = suites.MustFind("Ed25519")

// New generates a fresh random private key.
func New() (*PrivateKey, error) {
	scalar := Suite.Scalar().Pick(Suite.RandomStream())
	raw, err := scalar.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var priv PrivateKey
	copy(priv[:], raw)
	return &priv, nil
}

// NewPair generates a fresh random key pair.
func NewPair() (*Pair, error) {
	priv, err := New()
	if err != nil {
		return nil, err
	}
	pub, err := priv.Public()
	if err != nil {
		return nil, err
	}
	return &Pair{Priv: *priv, Pub: *pub}, nil
}

func (priv *PrivateKey) Public() (*PublicKey, error) {
	scalar, err := priv.ToScalar()
	if err != nil {
		return nil, err
	}
	point := Suite.Point().Mul(scalar, nil)
	raw, err := point.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var pub PublicKey
	copy(pub[:], raw)
	return &pub, nil
}

func (priv *PrivateKey) ToScalar() (kyber.Scalar, error) {
	scalar := Suite.Scalar()
	if err := scalar.UnmarshalBinary(priv[:]); err != nil {
		return nil, err
	}
	return scalar, nil
}

func (pub *PublicKey) ToPoint() (kyber.Point, error) {
	point := Suite.Point()
	if err := point.UnmarshalBinary(pub[:]); err != nil {
		return nil, err
	}
	return point, nil
}

func (pub *PublicKey) Equals(other *PublicKey) bool {
	if pub == nil || other == nil {
		return false
	}
	return *pub == *other
}

func (pub PublicKey) Bytes() []byte {
	out := make([]byte, len(pub))
	copy(out, pub[:])
	return out
}
