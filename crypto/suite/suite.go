// Package suite is the cipher suite abstraction: a pluggable bundle of
// asymmetric agreement, signing, KDF, MAC, AEAD and hash primitives,
// selected at runtime by an e2ees_pack_id and registered in a small
// package-level registry — polymorphic cipher selection via a capability
// interface rather than a function-pointer struct.
package suite

import (
	"fmt"

	"e2ee/apperr"
	"e2ee/crypto"
	"e2ee/crypto/aead"
	"e2ee/crypto/dh25519"
	"e2ee/crypto/hkdf"
	"e2ee/crypto/hmac"
	"e2ee/crypto/key25519"
	"e2ee/crypto/signer_schnorr"
)

// Size constants for the default cipher pack.
const (
	KeyLen           = 32
	SignKeyLen       = 32
	SharedSecretLen  = 32
	AEADKeyLen       = aead.KeyLen
	AEADIVLen        = aead.NonceLen
	AEADTagLen       = aead.TagLen
	Ed25519SigLen    = 64
	HMACLen          = crypto.HMACSHA256Size
	DefaultPackID    = "curve25519-ed25519-aesgcm-sha256"
)

// Suite is the capability set every component in this repo depends on
// instead of calling concrete crypto packages directly.
type Suite interface {
	PackID() string

	GenerateKeyPair() (*key25519.Pair, error)
	DH(priv key25519.PrivateKey, pub key25519.PublicKey) ([]byte, error)

	Sign(priv key25519.PrivateKey, data []byte) ([]byte, error)
	Verify(pub key25519.PublicKey, data, sig []byte) bool

	HKDF(salt, ikm, info []byte, length int) ([]byte, error)
	HMAC(key, data []byte) []byte

	AEADEncrypt(key [AEADKeyLen]byte, nonce [AEADIVLen]byte, ad, pt []byte) ([]byte, error)
	AEADDecrypt(key [AEADKeyLen]byte, nonce [AEADIVLen]byte, ad, ct []byte) ([]byte, error)
}

type defaultSuite struct{}

func newDefaultSuite() Suite { return defaultSuite{} }

func (defaultSuite) PackID() string { return DefaultPackID }

func (defaultSuite) GenerateKeyPair() (*key25519.Pair, error) {
	return key25519.NewPair()
}

func (defaultSuite) DH(priv key25519.PrivateKey, pub key25519.PublicKey) ([]byte, error) {
	return dh25519.GetSharedSecret(priv, pub)
}

func (defaultSuite) Sign(priv key25519.PrivateKey, data []byte) ([]byte, error) {
	return signer_schnorr.Sign(priv, data)
}

func (defaultSuite) Verify(pub key25519.PublicKey, data, sig []byte) bool {
	return signer_schnorr.Verify(pub, data, sig) == nil
}

func (defaultSuite) HKDF(salt, ikm, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := hkdf.KDF(crypto.DefaultHashFunc, ikm, salt, info, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (defaultSuite) HMAC(key, data []byte) []byte {
	return hmac.Hash(crypto.DefaultHashFunc, key, data)
}

func (defaultSuite) AEADEncrypt(key [AEADKeyLen]byte, nonce [AEADIVLen]byte, ad, pt []byte) ([]byte, error) {
	return aead.Encrypt(key, nonce, ad, pt)
}

func (defaultSuite) AEADDecrypt(key [AEADKeyLen]byte, nonce [AEADIVLen]byte, ad, ct []byte) ([]byte, error) {
	return aead.Decrypt(key, nonce, ad, ct)
}

var registry = map[string]Suite{
	DefaultPackID: newDefaultSuite(),
}

// Register adds (or replaces) a suite implementation under packID, so
// peers can negotiate via the pre-key bundle's e2ees_pack_id.
func Register(packID string, s Suite) {
	registry[packID] = s
}

// Get looks up a registered suite by pack id.
func Get(packID string) (Suite, error) {
	s, ok := registry[packID]
	if !ok {
		return nil, apperr.New(apperr.CipherSuiteUnsupported, fmt.Sprintf("unknown pack id %q", packID))
	}
	return s, nil
}

// Default returns the suite registered under DefaultPackID.
func Default() Suite {
	return registry[DefaultPackID]
}
