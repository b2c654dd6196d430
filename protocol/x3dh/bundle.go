// Package x3dh implements the pre-key bundle handshake: Alice verifies
// Bob's signed pre-key, performs a 3-or-4-way DH, and derives the initial
// root key; Bob mirrors the computation with his private counterparts.
//
// The DH1..DH4-then-HKDF shape (PerformKeyAgreement) is unified here into
// one package operating over crypto/suite.Suite instead of calling
// dh25519/hkdf directly, emitting/consuming one shared PreKeyBundle type
// instead of two divergent per-side bundle structs.
package x3dh

import (
	"e2ee/apperr"
	"e2ee/crypto/key25519"
	"e2ee/crypto/suite"
)

// PreKeyBundle is the tuple (identity_pub, SPK_pub+sig, optional OPK_pub)
// consumed by an initiator to open a session. An IdentityKey splits into
// a distinct agreement key pair and signing key pair — the identity
// signing key is never reused as an ephemeral, and symmetrically never
// reused for DH either — so the bundle carries both identity publics
// separately rather than collapsing them into one.
type PreKeyBundle struct {
	IdentityAgreementKey key25519.PublicKey // used in DH2
	IdentitySignKey      key25519.PublicKey // used to verify SPKSignature
	SignedPreKey         key25519.PublicKey
	SPKSignature         []byte
	SPKID                uint32
	OneTimePreKey        *key25519.PublicKey // optional
	OPKID                uint32              // 0 = none
}

// Verify checks the identity sign-key's signature over the raw SPK
// public bytes.
func (b PreKeyBundle) Verify(s suite.Suite) error {
	if !s.Verify(b.IdentitySignKey, b.SignedPreKey[:], b.SPKSignature) {
		return apperr.New(apperr.BadBundle, "signed pre-key signature does not verify")
	}
	return nil
}

// AliceResult is everything the initiator needs to start a ratchet and
// to populate the outgoing InviteMsg.
type AliceResult struct {
	SharedSecret       [32]byte
	EphemeralPublicKey key25519.PublicKey
	UsedOPKID          uint32
}

// InitiateAsAlice runs the handshake's steps 1-4 from the initiator's side:
// verify the bundle, generate an ephemeral key, compute DH1..DH4 and
// derive SK = HKDF(0, DH1‖DH2‖DH3‖DH4, "ROOT").
func InitiateAsAlice(s suite.Suite, aliceIdentityPriv key25519.PrivateKey, bob PreKeyBundle) (*AliceResult, error) {
	if err := bob.Verify(s); err != nil {
		return nil, err
	}

	ephemeral, err := s.GenerateKeyPair()
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "generate ephemeral key", err)
	}

	dh1, err := s.DH(aliceIdentityPriv, bob.SignedPreKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "dh1", err)
	}
	dh2, err := s.DH(ephemeral.Priv, bob.IdentityAgreementKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "dh2", err)
	}
	dh3, err := s.DH(ephemeral.Priv, bob.SignedPreKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "dh3", err)
	}

	ikm := append(append(append([]byte{}, dh1...), dh2...), dh3...)
	var usedOPKID uint32
	if bob.OneTimePreKey != nil {
		dh4, err := s.DH(ephemeral.Priv, *bob.OneTimePreKey)
		if err != nil {
			return nil, apperr.Wrap(apperr.BadInput, "dh4", err)
		}
		ikm = append(ikm, dh4...)
		usedOPKID = bob.OPKID
	}

	salt := make([]byte, 32)
	okm, err := s.HKDF(salt, ikm, []byte("ROOT"), 32)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "hkdf", err)
	}

	var sk [32]byte
	copy(sk[:], okm)

	return &AliceResult{
		SharedSecret:       sk,
		EphemeralPublicKey: ephemeral.Pub,
		UsedOPKID:          usedOPKID,
	}, nil
}

// BobInboundKeys are the private counterparts Bob needs to mirror
// Alice's computation: his identity key, the SPK that was advertised,
// and (if referenced) the consumed OPK.
type BobInboundKeys struct {
	IdentityPriv  key25519.PrivateKey
	SignedPreKey  key25519.PrivateKey
	OneTimePreKey *key25519.PrivateKey // nil if Alice didn't reference one, or if it was already consumed (OpkAlreadyConsumed)
}

// RespondAsBob mirrors InitiateAsAlice from the responder's side. If
// aliceIdentityPub/aliceEphemeralPub are the values from the InviteMsg
// and keys.OneTimePreKey is nil despite the invite referencing an OPK
// id, DH4 is simply omitted — OpkAlreadyConsumed does not abort the
// session.
func RespondAsBob(s suite.Suite, keys BobInboundKeys, aliceIdentityPub, aliceEphemeralPub key25519.PublicKey) ([32]byte, error) {
	dh1, err := s.DH(keys.SignedPreKey, aliceIdentityPub)
	if err != nil {
		return [32]byte{}, apperr.Wrap(apperr.BadInput, "dh1", err)
	}
	dh2, err := s.DH(keys.IdentityPriv, aliceEphemeralPub)
	if err != nil {
		return [32]byte{}, apperr.Wrap(apperr.BadInput, "dh2", err)
	}
	dh3, err := s.DH(keys.SignedPreKey, aliceEphemeralPub)
	if err != nil {
		return [32]byte{}, apperr.Wrap(apperr.BadInput, "dh3", err)
	}

	ikm := append(append(append([]byte{}, dh1...), dh2...), dh3...)
	if keys.OneTimePreKey != nil {
		dh4, err := s.DH(*keys.OneTimePreKey, aliceEphemeralPub)
		if err != nil {
			return [32]byte{}, apperr.Wrap(apperr.BadInput, "dh4", err)
		}
		ikm = append(ikm, dh4...)
	}

	salt := make([]byte, 32)
	okm, err := s.HKDF(salt, ikm, []byte("ROOT"), 32)
	if err != nil {
		return [32]byte{}, apperr.Wrap(apperr.BadInput, "hkdf", err)
	}

	var sk [32]byte
	copy(sk[:], okm)
	return sk, nil
}
