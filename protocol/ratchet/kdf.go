package ratchet

import "e2ee/crypto/suite"

// KDF label split: "ROOT" is used for the root-chain derivation
// (KDF_RK); "RATCHET" is used for the HKDF-expand context that splits a
// message key into its AEAD key and IV. The chain-key advance itself
// (KDF_CK) stays HMAC-based with the two fixed constants 0x01/0x02.
const (
	infoRoot    = "ROOT"
	infoRatchet = "RATCHET"
)

// kdfRK implements the root KDF: given the current root key and a
// DH output, derive a new root key and a new chain key.
func kdfRK(s suite.Suite, rootKey [32]byte, dhOut []byte) (newRoot [32]byte, chainKey [32]byte, err error) {
	okm, err := s.HKDF(rootKey[:], dhOut, []byte(infoRoot), 64)
	if err != nil {
		return newRoot, chainKey, err
	}
	copy(newRoot[:], okm[:32])
	copy(chainKey[:], okm[32:64])
	return newRoot, chainKey, nil
}

// kdfCK implements the chain KDF: advance a chain key and derive the
// message key for the current index.
func kdfCK(s suite.Suite, chainKey [32]byte) (nextChainKey [32]byte, msgKey [32]byte) {
	mk := s.HMAC(chainKey[:], []byte{0x01})
	ck := s.HMAC(chainKey[:], []byte{0x02})
	copy(msgKey[:], mk)
	copy(nextChainKey[:], ck)
	return nextChainKey, msgKey
}

// deriveMessageKeys splits a message key into an AEAD key and IV via
// HKDF under the "RATCHET" label.
func deriveMessageKeys(s suite.Suite, mk [32]byte) (aeadKey [32]byte, iv [12]byte, err error) {
	okm, err := s.HKDF(nil, mk[:], []byte(infoRatchet), 32+12)
	if err != nil {
		return aeadKey, iv, err
	}
	copy(aeadKey[:], okm[:32])
	copy(iv[:], okm[32:44])
	return aeadKey, iv, nil
}
