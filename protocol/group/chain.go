package group

import "e2ee/crypto/suite"

// infoRatchet reuses the same HKDF-expand label protocol/ratchet uses to
// split a message key into an AEAD key/IV; the group engine's
// sender-chain seed derivation also names "RATCHET" as its info string.
const infoRatchet = "RATCHET"

// deriveSenderChainKey seeds a member's sender chain from the group seed
// and that member's identity public key via HKDF(salt=group_seed,
// ikm=recipient_identity_pub, info=RATCHET). Since this is
// deterministic, any session member can derive any other member's
// initial sender chain_key from the group_seed plus that member's known
// identity pub — no chain keys need to be transmitted individually.
func deriveSenderChainKey(s suite.Suite, groupSeed [32]byte, identityPub [32]byte) ([32]byte, error) {
	var out [32]byte
	okm, err := s.HKDF(groupSeed[:], identityPub[:], []byte(infoRatchet), 32)
	if err != nil {
		return out, err
	}
	copy(out[:], okm)
	return out, nil
}

// advanceChain steps a sender chain forward by one message, mirroring
// protocol/ratchet's kdfCK (HMAC-based chain advance).
func advanceChain(s suite.Suite, chainKey [32]byte) (nextChainKey, msgKey [32]byte) {
	mk := s.HMAC(chainKey[:], []byte{0x01})
	ck := s.HMAC(chainKey[:], []byte{0x02})
	copy(msgKey[:], mk)
	copy(nextChainKey[:], ck)
	return nextChainKey, msgKey
}

// deriveMessageKeys splits a chain-derived message key into an AEAD
// key/IV pair, matching protocol/ratchet's deriveMessageKeys.
func deriveMessageKeys(s suite.Suite, mk [32]byte) (aeadKey [32]byte, iv [12]byte, err error) {
	okm, err := s.HKDF(nil, mk[:], []byte(infoRatchet), 32+12)
	if err != nil {
		return aeadKey, iv, err
	}
	copy(aeadKey[:], okm[:32])
	copy(iv[:], okm[32:44])
	return aeadKey, iv, nil
}
