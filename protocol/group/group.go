package group

import (
	"io"

	"e2ee/addr"
	"e2ee/apperr"
	"e2ee/crypto/key25519"
	"e2ee/crypto/suite"
)

// NewSeed generates a fresh random 32-byte group_seed, drawn from the
// same kyber random stream key25519 uses for key generation rather than
// a separate randomness source.
func NewSeed() ([32]byte, error) {
	var seed [32]byte
	if _, err := io.ReadFull(key25519.Suite.RandomStream(), seed[:]); err != nil {
		return seed, apperr.Wrap(apperr.BadInput, "generate group seed", err)
	}
	return seed, nil
}

// Create establishes a new group session as the creator: assigns each
// member (including the creator) a stable position index and derives the
// creator's own sender chain.
func Create(s suite.Suite, sessionID string, groupAddress addr.Address, groupName string, self Member, others []Member) (*Session, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	members := append([]Member{self}, others...)
	return newSession(s, sessionID, groupAddress, groupName, seed, self, members)
}

// Join builds a session on the recipient side from a delivered
// GroupPreKeyBundle plus the already-known identity pubs of the other
// members: the bundle is delivered over the one-to-one session and the
// recipient derives its own sender chain_key from it.
func Join(s suite.Suite, sessionID string, groupAddress addr.Address, groupName string, seed [32]byte, self Member, members []Member) (*Session, error) {
	return newSession(s, sessionID, groupAddress, groupName, seed, self, members)
}

func newSession(s suite.Suite, sessionID string, groupAddress addr.Address, groupName string, seed [32]byte, self Member, members []Member) (*Session, error) {
	chainBytes, err := deriveSenderChainKey(s, seed, self.IdentityPub)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "derive sender chain key", err)
	}
	return &Session{
		SessionID:    sessionID,
		GroupAddress: groupAddress,
		GroupName:    groupName,
		GroupSeed:    seed,
		Members:      members,
		Self:         self,
		sendChain:    &ChainKey{Index: 0, Bytes: chainBytes},
		recvChains:   make(map[string]*ChainKey),
	}, nil
}

// Encrypt derives the next message key from the sender's own chain,
// signs header‖ciphertext with the caller-supplied identity signing key,
// and advances the chain.
func (gs *Session) Encrypt(s suite.Suite, signPriv key25519.PrivateKey, plaintext []byte) (Header, []byte, []byte, error) {
	chainKey, msgKey := advanceChain(s, gs.sendChain.Bytes)
	header := Header{SessionID: gs.SessionID, Sender: gs.Self.Address, Sequence: gs.sendChain.Index}

	aeadKey, iv, err := deriveMessageKeys(s, msgKey)
	if err != nil {
		return Header{}, nil, nil, apperr.Wrap(apperr.BadInput, "derive message keys", err)
	}
	ad := header.signedBytes(nil)
	ciphertext, err := s.AEADEncrypt(aeadKey, iv, ad, plaintext)
	if err != nil {
		return Header{}, nil, nil, apperr.Wrap(apperr.BadInput, "aead encrypt", err)
	}

	sig, err := s.Sign(signPriv, header.signedBytes(ciphertext))
	if err != nil {
		return Header{}, nil, nil, apperr.Wrap(apperr.BadInput, "sign group message", err)
	}

	gs.sendChain.Bytes = chainKey
	gs.sendChain.Index++

	return header, ciphertext, sig, nil
}

// Decrypt looks up (or lazily derives) the sender's chain_key, verifies
// the signature, advances a working copy of the chain up to
// header.Sequence, and AEAD-opens the ciphertext. The chain is only
// committed back once the AEAD tag verifies, mirroring the 1:1 ratchet's
// clone-then-commit pattern: a failed decrypt must not burn the
// intermediate message keys it walked through, since there would be no
// way to recover them afterward.
func (gs *Session) Decrypt(s suite.Suite, header Header, ciphertext, signature []byte) ([]byte, error) {
	sender, ok := gs.member(header.Sender.String())
	if !ok {
		return nil, apperr.New(apperr.UnknownSession, "group message from unknown member")
	}

	if !s.Verify(sender.IdentitySignPub, header.signedBytes(ciphertext), signature) {
		return nil, apperr.New(apperr.DecryptAuth, "group message signature does not verify")
	}

	chain, err := gs.chainFor(s, sender)
	if err != nil {
		return nil, err
	}
	if header.Sequence < chain.Index {
		return nil, apperr.New(apperr.OutOfOrderUnknown, "group message sequence already consumed")
	}

	working := *chain
	var msgKey [32]byte
	for working.Index <= header.Sequence {
		nextChainKey, mk := advanceChain(s, working.Bytes)
		msgKey = mk
		working.Bytes = nextChainKey
		working.Index++
	}

	aeadKey, iv, err := deriveMessageKeys(s, msgKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "derive message keys", err)
	}
	plaintext, err := s.AEADDecrypt(aeadKey, iv, header.signedBytes(nil), ciphertext)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecryptAuth, "aead authentication failed", err)
	}

	*chain = working
	return plaintext, nil
}

func (gs *Session) chainFor(s suite.Suite, sender Member) (*ChainKey, error) {
	key := sender.Address.String()
	if chain, ok := gs.recvChains[key]; ok {
		return chain, nil
	}
	chainBytes, err := deriveSenderChainKey(s, gs.GroupSeed, sender.IdentityPub)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "derive sender chain key", err)
	}
	chain := &ChainKey{Index: 0, Bytes: chainBytes}
	gs.recvChains[key] = chain
	return chain, nil
}

func (h Header) signedBytes(ciphertext []byte) []byte {
	var seq [4]byte
	seq[0] = byte(h.Sequence >> 24)
	seq[1] = byte(h.Sequence >> 16)
	seq[2] = byte(h.Sequence >> 8)
	seq[3] = byte(h.Sequence)

	buf := make([]byte, 0, len(h.SessionID)+len(h.Sender.String())+4+len(ciphertext))
	buf = append(buf, []byte(h.SessionID)...)
	buf = append(buf, []byte(h.Sender.String())...)
	buf = append(buf, seq[:]...)
	buf = append(buf, ciphertext...)
	return buf
}
