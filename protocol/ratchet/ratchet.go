package ratchet

import (
	"time"

	"e2ee/apperr"
	"e2ee/crypto/key25519"
	"e2ee/crypto/suite"
)

// Ratchet is the per-session Double-Ratchet state: root key,
// sender/receiver chains, skipped-key cache and the peer's current
// ratchet public key.
type Ratchet struct {
	suite suite.Suite
	now   func() time.Time

	RootKey [32]byte

	Dhs key25519.Pair       // our current ratchet key pair
	Dhr *key25519.PublicKey // their current ratchet public key, nil until known

	SendChain *ChainKey // nil in the sender-only-not-yet-started sub-mode
	RecvChain *ChainKey // nil until the first DH ratchet step

	Ns, Nr uint32 // messages sent/received in the current chains
	PN     uint32 // length of the previous sending chain

	skipped *skippedStore
}

// Option configures a Ratchet at construction time.
type Option func(*Ratchet)

// WithClock overrides the clock used for skipped-key TTL accounting
// (clock supplied by caller, defaulting to time.Now).
func WithClock(now func() time.Time) Option {
	return func(r *Ratchet) { r.now = now }
}

func newRatchet(s suite.Suite, opts []Option) *Ratchet {
	r := &Ratchet{
		suite:   s,
		now:     time.Now,
		skipped: newSkippedStore(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InitAlice initializes the initiator side of a session
// step 5: "initialize ratchet: root_key = SK; generate our initial
// ratchet key pair RK0 ... the initiator side performs the first DH
// ratchet step immediately". theirRatchetPub is Bob's signed pre-key
// public, used as the peer's initial ratchet public.
func InitAlice(s suite.Suite, sharedSecret [32]byte, theirRatchetPub key25519.PublicKey, opts ...Option) (*Ratchet, error) {
	r := newRatchet(s, opts)
	r.RootKey = sharedSecret
	r.Dhr = &theirRatchetPub

	pair, err := s.GenerateKeyPair()
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "generate initial ratchet key", err)
	}
	r.Dhs = *pair

	if err := dhRatchetSendChain(r); err != nil {
		return nil, err
	}
	return r, nil
}

// InitBob initializes the responder side of a session. ourRatchetKeyPair
// is the key pair Alice referenced as Bob's initial ratchet public (in
// the default flow, Bob's signed pre-key pair). Bob has no receive chain
// and no send chain until the first DH ratchet step, which happens on
// the first Decrypt call against Alice's header.
func InitBob(s suite.Suite, sharedSecret [32]byte, ourRatchetKeyPair key25519.Pair, opts ...Option) *Ratchet {
	r := newRatchet(s, opts)
	r.RootKey = sharedSecret
	r.Dhs = ourRatchetKeyPair
	return r
}

// clone deep-copies the ratchet state so callers can mutate the copy and
// only commit it back on success ( rollback-on-PersistenceFailure).
func (r *Ratchet) clone() *Ratchet {
	c := &Ratchet{
		suite:   r.suite,
		now:     r.now,
		RootKey: r.RootKey,
		Dhs:     r.Dhs,
		Ns:      r.Ns,
		Nr:      r.Nr,
		PN:      r.PN,
		skipped: r.skipped.snapshot(),
	}
	if r.Dhr != nil {
		dhr := *r.Dhr
		c.Dhr = &dhr
	}
	if r.SendChain != nil {
		sc := *r.SendChain
		c.SendChain = &sc
	}
	if r.RecvChain != nil {
		rc := *r.RecvChain
		c.RecvChain = &rc
	}
	return c
}

func (r *Ratchet) adopt(c *Ratchet) {
	*r = *c
}

// dhRatchetSendChain derives a fresh sender chain from the ratchet's
// current Dhs/Dhr pair: "derive new root_key and sender
// chain_key from DH(new_our_ratchet_priv, header.ratchet_pub)".
func dhRatchetSendChain(r *Ratchet) error {
	if r.Dhr == nil {
		return apperr.New(apperr.BadInput, "dh ratchet send chain: no peer ratchet public known")
	}
	dhOut, err := r.suite.DH(r.Dhs.Priv, *r.Dhr)
	if err != nil {
		return apperr.Wrap(apperr.BadInput, "dh", err)
	}
	rootKey, chainKey, err := kdfRK(r.suite, r.RootKey, dhOut)
	if err != nil {
		return apperr.Wrap(apperr.BadInput, "kdf_rk", err)
	}
	r.RootKey = rootKey
	r.SendChain = &ChainKey{Index: 0, Bytes: chainKey}
	return nil
}

// dhRatchetReceiveChain derives a fresh receiver chain from our current
// (pre-ratchet) Dhs against the peer's new ratchet public: derives a
// new root_key and a new receiver chain_key from
// DH(our_ratchet_priv, header.ratchet_pub).
func dhRatchetReceiveChain(r *Ratchet, header *Header) error {
	dhOut, err := r.suite.DH(r.Dhs.Priv, header.RatchetPub)
	if err != nil {
		return apperr.Wrap(apperr.BadInput, "dh", err)
	}
	rootKey, chainKey, err := kdfRK(r.suite, r.RootKey, dhOut)
	if err != nil {
		return apperr.Wrap(apperr.BadInput, "kdf_rk", err)
	}
	r.RootKey = rootKey
	r.RecvChain = &ChainKey{Index: 0, Bytes: chainKey}
	return nil
}

// performDHRatchetStep executes the full DH ratchet step:
// stash unconsumed skipped keys, derive a new receive chain from the old
// Dhs, generate a fresh Dhs, then derive a new send chain from it.
func performDHRatchetStep(r *Ratchet, header *Header) error {
	r.PN = r.Ns
	r.Ns = 0
	r.Nr = 0
	r.Dhr = &header.RatchetPub

	if err := dhRatchetReceiveChain(r, header); err != nil {
		return err
	}

	pair, err := r.suite.GenerateKeyPair()
	if err != nil {
		return apperr.Wrap(apperr.BadInput, "generate new ratchet key", err)
	}
	r.Dhs = *pair

	return dhRatchetSendChain(r)
}

// Encrypt derives (msg_key, next_chain_key)
// from the sender chain, build the header, AEAD-seal under the derived
// key/IV with ad = header ‖ context, and commit the advanced chain.
func (r *Ratchet) Encrypt(plaintext, context []byte) (*Header, []byte, error) {
	if r.SendChain == nil {
		return nil, nil, apperr.New(apperr.BadInput, "encrypt: no sender chain established")
	}
	working := r.clone()

	chainKey, msgKey := kdfCK(working.suite, working.SendChain.Bytes)
	header := Header{
		RatchetPub: working.Dhs.Pub,
		PN:         working.PN,
		N:          working.SendChain.Index,
	}

	aeadKey, iv, err := deriveMessageKeys(working.suite, msgKey)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.BadInput, "derive message keys", err)
	}

	ad := append(header.Marshal(), context...)
	ciphertext, err := working.suite.AEADEncrypt(aeadKey, iv, ad, plaintext)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.BadInput, "aead encrypt", err)
	}

	working.SendChain.Bytes = chainKey
	working.SendChain.Index++
	working.Ns = working.SendChain.Index
	r.adopt(working)

	return &header, ciphertext, nil
}

// Decrypt handles an incoming DH ratchet
// step if needed, walk the receiver chain (stashing skipped keys), derive
// or recall the message key, AEAD-open, and discard the used key.
func (r *Ratchet) Decrypt(header Header, ciphertext, context []byte) ([]byte, error) {
	working := r.clone()
	now := working.now()

	if mk, ok := working.skipped.Take(header.RatchetPub, header.N, now); ok {
		plaintext, err := decryptWith(working.suite, mk.Bytes, ciphertext, header, context)
		if err != nil {
			return nil, err
		}
		mk.Zeroize()
		r.adopt(working)
		return plaintext, nil
	}

	if working.Dhr == nil || !working.Dhr.Equals(&header.RatchetPub) {
		if working.RecvChain != nil {
			if err := stashSkipped(working, header.PN, now); err != nil {
				return nil, err
			}
		}
		if err := performDHRatchetStep(working, &header); err != nil {
			return nil, err
		}
	}

	if header.N < working.RecvChain.Index {
		return nil, apperr.New(apperr.OutOfOrderUnknown, "message key for this index is not in the skipped cache")
	}

	if err := stashSkipped(working, header.N, now); err != nil {
		return nil, err
	}

	chainKey, msgKeyBytes := kdfCK(working.suite, working.RecvChain.Bytes)
	working.RecvChain.Bytes = chainKey
	working.RecvChain.Index++
	working.Nr = working.RecvChain.Index

	plaintext, err := decryptWith(working.suite, msgKeyBytes, ciphertext, header, context)
	if err != nil {
		return nil, err
	}
	msgKey := MsgKey{Index: header.N, Bytes: msgKeyBytes}
	msgKey.Zeroize()

	r.adopt(working)
	return plaintext, nil
}

func decryptWith(s suite.Suite, mk [32]byte, ciphertext []byte, header Header, context []byte) ([]byte, error) {
	aeadKey, iv, err := deriveMessageKeys(s, mk)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "derive message keys", err)
	}
	ad := append(header.Marshal(), context...)
	plaintext, err := s.AEADDecrypt(aeadKey, iv, ad, ciphertext)
	if err != nil {
		return nil, apperr.Wrap(apperr.DecryptAuth, "aead authentication failed", err)
	}
	return plaintext, nil
}

// stashSkipped advances the receiver chain up to (not including) until,
// storing each derived key in the skipped cache, which bounds the
// total retained skipped keys to MaxSkipTotal.
func stashSkipped(r *Ratchet, until uint32, now time.Time) error {
	if r.RecvChain == nil {
		return nil
	}
	if until > r.RecvChain.Index && until-r.RecvChain.Index > MaxSkipPerChain {
		return apperr.New(apperr.TooManySkipped, "too many skipped messages in this chain")
	}
	for r.RecvChain.Index < until {
		chainKey, msgKey := kdfCK(r.suite, r.RecvChain.Bytes)
		r.skipped.Store(*r.Dhr, r.RecvChain.Index, MsgKey{Index: r.RecvChain.Index, Bytes: msgKey}, now)
		r.RecvChain.Bytes = chainKey
		r.RecvChain.Index++
	}
	return nil
}

// SkippedCount reports the number of retained skipped message keys.
func (r *Ratchet) SkippedCount() int {
	return r.skipped.Len()
}

// State reports the coarse ratchet state machine position:
// Uninitialized, Established (sender-only: no receiver chain yet), or
// Active (full: both chains known).
type MachineState int

const (
	Uninitialized MachineState = iota
	SenderOnly
	Full
)

func (r *Ratchet) State() MachineState {
	switch {
	case r.SendChain == nil && r.RecvChain == nil:
		return Uninitialized
	case r.RecvChain == nil:
		return SenderOnly
	default:
		return Full
	}
}
