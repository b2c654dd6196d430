// Package ratchet implements the one-to-one Double-Ratchet state machine:
// sender/receiver symmetric chains, DH ratchet steps on a new peer
// ratchet key, and a bounded skipped-message-key cache for out-of-order
// delivery.
//
// The Header type and the kdfRk/kdfCk/encrypt/decrypt helpers sit behind
// the crypto/suite interface, with a Ratchet struct and an
// InitAlice/InitBob/dhRatchetSendChain/dhRatchetReceiveChain-shaped API.
package ratchet

import (
	"encoding/binary"

	"e2ee/crypto/key25519"
)

// Header is the per-message ratchet header carried alongside ciphertext.
type Header struct {
	RatchetPub key25519.PublicKey `json:"ratchet_pub"`
	PN         uint32             `json:"prev_chain_len"`
	N          uint32             `json:"index_in_chain"`
}

// Marshal encodes the header into a fixed-length byte sequence used as
// AEAD associated data: ad = header || associated context.
func (h Header) Marshal() []byte {
	buf := make([]byte, 32+4+4)
	copy(buf[:32], h.RatchetPub[:])
	binary.BigEndian.PutUint32(buf[32:36], h.PN)
	binary.BigEndian.PutUint32(buf[36:40], h.N)
	return buf
}

// ChainKey is a symmetric chain key at a given index.
// Invariant: Index strictly increases within a chain, resetting to 0 only
// on a DH ratchet step.
type ChainKey struct {
	Index uint32
	Bytes [32]byte
}

// MsgKey is a single-use message key derived from a ChainKey.
type MsgKey struct {
	Index uint32
	Bytes [32]byte
}

// Zeroize overwrites a message key's secret bytes. Called once a message
// key is consumed, since the chain key used to derive it is discarded.
func (m *MsgKey) Zeroize() {
	for i := range m.Bytes {
		m.Bytes[i] = 0
	}
}
