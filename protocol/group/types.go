// Package group implements the group session engine: one sender chain
// per member, bootstrapped by piggy-backing a GroupPreKeyBundle over an
// existing one-to-one session, with membership-change key rotation.
//
// This package reuses protocol/ratchet's ChainKey/MsgKey types and
// HMAC-chain-step shape, generalized from "one sender, one receiver" to
// "one sender chain per group member", and reuses crypto/signer_schnorr
// (via crypto/suite) for the per-message signature a pairwise session
// never needs.
package group

import (
	"e2ee/addr"
	"e2ee/crypto/key25519"
	"e2ee/protocol/ratchet"
)

// ChainKey and MsgKey are shaped identically to the one-to-one ratchet's
// chain/message keys; reused rather than redefined.
type ChainKey = ratchet.ChainKey
type MsgKey = ratchet.MsgKey

// Member is a group participant as known to the local session: its
// routable address plus the identity agreement public key its sender
// chain is deterministically derived from (HKDF(salt=group_seed,
// ikm=recipient_identity_pub, info=RATCHET)). Group
// membership is exchanged over the wire as addresses only
// (wire.GroupPreKeyBundle.MemberList); identity pubs are already known
// to the caller from the member's one-to-one session or directory
// lookup, so they're supplied here rather than re-transmitted.
type Member struct {
	Address         addr.Address
	IdentityPub     key25519.PublicKey // agreement pub; seeds this member's sender chain
	IdentitySignPub key25519.PublicKey // verifies this member's group message signatures
}

// Header is the per-message group envelope signed and authenticated
// alongside the ciphertext: signature scope = session_id ‖ sender ‖
// sequence ‖ ciphertext.
type Header struct {
	SessionID string
	Sender    addr.Address
	Sequence  uint32
}

// Session is one member's view of a group chat at a given session_id:
// its own outbound sender chain plus one inbound chain per other member,
// derived lazily on first message from that sender.
type Session struct {
	SessionID    string
	GroupAddress addr.Address
	GroupName    string
	GroupSeed    [32]byte
	Members      []Member
	Self         Member

	sendChain  *ChainKey
	recvChains map[string]*ChainKey // keyed by Member.Address.String()
}

func (s *Session) member(addrKey string) (Member, bool) {
	for _, m := range s.Members {
		if m.Address.String() == addrKey {
			return m, true
		}
	}
	return Member{}, false
}
