// Package session implements the Session type and Session Manager:
// per-(our_address, their_address) session resolution, invite_t
// reconciliation on re-invite, and pending plaintext/request FIFO
// queues.
//
// Generalized from "map of live sockets guarded by one global mutex" to
// "map of live sessions, guarded by one mutex per our_address" — so
// different sessions of the same account never ratchet concurrently,
// while different accounts run concurrently.
package session

import (
	"e2ee/addr"
	"e2ee/crypto/key25519"
	"e2ee/protocol/ratchet"
	"e2ee/wire"
)

// Session is the per-peer-device ratchet session
type Session struct {
	SessionID          string
	OurAddress         addr.Address
	TheirAddress       addr.Address
	AliceIdentityKey   *key25519.PublicKey // set on the responder side once an invite has been processed
	BobSignedPreKey    *key25519.PublicKey
	BobOneTimePreKeyID uint32 // 0 = none
	Ratchet            *ratchet.Ratchet
	InviteT            int64
	Responded          bool
	// PredecessorID is the session_id of the session a re-invite
	// replaced, cleared once that predecessor has been unloaded. Empty
	// for a session that didn't arise from reconciliation.
	PredecessorID string
	// SupersededAtMillis is set on a session once a re-invite has
	// replaced it as the active session for its (our, their) pair; nil
	// means this session is still current. A non-nil value marks the
	// session as retained only for the grace window: in-flight traffic
	// keeps decrypting against it until one successful decrypt lands on
	// its successor or the grace window elapses, whichever comes first.
	SupersededAtMillis *int64
	// F2FPass is an optional out-of-band verification marker (its
	// "f2f_pass?"); the session engine carries it but no operation in
	// this repo's scope reads or writes it beyond passthrough.
	F2FPass []byte
}

// PendingPlaintext is a buffered outbound message awaiting a usable
// session.
type PendingPlaintext struct {
	From        addr.Address
	To          addr.Address
	PendingID   string
	Bytes       []byte
	NotifyLevel wire.NotifyLevel
}

// PendingRequest is an idempotent directory-server request buffered
// until acknowledged.
type PendingRequest struct {
	UserAddr    addr.Address
	RequestID   string
	RequestType string
	Payload     []byte
}
