// Package wire defines the structured message types exchanged between
// devices and the directory server. Wire serialization of these messages
// to a binary encoding is left to the caller; JSON struct tags are
// provided so encoding/json can stand in as a concrete, swappable codec.
package wire

import (
	"e2ee/addr"
	"e2ee/crypto/key25519"
)

// InviteMsg opens a one-to-one session.
type InviteMsg struct {
	From               addr.Address       `json:"from"`
	To                 addr.Address       `json:"to"`
	AliceIdentityKey   key25519.PublicKey `json:"alice_identity_key"`
	AliceEphemeralKey  key25519.PublicKey `json:"alice_ephemeral_key"`
	BobSignedPreKeyID  uint32             `json:"bob_signed_pre_key_id"`
	BobOneTimePreKeyID uint32             `json:"bob_one_time_pre_key_id"` // 0 = none
	PreSharedKeys      [][]byte           `json:"pre_shared_keys,omitempty"`
	SessionID          string             `json:"session_id"`
	InviteT            int64              `json:"invite_t"`
}

// AcceptMsg acknowledges an InviteMsg.
type AcceptMsg struct {
	From          addr.Address       `json:"from"`
	To            addr.Address       `json:"to"`
	SessionID     string             `json:"session_id"`
	RatchetKey    key25519.PublicKey `json:"ratchet_key"`
	EncryptedAck  []byte             `json:"encrypted_ack"`
}

// NotifyLevel mirrors the notif_level field carried on every E2eeMsg.
type NotifyLevel int

const (
	NotifyDefault NotifyLevel = iota
	NotifySilent
	NotifyHigh
)

// PayloadCase discriminates the E2eeMsg.Payload sum type: tagged message
// variants distinguished by a numeric payload_case, matched exhaustively.
type PayloadCase int

const (
	PayloadOneToOne PayloadCase = iota
	PayloadGroup
)

// One2oneMsgPayload carries a one-to-one ratchet message.
type One2oneMsgPayload struct {
	Sequence   uint32             `json:"sequence"`
	RatchetKey key25519.PublicKey `json:"ratchet_key"`
	PrevChainLen uint32           `json:"prev_chain_len"`
	Ciphertext []byte             `json:"ciphertext"`
}

// GroupMsgPayload carries a group-chain message.
type GroupMsgPayload struct {
	Sender     addr.Address `json:"sender"`
	Sequence   uint32       `json:"sequence"`
	Ciphertext []byte       `json:"ciphertext"`
	Signature  []byte       `json:"signature"`
}

// E2eeMsg is the outer envelope for both one-to-one and group payloads,
// discriminated by Case.
type E2eeMsg struct {
	Version     string      `json:"version"`
	SessionID   string      `json:"session_id"`
	From        addr.Address `json:"from"`
	To          addr.Address `json:"to"`
	MsgID       string      `json:"msg_id"`
	NotifyLevel NotifyLevel `json:"notif_level"`
	Case        PayloadCase `json:"payload_case"`
	OneToOne    *One2oneMsgPayload `json:"one_to_one,omitempty"`
	Group       *GroupMsgPayload   `json:"group,omitempty"`
}

// StatusCode is the outcome of a server-side protocol operation, carried
// on every response envelope.
type StatusCode int

const (
	StatusOK StatusCode = iota
	StatusBadBundle
	StatusUnknownSession
	StatusDecryptAuth
	StatusOutOfOrderUnknown
	StatusTooManySkipped
	StatusOpkAlreadyConsumed
	StatusIdentityMismatch
	StatusBadInput
)

// Response is the shared envelope shape for the register / publish-spk /
// supply-opks / get-pre-key-bundle / invite / accept / create-group /
// add-members / add-member-device / remove-members / leave-group /
// send-group-msg operations. Artifact carries the
// operation-specific server-signed payload on success.
type Response struct {
	Status   StatusCode `json:"status"`
	Artifact any        `json:"artifact,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// GroupPreKeyBundle is delivered to each member device over a one-to-one
// session to bootstrap a group sender chain.
type GroupPreKeyBundle struct {
	GroupAddress      addr.Address        `json:"group_address"`
	GroupName         string              `json:"group_name"`
	MemberList        []addr.Address      `json:"member_list"`
	GroupSeed         [32]byte            `json:"group_seed"`
	SignaturePub      key25519.PublicKey  `json:"signature_pub"`
	SenderPositionIdx uint32              `json:"sender_position_index"`
	SessionID         string              `json:"session_id"`
}
