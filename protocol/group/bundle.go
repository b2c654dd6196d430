package group

import (
	"e2ee/addr"
	"e2ee/wire"
)

// Bundle builds the wire.GroupPreKeyBundle delivered to recipient over a
// one-to-one session signaturePub is the creator's
// identity signing public key, carried so the recipient can authenticate
// that the bundle genuinely originates from whoever signed the
// surrounding InviteMsg/one-to-one message it rode in on.
func Bundle(gs *Session, signaturePub [32]byte, positionIdx uint32) wire.GroupPreKeyBundle {
	memberList := make([]addr.Address, len(gs.Members))
	for i, m := range gs.Members {
		memberList[i] = m.Address
	}
	return wire.GroupPreKeyBundle{
		GroupAddress:      gs.GroupAddress,
		GroupName:         gs.GroupName,
		MemberList:        memberList,
		GroupSeed:         gs.GroupSeed,
		SignaturePub:      signaturePub,
		SenderPositionIdx: positionIdx,
		SessionID:         gs.SessionID,
	}
}
