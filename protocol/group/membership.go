package group

import (
	"e2ee/addr"
	"e2ee/crypto/suite"
)

// RotateForMembershipChange performs the "add member" / "remove member"
// rotation: generate a fresh group_seed, bump the session_id, and
// rebuild sender/receiver chains for the resulting member set. The caller
// is responsible for retaining the previous *Session under its old
// session_id — for decrypting in-flight ciphertexts only, until a
// configured grace period elapses and it is unloaded — and for
// distributing the returned seed to every surviving/new member over
// their one-to-one sessions. To remove a member, simply omit it from
// newMembers; removed members receive no bundle for newSessionID and
// delete their stored chain keys locally on receipt of a separate
// removal notice.
func RotateForMembershipChange(s suite.Suite, newSessionID string, old *Session, self Member, newMembers []Member) (*Session, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return newSession(s, newSessionID, old.GroupAddress, old.GroupName, seed, self, newMembers)
}

// AddDevice adds a member's additional device: the new device joins the
// current (unrotated) session_id/seed via Join, no seed rotation or
// session_id bump required.
func AddDevice(s suite.Suite, current *Session, self Member) (*Session, error) {
	return newSession(s, current.SessionID, current.GroupAddress, current.GroupName, current.GroupSeed, self, current.Members)
}

// Leave clears gs's sending and receiving chains locally; it returns
// nothing. A member publishes a leave notification, and peers delete
// that sender's chain. Callers drop their reference to gs and evict
// gs.SessionID's entry from persistence.
func (gs *Session) Leave() {
	gs.sendChain = nil
	gs.recvChains = nil
}

// ForgetMember implements the peer-side half of "Member leaves" / "Remove
// member": drops the locally cached receive chain for an address that is
// no longer part of the group, so a stale chain key can never be reused.
func (gs *Session) ForgetMember(address addr.Address) {
	delete(gs.recvChains, address.String())
}
