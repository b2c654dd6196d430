package session

// ShouldReplace implements re-invite reconciliation: compare invite_t; if
// new > old, replace. A tie (two invites racing with the same invite_t)
// is resolved by a lexicographic compare on session_id, so the decision
// is total and deterministic on both peers without extra coordination.
func ShouldReplace(old *Session, newSessionID string, newInviteT int64) bool {
	if old == nil {
		return true
	}
	if newInviteT != old.InviteT {
		return newInviteT > old.InviteT
	}
	return newSessionID > old.SessionID
}
