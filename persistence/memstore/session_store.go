package memstore

import (
	"context"
	"fmt"

	"e2ee/addr"
	"e2ee/session"
)

func sessionKey(our addr.Address, sessionID string) string {
	return our.String() + "|" + sessionID
}

func oldSessionKey(our, their addr.Address, inviteT int64) string {
	return fmt.Sprintf("%s|%s|%d", our.String(), their.String(), inviteT)
}

func (s *Store) LoadInboundSession(ctx context.Context, sessionID string, our addr.Address) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionKey(our, sessionID)], nil
}

func (s *Store) LoadOutboundSession(ctx context.Context, our, their addr.Address) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.currentSession[pairKey(our, their)]
	if !ok {
		return nil, nil
	}
	return s.sessions[sessionKey(our, id)], nil
}

func (s *Store) LoadOutboundSessions(ctx context.Context, our addr.Address, theirUser, theirDomain string) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*session.Session
	for pair, id := range s.currentSession {
		sess, ok := s.sessions[sessionKey(our, id)]
		if !ok {
			continue
		}
		if pair != pairKey(our, sess.TheirAddress) {
			continue
		}
		if sess.TheirAddress.UserID == theirUser && sess.TheirAddress.Domain == theirDomain {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *Store) StoreSession(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(sess.OurAddress, sess.SessionID)] = sess
	s.currentSession[pairKey(sess.OurAddress, sess.TheirAddress)] = sess.SessionID
	return nil
}

// RetainPredecessorSession persists sess under its own (our, session_id)
// key without touching the (our, their) pointer StoreSession maintains,
// so a session just superseded by a re-invite stays reachable by
// LoadInboundSession/UnloadOldSession for the duration of the grace
// window, even though it is no longer the active session for the pair.
func (s *Store) RetainPredecessorSession(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(sess.OurAddress, sess.SessionID)] = sess
	s.oldSessions[oldSessionKey(sess.OurAddress, sess.TheirAddress, sess.InviteT)] = sess.SessionID
	return nil
}

func (s *Store) UnloadSession(ctx context.Context, our, their addr.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.currentSession[pairKey(our, their)]
	if !ok {
		return nil
	}
	delete(s.sessions, sessionKey(our, id))
	delete(s.currentSession, pairKey(our, their))
	return nil
}

// UnloadOldSession evicts the predecessor session recorded under
// (our, their, inviteT) by RetainPredecessorSession, resolved through
// the old-session index rather than the (our, their) current pointer,
// so it keeps working even after that pointer has moved on to a
// successor (or a third, even newer invite).
func (s *Store) UnloadOldSession(ctx context.Context, our, their addr.Address, inviteT int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := oldSessionKey(our, their, inviteT)
	id, ok := s.oldSessions[key]
	if !ok {
		return nil
	}
	delete(s.sessions, sessionKey(our, id))
	delete(s.oldSessions, key)
	return nil
}

func (s *Store) EnqueuePendingPlaintext(ctx context.Context, rec session.PendingPlaintext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(rec.From, rec.To)
	s.pendingPlain[key] = append(s.pendingPlain[key], rec)
	return nil
}

func (s *Store) DrainPendingPlaintext(ctx context.Context, from, to addr.Address) ([]session.PendingPlaintext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(from, to)
	records := s.pendingPlain[key]
	delete(s.pendingPlain, key)
	return records, nil
}

func (s *Store) EnqueuePendingRequest(ctx context.Context, rec session.PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.UserAddr.String()
	s.pendingReq[key] = append(s.pendingReq[key], rec)
	return nil
}

func (s *Store) AckPendingRequest(ctx context.Context, user addr.Address, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := user.String()
	kept := s.pendingReq[key][:0]
	for _, rec := range s.pendingReq[key] {
		if rec.RequestID != requestID {
			kept = append(kept, rec)
		}
	}
	s.pendingReq[key] = kept
	return nil
}

func (s *Store) ListPendingRequests(ctx context.Context, user addr.Address) ([]session.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingReq[user.String()], nil
}
