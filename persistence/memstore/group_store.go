package memstore

import (
	"context"

	"e2ee/addr"
	"e2ee/protocol/group"
)

func groupKey(owner addr.Address, sessionID string) string {
	return owner.String() + "|" + sessionID
}

func (s *Store) LoadGroupSession(ctx context.Context, owner addr.Address, sessionID string) (*group.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[groupKey(owner, sessionID)], nil
}

func (s *Store) StoreGroupSession(ctx context.Context, owner addr.Address, gs *group.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[groupKey(owner, gs.SessionID)] = gs
	return nil
}

func (s *Store) UnloadGroupSession(ctx context.Context, owner addr.Address, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupKey(owner, sessionID))
	return nil
}
