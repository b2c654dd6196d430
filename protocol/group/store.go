package group

import (
	"context"

	"e2ee/addr"
)

// Store is the narrow persistence port group session operations depend
// on: the group-session equivalents of the one-to-one session
// load/store/unload operations. Defined consumer-side, matching
// account.Store and session.Store, so persistence adapters can implement
// it without this package importing them back.
type Store interface {
	LoadGroupSession(ctx context.Context, owner addr.Address, sessionID string) (*Session, error)
	StoreGroupSession(ctx context.Context, owner addr.Address, gs *Session) error
	UnloadGroupSession(ctx context.Context, owner addr.Address, sessionID string) error
}
