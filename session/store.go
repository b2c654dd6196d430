package session

import (
	"context"

	"e2ee/addr"
)

// Store is the narrow persistence port session operations depend on.
// Defined consumer-side, matching account.Store and group.Store, so
// persistence adapters can implement it without this package importing
// them back.
type Store interface {
	LoadInboundSession(ctx context.Context, sessionID string, our addr.Address) (*Session, error)
	LoadOutboundSession(ctx context.Context, our, their addr.Address) (*Session, error)
	// LoadOutboundSessions returns one session per device of their_user
	// in their_domain, for multi-device fan-out.
	LoadOutboundSessions(ctx context.Context, our addr.Address, theirUser, theirDomain string) ([]*Session, error)
	// StoreSession persists s under its own (our, session_id) key and
	// makes it the active session returned by LoadOutboundSession for
	// (our, their).
	StoreSession(ctx context.Context, s *Session) error
	// RetainPredecessorSession persists s (a session a re-invite has just
	// superseded) under its own (our, session_id) key without touching
	// the (our, their) active-session pointer, so it stays reachable by
	// LoadInboundSession/UnloadOldSession for the grace window while the
	// successor session handles new traffic.
	RetainPredecessorSession(ctx context.Context, s *Session) error
	UnloadSession(ctx context.Context, our, their addr.Address) error
	// UnloadOldSession drops the predecessor session identified by its
	// invite_t once queued traffic against it has drained or the grace
	// window has elapsed.
	UnloadOldSession(ctx context.Context, our, their addr.Address, inviteT int64) error

	EnqueuePendingPlaintext(ctx context.Context, rec PendingPlaintext) error
	// DrainPendingPlaintext returns and clears all plaintext buffered for
	// (from, to) in FIFO order.
	DrainPendingPlaintext(ctx context.Context, from, to addr.Address) ([]PendingPlaintext, error)

	EnqueuePendingRequest(ctx context.Context, rec PendingRequest) error
	AckPendingRequest(ctx context.Context, user addr.Address, requestID string) error
	ListPendingRequests(ctx context.Context, user addr.Address) ([]PendingRequest, error)
}
