// Package memstore is an in-process, mutex-guarded implementation of
// account.Store, session.Store and group.Store, used by this package's
// own tests and suitable as a single-node reference deployment. Several
// typed maps guarded by one mutex, generalized from a single global
// connection-map shape into one covering accounts, sessions, and group
// sessions.
package memstore

import (
	"sync"

	"e2ee/account"
	"e2ee/addr"
	"e2ee/protocol/group"
	"e2ee/session"
)

// Store implements account.Store, session.Store and group.Store over
// plain Go maps.
type Store struct {
	mu sync.Mutex

	accounts map[string]*account.Account // keyed by Address.String()

	sessions       map[string]*session.Session // keyed by sessionKey(our, session_id)
	currentSession map[string]string           // keyed by pairKey(our, their); value is the active session_id
	oldSessions    map[string]string           // keyed by oldSessionKey(our, their, invite_t); value is the superseded session_id
	pendingPlain   map[string][]session.PendingPlaintext
	pendingReq     map[string][]session.PendingRequest

	groups map[string]*group.Session // keyed by owner.String()+"|"+sessionID
}

func New() *Store {
	return &Store{
		accounts:       make(map[string]*account.Account),
		sessions:       make(map[string]*session.Session),
		currentSession: make(map[string]string),
		oldSessions:    make(map[string]string),
		pendingPlain:   make(map[string][]session.PendingPlaintext),
		pendingReq:     make(map[string][]session.PendingRequest),
		groups:         make(map[string]*group.Session),
	}
}

func pairKey(a, b addr.Address) string { return a.String() + "|" + b.String() }

var (
	_ account.Store = (*Store)(nil)
	_ session.Store = (*Store)(nil)
	_ group.Store   = (*Store)(nil)
)
