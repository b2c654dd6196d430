// Package redisstore is a github.com/redis/go-redis/v9-backed
// implementation of account.Store, session.Store and group.Store,
// suitable for a multi-node deployment.
//
// A redisClient field plus fmt.Sprintf key templates, generalized from
// one flat message queue per user to one namespaced key template per
// entity this repo persists. ConsumeOneTimePreKey additionally needs a
// WATCH/MULTI optimistic-transaction pattern, since it is a
// read-modify-write race rather than a plain queue push/pop.
package redisstore

import (
	"github.com/redis/go-redis/v9"

	"e2ee/account"
	"e2ee/protocol/group"
	"e2ee/session"
)

// Key templates, one namespaced prefix per persisted entity.
const (
	keyAccount         = "e2ee:account:%s"              // address
	keySession         = "e2ee:session:%s:%s"           // our, session_id
	keyCurrentSession  = "e2ee:idx:current:%s:%s"       // our, their -> active session_id
	keyOldSession      = "e2ee:idx:old:%s:%s:%d"        // our, their, invite_t -> superseded session_id
	keyOutboundIndex   = "e2ee:idx:outbound:%s:%s:%s"   // our, their_user, their_domain -> set of session_ids
	keyGroupSession    = "e2ee:group:%s:%s"             // owner, session_id
	keyPendingPlain    = "e2ee:pending:plaintext:%s:%s" // from, to
	keyPendingRequests = "e2ee:pending:requests:%s"     // user
)

// Store implements account.Store, session.Store and group.Store against
// a single Redis instance.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

var (
	_ account.Store = (*Store)(nil)
	_ session.Store = (*Store)(nil)
	_ group.Store   = (*Store)(nil)
)
