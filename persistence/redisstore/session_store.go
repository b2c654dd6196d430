package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"e2ee/addr"
	"e2ee/apperr"
	"e2ee/crypto/key25519"
	"e2ee/crypto/suite"
	"e2ee/protocol/ratchet"
	"e2ee/session"
)

// sessionDTO is session.Session's wire/storage shape: its *ratchet.Ratchet
// field (which carries unexported fields) is replaced by ratchet.Persisted
// plus the pack id needed to re-resolve the suite on load.
type sessionDTO struct {
	SessionID          string              `json:"session_id"`
	OurAddress         addr.Address        `json:"our_address"`
	TheirAddress       addr.Address        `json:"their_address"`
	AliceIdentityKey   *key25519.PublicKey `json:"alice_identity_key,omitempty"`
	BobSignedPreKey    *key25519.PublicKey `json:"bob_signed_pre_key,omitempty"`
	BobOneTimePreKeyID uint32              `json:"bob_one_time_pre_key_id"`
	PackID             string              `json:"pack_id"`
	Ratchet            ratchet.Persisted   `json:"ratchet"`
	InviteT            int64               `json:"invite_t"`
	Responded          bool                `json:"responded"`
	PredecessorID      string              `json:"predecessor_id,omitempty"`
	SupersededAtMillis *int64              `json:"superseded_at_millis,omitempty"`
	F2FPass            []byte              `json:"f2f_pass,omitempty"`
}

func toDTO(s *session.Session) (sessionDTO, error) {
	dto := sessionDTO{
		SessionID:          s.SessionID,
		OurAddress:         s.OurAddress,
		TheirAddress:       s.TheirAddress,
		BobOneTimePreKeyID: s.BobOneTimePreKeyID,
		PackID:             s.Ratchet.PackID(),
		Ratchet:            s.Ratchet.Export(),
		InviteT:            s.InviteT,
		Responded:          s.Responded,
		PredecessorID:      s.PredecessorID,
		SupersededAtMillis: s.SupersededAtMillis,
		F2FPass:            s.F2FPass,
	}
	if s.AliceIdentityKey != nil {
		k := *s.AliceIdentityKey
		dto.AliceIdentityKey = &k
	}
	if s.BobSignedPreKey != nil {
		k := *s.BobSignedPreKey
		dto.BobSignedPreKey = &k
	}
	return dto, nil
}

func fromDTO(dto sessionDTO) (*session.Session, error) {
	s, err := suite.Get(dto.PackID)
	if err != nil {
		return nil, err
	}
	sess := &session.Session{
		SessionID:          dto.SessionID,
		OurAddress:         dto.OurAddress,
		TheirAddress:       dto.TheirAddress,
		BobOneTimePreKeyID: dto.BobOneTimePreKeyID,
		Ratchet:            ratchet.Import(s, dto.Ratchet),
		InviteT:            dto.InviteT,
		Responded:          dto.Responded,
		PredecessorID:      dto.PredecessorID,
		SupersededAtMillis: dto.SupersededAtMillis,
		F2FPass:            dto.F2FPass,
	}
	if dto.AliceIdentityKey != nil {
		k := *dto.AliceIdentityKey
		sess.AliceIdentityKey = &k
	}
	if dto.BobSignedPreKey != nil {
		k := *dto.BobSignedPreKey
		sess.BobSignedPreKey = &k
	}
	return sess, nil
}

// sessionKey addresses a session by (our, session_id), the way
// protocol/group keys its own sessions — never by the mutable (our,
// their) pointer, so a predecessor stays independently addressable once
// a re-invite moves that pointer on to its successor.
func sessionKey(our addr.Address, sessionID string) string {
	return fmt.Sprintf(keySession, our.String(), sessionID)
}

func currentSessionKey(our, their addr.Address) string {
	return fmt.Sprintf(keyCurrentSession, our.String(), their.String())
}

func oldSessionKey(our, their addr.Address, inviteT int64) string {
	return fmt.Sprintf(keyOldSession, our.String(), their.String(), inviteT)
}

func outboundIndexKey(our addr.Address, theirUser, theirDomain string) string {
	return fmt.Sprintf(keyOutboundIndex, our.String(), theirUser, theirDomain)
}

func (s *Store) getSession(ctx context.Context, our addr.Address, sessionID string) (*session.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(our, sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "get session", err)
	}
	var dto sessionDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "unmarshal session", err)
	}
	return fromDTO(dto)
}

func (s *Store) LoadInboundSession(ctx context.Context, sessionID string, our addr.Address) (*session.Session, error) {
	return s.getSession(ctx, our, sessionID)
}

func (s *Store) LoadOutboundSession(ctx context.Context, our, their addr.Address) (*session.Session, error) {
	id, err := s.client.Get(ctx, currentSessionKey(our, their)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "load current session pointer", err)
	}
	return s.getSession(ctx, our, id)
}

// LoadOutboundSessions uses the per-(our, their_user, their_domain)
// index set maintained by StoreSession, since Redis has no native way to
// range a hash of addresses by user/domain without a secondary index.
// The set holds active session_ids rather than peer addresses, so it
// stays correct across re-invite without needing a rewrite on supersede.
func (s *Store) LoadOutboundSessions(ctx context.Context, our addr.Address, theirUser, theirDomain string) ([]*session.Session, error) {
	ids, err := s.client.SMembers(ctx, outboundIndexKey(our, theirUser, theirDomain)).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "list outbound session index", err)
	}
	out := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.getSession(ctx, our, id)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) StoreSession(ctx context.Context, sess *session.Session) error {
	dto, err := toDTO(sess)
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "build session dto", err)
	}
	raw, err := json.Marshal(dto)
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "marshal session", err)
	}

	prevID, err := s.client.Get(ctx, currentSessionKey(sess.OurAddress, sess.TheirAddress)).Result()
	if err != nil && err != redis.Nil {
		return apperr.Wrap(apperr.PersistenceFailure, "load current session pointer", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.OurAddress, sess.SessionID), raw, 0)
		pipe.Set(ctx, currentSessionKey(sess.OurAddress, sess.TheirAddress), sess.SessionID, 0)
		if prevID != "" && prevID != sess.SessionID {
			pipe.SRem(ctx, outboundIndexKey(sess.OurAddress, sess.TheirAddress.UserID, sess.TheirAddress.Domain), prevID)
		}
		pipe.SAdd(ctx, outboundIndexKey(sess.OurAddress, sess.TheirAddress.UserID, sess.TheirAddress.Domain), sess.SessionID)
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "store session", err)
	}
	return nil
}

// RetainPredecessorSession persists sess under its own (our, session_id)
// key and a (our, their, invite_t) index, without touching the (our,
// their) current-session pointer StoreSession maintains — the mirror of
// memstore's RetainPredecessorSession, needed so UnloadOldSession can
// resolve the predecessor even after the pointer has moved on.
func (s *Store) RetainPredecessorSession(ctx context.Context, sess *session.Session) error {
	dto, err := toDTO(sess)
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "build predecessor session dto", err)
	}
	raw, err := json.Marshal(dto)
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "marshal predecessor session", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.OurAddress, sess.SessionID), raw, 0)
		pipe.Set(ctx, oldSessionKey(sess.OurAddress, sess.TheirAddress, sess.InviteT), sess.SessionID, 0)
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "retain predecessor session", err)
	}
	return nil
}

func (s *Store) UnloadSession(ctx context.Context, our, their addr.Address) error {
	id, err := s.client.Get(ctx, currentSessionKey(our, their)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "load current session pointer", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(our, id))
		pipe.Del(ctx, currentSessionKey(our, their))
		pipe.SRem(ctx, outboundIndexKey(our, their.UserID, their.Domain), id)
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "unload session", err)
	}
	return nil
}

// UnloadOldSession resolves the predecessor through the (our, their,
// invite_t) index RetainPredecessorSession populated, rather than
// through the (our, their) current pointer, so it keeps working even
// after that pointer has moved on to a successor (or a third, even
// newer invite).
func (s *Store) UnloadOldSession(ctx context.Context, our, their addr.Address, inviteT int64) error {
	key := oldSessionKey(our, their, inviteT)
	id, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "load old session pointer", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(our, id))
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "unload old session", err)
	}
	return nil
}

func (s *Store) EnqueuePendingPlaintext(ctx context.Context, rec session.PendingPlaintext) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "marshal pending plaintext", err)
	}
	key := fmt.Sprintf(keyPendingPlain, rec.From.String(), rec.To.String())
	if err := s.client.RPush(ctx, key, raw).Err(); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "enqueue pending plaintext", err)
	}
	return nil
}

func (s *Store) DrainPendingPlaintext(ctx context.Context, from, to addr.Address) ([]session.PendingPlaintext, error) {
	key := fmt.Sprintf(keyPendingPlain, from.String(), to.String())
	raws, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "list pending plaintext", err)
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "clear pending plaintext", err)
	}
	out := make([]session.PendingPlaintext, 0, len(raws))
	for _, raw := range raws {
		var rec session.PendingPlaintext
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, apperr.Wrap(apperr.PersistenceFailure, "unmarshal pending plaintext", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// EnqueuePendingRequest/AckPendingRequest use a Redis hash keyed by
// request_id, rather than the RPUSH list EnqueuePendingPlaintext uses,
// because acknowledgement needs delete-by-id: Redis lists have no
// efficient delete-by-key, hashes do (HDEL).
func (s *Store) EnqueuePendingRequest(ctx context.Context, rec session.PendingRequest) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "marshal pending request", err)
	}
	key := fmt.Sprintf(keyPendingRequests, rec.UserAddr.String())
	if err := s.client.HSet(ctx, key, rec.RequestID, raw).Err(); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "enqueue pending request", err)
	}
	return nil
}

func (s *Store) AckPendingRequest(ctx context.Context, user addr.Address, requestID string) error {
	key := fmt.Sprintf(keyPendingRequests, user.String())
	if err := s.client.HDel(ctx, key, requestID).Err(); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "ack pending request", err)
	}
	return nil
}

func (s *Store) ListPendingRequests(ctx context.Context, user addr.Address) ([]session.PendingRequest, error) {
	key := fmt.Sprintf(keyPendingRequests, user.String())
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "list pending requests", err)
	}
	out := make([]session.PendingRequest, 0, len(fields))
	for _, raw := range fields {
		var rec session.PendingRequest
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, apperr.Wrap(apperr.PersistenceFailure, "unmarshal pending request", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
