package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"e2ee/addr"
	"e2ee/apperr"
	"e2ee/protocol/group"
)

func groupSessionKey(owner addr.Address, sessionID string) string {
	return fmt.Sprintf(keyGroupSession, owner.String(), sessionID)
}

func (s *Store) LoadGroupSession(ctx context.Context, owner addr.Address, sessionID string) (*group.Session, error) {
	raw, err := s.client.Get(ctx, groupSessionKey(owner, sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "get group session", err)
	}
	var dto struct {
		Persisted    group.Persisted `json:"persisted"`
		GroupAddress addr.Address    `json:"group_address"`
	}
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "unmarshal group session", err)
	}
	return group.Import(dto.Persisted, dto.GroupAddress), nil
}

func (s *Store) StoreGroupSession(ctx context.Context, owner addr.Address, gs *group.Session) error {
	payload := struct {
		Persisted    group.Persisted `json:"persisted"`
		GroupAddress addr.Address    `json:"group_address"`
	}{
		Persisted:    gs.Export(),
		GroupAddress: gs.GroupAddress,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "marshal group session", err)
	}
	if err := s.client.Set(ctx, groupSessionKey(owner, gs.SessionID), raw, 0).Err(); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "store group session", err)
	}
	return nil
}

func (s *Store) UnloadGroupSession(ctx context.Context, owner addr.Address, sessionID string) error {
	if err := s.client.Del(ctx, groupSessionKey(owner, sessionID)).Err(); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "unload group session", err)
	}
	return nil
}
