package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"e2ee/account"
	"e2ee/addr"
	"e2ee/apperr"
)

func accountKey(address addr.Address) string {
	return fmt.Sprintf(keyAccount, address.String())
}

func (s *Store) LoadAccountByAddress(ctx context.Context, address addr.Address) (*account.Account, error) {
	raw, err := s.client.Get(ctx, accountKey(address)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "get account", err)
	}
	var acc account.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "unmarshal account", err)
	}
	return &acc, nil
}

func (s *Store) storeAccountLocked(ctx context.Context, pipe redis.Cmdable, acc *account.Account) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "marshal account", err)
	}
	return pipe.Set(ctx, accountKey(acc.Address), raw, 0).Err()
}

func (s *Store) StoreAccount(ctx context.Context, acc *account.Account) error {
	if err := s.storeAccountLocked(ctx, s.client, acc); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "store account", err)
	}
	return nil
}

func (s *Store) UpdateSignedPreKey(ctx context.Context, owner addr.Address, spk account.SignedPreKey) error {
	return s.withAccountTxn(ctx, owner, func(acc *account.Account) error {
		previous := acc.CurrentSignedPreKey
		acc.PreviousSignedPreKey = &previous
		acc.CurrentSignedPreKey = spk
		return nil
	})
}

func (s *Store) RemoveExpiredSignedPreKey(ctx context.Context, owner addr.Address, spkID uint32) error {
	return s.withAccountTxn(ctx, owner, func(acc *account.Account) error {
		if acc.PreviousSignedPreKey != nil && acc.PreviousSignedPreKey.ID == spkID {
			acc.PreviousSignedPreKey = nil
		}
		return nil
	})
}

func (s *Store) AddOneTimePreKeys(ctx context.Context, owner addr.Address, keys []account.OneTimePreKey) error {
	return s.withAccountTxn(ctx, owner, func(acc *account.Account) error {
		acc.OneTimePreKeys = append(acc.OneTimePreKeys, keys...)
		return nil
	})
}

func (s *Store) RemoveOneTimePreKey(ctx context.Context, owner addr.Address, opkID uint32) error {
	return s.withAccountTxn(ctx, owner, func(acc *account.Account) error {
		kept := acc.OneTimePreKeys[:0]
		for _, opk := range acc.OneTimePreKeys {
			if opk.ID != opkID {
				kept = append(kept, opk)
			}
		}
		acc.OneTimePreKeys = kept
		return nil
	})
}

// ConsumeOneTimePreKey implements the transactional take-then-delete CAS
// account.Store requires, via Redis WATCH/MULTI: if another client
// mutates the account key between the GET and the
// EXEC, the transaction aborts and is retried (up to maxTxnAttempts
// times), so two concurrent consumers can never both receive the same
// one-time pre-key.
func (s *Store) ConsumeOneTimePreKey(ctx context.Context, owner addr.Address, opkID uint32) (*account.OneTimePreKey, error) {
	var found *account.OneTimePreKey
	key := accountKey(owner)

	txn := func(tx *redis.Tx) error {
		found = nil
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		var acc account.Account
		if err := json.Unmarshal(raw, &acc); err != nil {
			return err
		}
		for i := range acc.OneTimePreKeys {
			opk := &acc.OneTimePreKeys[i]
			if opk.ID != opkID || opk.Used {
				continue
			}
			result := *opk
			opk.Used = true
			opk.Pair.Priv = [32]byte{}
			found = &result
			break
		}
		if found == nil {
			return nil // nothing to change, no transaction needed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.storeAccountLocked(ctx, pipe, &acc)
		})
		return err
	}
	var txnErr error
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		txnErr = s.client.Watch(ctx, txn, key)
		if txnErr != redis.TxFailedErr {
			break
		}
	}

	if txnErr != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "consume one-time pre-key", txnErr)
	}
	return found, nil
}

// maxTxnAttempts bounds how many times a WATCH/MULTI transaction is
// re-run after another client modified the watched key.
const maxTxnAttempts = 5

// withAccountTxn applies mutate to the stored account under WATCH/MULTI,
// re-running the transaction on conflict up to maxTxnAttempts times.
func (s *Store) withAccountTxn(ctx context.Context, owner addr.Address, mutate func(*account.Account) error) error {
	key := accountKey(owner)
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		var acc account.Account
		if err := json.Unmarshal(raw, &acc); err != nil {
			return err
		}
		if err := mutate(&acc); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.storeAccountLocked(ctx, pipe, &acc)
		})
		return err
	}
	var txnErr error
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		txnErr = s.client.Watch(ctx, txn, key)
		if txnErr != redis.TxFailedErr {
			break
		}
	}
	if txnErr != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "account transaction", txnErr)
	}
	return nil
}
