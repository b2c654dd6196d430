package account

import (
	"context"

	"e2ee/addr"
	"e2ee/apperr"
	"e2ee/crypto/suite"
)

// DefaultOPKBatchSize is the N=100 one-time pre-keys generated at
// registration
const DefaultOPKBatchSize = 100

// CreateAccount generates an identity key pair, an initial signed
// pre-key (signed by the identity sign-key), and a batch of one-time
// pre-keys.
func CreateAccount(ctx context.Context, store Store, s suite.Suite, address addr.Address, nowMillis int64) (*Account, error) {
	asymPair, err := s.GenerateKeyPair()
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "generate identity agreement key", err)
	}
	signPair, err := s.GenerateKeyPair()
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "generate identity signing key", err)
	}

	spk, err := newSignedPreKey(s, signPair.Priv, 1, nowMillis)
	if err != nil {
		return nil, err
	}

	// OPK ids start at 1: id 0 means "no one-time pre-key" on the wire.
	opks, err := generateOneTimePreKeys(s, 1, DefaultOPKBatchSize)
	if err != nil {
		return nil, err
	}

	acc := &Account{
		Version: "1",
		Saved:   false,
		Address: address,
		PackID:  s.PackID(),
		IdentityKey: IdentityKey{
			AsymKeyPair: *asymPair,
			SignKeyPair: *signPair,
		},
		CurrentSignedPreKey: *spk,
		OneTimePreKeys:      opks,
		NextOneTimePreKeyID: 1 + uint32(len(opks)),
	}

	if err := store.StoreAccount(ctx, acc); err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "store new account", err)
	}
	acc.Saved = true
	return acc, nil
}

func newSignedPreKey(s suite.Suite, signPriv [32]byte, id uint32, nowMillis int64) (*SignedPreKey, error) {
	pair, err := s.GenerateKeyPair()
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "generate signed pre-key", err)
	}
	sig, err := s.Sign(signPriv, pair.Pub[:])
	if err != nil {
		return nil, apperr.Wrap(apperr.BadInput, "sign pre-key", err)
	}
	return &SignedPreKey{ID: id, KeyPair: *pair, Signature: sig, CreatedAt: nowMillis}, nil
}

func generateOneTimePreKeys(s suite.Suite, startID uint32, count int) ([]OneTimePreKey, error) {
	out := make([]OneTimePreKey, 0, count)
	for i := 0; i < count; i++ {
		pair, err := s.GenerateKeyPair()
		if err != nil {
			return nil, apperr.Wrap(apperr.BadInput, "generate one-time pre-key", err)
		}
		out = append(out, OneTimePreKey{ID: startID + uint32(i), Pair: *pair})
	}
	return out, nil
}

// PublishSignedPreKey rotates the SPK, retaining the previous one
// until RemoveExpiredSignedPreKey is called.
func PublishSignedPreKey(ctx context.Context, store Store, s suite.Suite, acc *Account, nowMillis int64) error {
	next, err := newSignedPreKey(s, acc.IdentityKey.SignKeyPair.Priv, acc.CurrentSignedPreKey.ID+1, nowMillis)
	if err != nil {
		return err
	}

	previous := acc.CurrentSignedPreKey
	if err := store.UpdateSignedPreKey(ctx, acc.Address, *next); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "update signed pre-key", err)
	}

	acc.PreviousSignedPreKey = &previous
	acc.CurrentSignedPreKey = *next
	return nil
}

// RemoveExpiredSignedPreKey evicts the retained previous SPK once all
// sessions that depend on it have completed.
func RemoveExpiredSignedPreKey(ctx context.Context, store Store, acc *Account) error {
	if acc.PreviousSignedPreKey == nil {
		return nil
	}
	if err := store.RemoveExpiredSignedPreKey(ctx, acc.Address, acc.PreviousSignedPreKey.ID); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "remove expired signed pre-key", err)
	}
	acc.PreviousSignedPreKey = nil
	return nil
}

// ReplenishThreshold is the pool size below which SupplyOneTimePreKeys
// should be called again.
const ReplenishThreshold = 20

// SupplyOneTimePreKeys generates k new OPKs starting at
// next_one_time_pre_key_id and advances the counter.
func SupplyOneTimePreKeys(ctx context.Context, store Store, s suite.Suite, acc *Account, k int) error {
	fresh, err := generateOneTimePreKeys(s, acc.NextOneTimePreKeyID, k)
	if err != nil {
		return err
	}
	if err := store.AddOneTimePreKeys(ctx, acc.Address, fresh); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "add one-time pre-keys", err)
	}
	acc.OneTimePreKeys = append(acc.OneTimePreKeys, fresh...)
	acc.NextOneTimePreKeyID += uint32(k)
	return nil
}

// NeedsReplenishment reports whether the unused OPK pool has dropped
// below ReplenishThreshold.
func (a *Account) NeedsReplenishment() bool {
	unused := 0
	for _, opk := range a.OneTimePreKeys {
		if !opk.Used {
			unused++
		}
	}
	return unused < ReplenishThreshold
}

// ConsumeOneTimePreKey returns then deletes the OPK's private half from
// the store and from memory: a used OPK's private half is erased from
// both. Returns (nil, nil) if the OPK was already consumed —
// OpkAlreadyConsumed does not abort the caller's session.
func ConsumeOneTimePreKey(ctx context.Context, store Store, acc *Account, opkID uint32) (*KeyPair, error) {
	opk, err := store.ConsumeOneTimePreKey(ctx, acc.Address, opkID)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "consume one-time pre-key", err)
	}
	if opk == nil {
		return nil, nil
	}
	for i := range acc.OneTimePreKeys {
		if acc.OneTimePreKeys[i].ID == opkID {
			acc.OneTimePreKeys[i].Used = true
			acc.OneTimePreKeys[i].Pair.Priv = [32]byte{} // erase private half from memory
			break
		}
	}
	pair := opk.Pair
	return &pair, nil
}
