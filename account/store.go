package account

import (
	"context"

	"e2ee/addr"
)

// Store is the narrow persistence port account operations depend on.
// Defined consumer-side so persistence adapters can implement it
// without this package importing them back.
type Store interface {
	LoadAccountByAddress(ctx context.Context, address addr.Address) (*Account, error)
	StoreAccount(ctx context.Context, account *Account) error
	UpdateSignedPreKey(ctx context.Context, owner addr.Address, spk SignedPreKey) error
	RemoveExpiredSignedPreKey(ctx context.Context, owner addr.Address, spkID uint32) error
	AddOneTimePreKeys(ctx context.Context, owner addr.Address, keys []OneTimePreKey) error
	RemoveOneTimePreKey(ctx context.Context, owner addr.Address, opkID uint32) error
	// ConsumeOneTimePreKey returns then deletes the OPK atomically
	// (transactional CAS at the persistence boundary). Returns (nil,
	// nil) if already consumed or absent.
	ConsumeOneTimePreKey(ctx context.Context, owner addr.Address, opkID uint32) (*OneTimePreKey, error)
}
