package memstore

import (
	"context"

	"e2ee/account"
	"e2ee/addr"
)

func (s *Store) LoadAccountByAddress(ctx context.Context, address addr.Address) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[address.String()]
	if !ok {
		return nil, nil
	}
	clone := *acc
	clone.OneTimePreKeys = append([]account.OneTimePreKey(nil), acc.OneTimePreKeys...)
	return &clone, nil
}

func (s *Store) StoreAccount(ctx context.Context, acc *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *acc
	clone.OneTimePreKeys = append([]account.OneTimePreKey(nil), acc.OneTimePreKeys...)
	s.accounts[acc.Address.String()] = &clone
	return nil
}

func (s *Store) UpdateSignedPreKey(ctx context.Context, owner addr.Address, spk account.SignedPreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[owner.String()]
	if !ok {
		return nil
	}
	previous := acc.CurrentSignedPreKey
	acc.PreviousSignedPreKey = &previous
	acc.CurrentSignedPreKey = spk
	return nil
}

func (s *Store) RemoveExpiredSignedPreKey(ctx context.Context, owner addr.Address, spkID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[owner.String()]
	if !ok {
		return nil
	}
	if acc.PreviousSignedPreKey != nil && acc.PreviousSignedPreKey.ID == spkID {
		acc.PreviousSignedPreKey = nil
	}
	return nil
}

func (s *Store) AddOneTimePreKeys(ctx context.Context, owner addr.Address, keys []account.OneTimePreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[owner.String()]
	if !ok {
		return nil
	}
	acc.OneTimePreKeys = append(acc.OneTimePreKeys, keys...)
	return nil
}

func (s *Store) RemoveOneTimePreKey(ctx context.Context, owner addr.Address, opkID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[owner.String()]
	if !ok {
		return nil
	}
	kept := acc.OneTimePreKeys[:0]
	for _, opk := range acc.OneTimePreKeys {
		if opk.ID != opkID {
			kept = append(kept, opk)
		}
	}
	acc.OneTimePreKeys = kept
	return nil
}

// ConsumeOneTimePreKey implements the transactional take-then-delete CAS
// account.Store requires: the whole read-modify-write runs under s.mu,
// so two concurrent callers can never both receive the same OPK.
func (s *Store) ConsumeOneTimePreKey(ctx context.Context, owner addr.Address, opkID uint32) (*account.OneTimePreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[owner.String()]
	if !ok {
		return nil, nil
	}
	for i := range acc.OneTimePreKeys {
		opk := &acc.OneTimePreKeys[i]
		if opk.ID != opkID || opk.Used {
			continue
		}
		result := *opk
		opk.Used = true
		opk.Pair.Priv = [32]byte{}
		return &result, nil
	}
	return nil, nil
}
