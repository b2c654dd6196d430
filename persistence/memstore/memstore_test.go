package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"e2ee/account"
	"e2ee/addr"
	"e2ee/crypto/suite"
	"e2ee/protocol/group"
	"e2ee/session"
)

func TestAccountStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := suite.Default()
	store := New()
	address := addr.New("alice", "device-1", "example.org")

	acc, err := account.CreateAccount(ctx, store, s, address, 1000)
	require.NoError(t, err)
	require.True(t, acc.Saved)

	loaded, err := store.LoadAccountByAddress(ctx, address)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, acc.IdentityKey.AsymKeyPair.Pub, loaded.IdentityKey.AsymKeyPair.Pub)
	assert.Len(t, loaded.OneTimePreKeys, account.DefaultOPKBatchSize)
}

func TestConsumeOneTimePreKeyIsOneShot(t *testing.T) {
	ctx := context.Background()
	s := suite.Default()
	store := New()
	address := addr.New("bob", "device-1", "example.org")

	acc, err := account.CreateAccount(ctx, store, s, address, 1000)
	require.NoError(t, err)
	targetID := acc.OneTimePreKeys[0].ID

	first, err := store.ConsumeOneTimePreKey(ctx, address, targetID)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := store.ConsumeOneTimePreKey(ctx, address, targetID)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestConsumeOneTimePreKeyIsRaceFree(t *testing.T) {
	ctx := context.Background()
	s := suite.Default()
	store := New()
	address := addr.New("carol", "device-1", "example.org")

	acc, err := account.CreateAccount(ctx, store, s, address, 1000)
	require.NoError(t, err)
	targetID := acc.OneTimePreKeys[0].ID

	var wg sync.WaitGroup
	results := make([]*account.OneTimePreKey, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opk, err := store.ConsumeOneTimePreKey(ctx, address, targetID)
			require.NoError(t, err)
			results[i] = opk
		}(i)
	}
	wg.Wait()

	won := 0
	for _, r := range results {
		if r != nil {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent consumer should receive the one-time pre-key")
}

func TestSessionStoreUnloadOldSessionKeepsNewerReplacement(t *testing.T) {
	ctx := context.Background()
	store := New()
	our := addr.New("alice", "device-1", "example.org")
	their := addr.New("bob", "device-1", "example.org")

	original := &session.Session{SessionID: "s1", OurAddress: our, TheirAddress: their, InviteT: 100}
	require.NoError(t, store.StoreSession(ctx, original))

	replacement := &session.Session{SessionID: "s2", OurAddress: our, TheirAddress: their, InviteT: 200}
	require.NoError(t, store.StoreSession(ctx, replacement))

	// Unloading by the original's invite_t must not evict the
	// replacement that has since taken its place.
	require.NoError(t, store.UnloadOldSession(ctx, our, their, original.InviteT))

	loaded, err := store.LoadOutboundSession(ctx, our, their)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "s2", loaded.SessionID)
}

func TestPendingPlaintextDrainIsFIFOAndOneShot(t *testing.T) {
	ctx := context.Background()
	store := New()
	from := addr.New("alice", "device-1", "example.org")
	to := addr.New("bob", "device-1", "example.org")

	require.NoError(t, store.EnqueuePendingPlaintext(ctx, session.PendingPlaintext{From: from, To: to, PendingID: "1"}))
	require.NoError(t, store.EnqueuePendingPlaintext(ctx, session.PendingPlaintext{From: from, To: to, PendingID: "2"}))

	drained, err := store.DrainPendingPlaintext(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, drained, 2)
	assert.Equal(t, "1", drained[0].PendingID)
	assert.Equal(t, "2", drained[1].PendingID)

	again, err := store.DrainPendingPlaintext(ctx, from, to)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestPendingRequestAckRemovesOnlyThatRequest(t *testing.T) {
	ctx := context.Background()
	store := New()
	user := addr.New("alice", "device-1", "example.org")

	require.NoError(t, store.EnqueuePendingRequest(ctx, session.PendingRequest{UserAddr: user, RequestID: "r1"}))
	require.NoError(t, store.EnqueuePendingRequest(ctx, session.PendingRequest{UserAddr: user, RequestID: "r2"}))
	require.NoError(t, store.AckPendingRequest(ctx, user, "r1"))

	remaining, err := store.ListPendingRequests(ctx, user)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "r2", remaining[0].RequestID)
}

func TestGroupSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()
	owner := addr.New("alice", "device-1", "example.org")

	gs := &group.Session{SessionID: "g1", GroupAddress: addr.Group("team", "example.org")}
	require.NoError(t, store.StoreGroupSession(ctx, owner, gs))

	loaded, err := store.LoadGroupSession(ctx, owner, "g1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "g1", loaded.SessionID)

	require.NoError(t, store.UnloadGroupSession(ctx, owner, "g1"))
	loaded, err = store.LoadGroupSession(ctx, owner, "g1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
