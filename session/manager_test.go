package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"e2ee/addr"
	"e2ee/apperr"
	"e2ee/crypto/key25519"
	"e2ee/crypto/suite"
	"e2ee/protocol/ratchet"
	"e2ee/protocol/x3dh"
	"e2ee/wire"
)

// fakeStore is a minimal in-memory session.Store stand-in for these
// tests, keyed by (our, session_id) like persistence/memstore (the real
// adapter) rather than by the mutable (our, their) pair, so a
// predecessor retained across a re-invite stays independently
// addressable once the (our, their) pointer moves on to its successor.
type fakeStore struct {
	mu               sync.Mutex
	sessions         map[string]*Session // keyed by sessionKey(our, session_id)
	current          map[string]string   // keyed by pairKey(our, their); value is the active session_id
	old              map[string]string   // keyed by oldKey(our, their, invite_t); value is the retained session_id
	pendingPlaintext map[string][]PendingPlaintext
	pendingRequests  map[string][]PendingRequest
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:         make(map[string]*Session),
		current:          make(map[string]string),
		old:              make(map[string]string),
		pendingPlaintext: make(map[string][]PendingPlaintext),
		pendingRequests:  make(map[string][]PendingRequest),
	}
}

func pairKey(our, their addr.Address) string { return our.String() + "|" + their.String() }

func sessionKey(our addr.Address, sessionID string) string { return our.String() + "|" + sessionID }

func oldKey(our, their addr.Address, inviteT int64) string {
	return fmt.Sprintf("%s|%d", pairKey(our, their), inviteT)
}

func (f *fakeStore) LoadInboundSession(ctx context.Context, sessionID string, our addr.Address) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[sessionKey(our, sessionID)], nil
}

func (f *fakeStore) LoadOutboundSession(ctx context.Context, our, their addr.Address) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.current[pairKey(our, their)]
	if !ok {
		return nil, nil
	}
	return f.sessions[sessionKey(our, id)], nil
}

func (f *fakeStore) LoadOutboundSessions(ctx context.Context, our addr.Address, theirUser, theirDomain string) ([]*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Session
	for pair, id := range f.current {
		s, ok := f.sessions[sessionKey(our, id)]
		if !ok || pair != pairKey(our, s.TheirAddress) {
			continue
		}
		if s.TheirAddress.UserID == theirUser && s.TheirAddress.Domain == theirDomain {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) StoreSession(ctx context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionKey(s.OurAddress, s.SessionID)] = s
	f.current[pairKey(s.OurAddress, s.TheirAddress)] = s.SessionID
	return nil
}

func (f *fakeStore) RetainPredecessorSession(ctx context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionKey(s.OurAddress, s.SessionID)] = s
	f.old[oldKey(s.OurAddress, s.TheirAddress, s.InviteT)] = s.SessionID
	return nil
}

func (f *fakeStore) UnloadSession(ctx context.Context, our, their addr.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.current[pairKey(our, their)]
	if !ok {
		return nil
	}
	delete(f.sessions, sessionKey(our, id))
	delete(f.current, pairKey(our, their))
	return nil
}

func (f *fakeStore) UnloadOldSession(ctx context.Context, our, their addr.Address, inviteT int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := oldKey(our, their, inviteT)
	id, ok := f.old[key]
	if !ok {
		return nil
	}
	delete(f.sessions, sessionKey(our, id))
	delete(f.old, key)
	return nil
}

func (f *fakeStore) EnqueuePendingPlaintext(ctx context.Context, rec PendingPlaintext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey(rec.From, rec.To)
	f.pendingPlaintext[key] = append(f.pendingPlaintext[key], rec)
	return nil
}

func (f *fakeStore) DrainPendingPlaintext(ctx context.Context, from, to addr.Address) ([]PendingPlaintext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey(from, to)
	records := f.pendingPlaintext[key]
	delete(f.pendingPlaintext, key)
	return records, nil
}

func (f *fakeStore) EnqueuePendingRequest(ctx context.Context, rec PendingRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rec.UserAddr.String()
	f.pendingRequests[key] = append(f.pendingRequests[key], rec)
	return nil
}

func (f *fakeStore) AckPendingRequest(ctx context.Context, user addr.Address, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := user.String()
	kept := f.pendingRequests[key][:0]
	for _, rec := range f.pendingRequests[key] {
		if rec.RequestID != requestID {
			kept = append(kept, rec)
		}
	}
	f.pendingRequests[key] = kept
	return nil
}

func (f *fakeStore) ListPendingRequests(ctx context.Context, user addr.Address) ([]PendingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingRequests[user.String()], nil
}

func newIdentity(t *testing.T) (key25519.Pair, key25519.Pair) {
	t.Helper()
	agreement, err := key25519.NewPair()
	require.NoError(t, err)
	signing, err := key25519.NewPair()
	require.NoError(t, err)
	return *agreement, *signing
}

func TestEstablishOutboundThenHandleInboundInviteAgreeOnRatchet(t *testing.T) {
	s := suite.Default()
	ctx := context.Background()

	aliceAddr := addr.New("alice", "device-1", "example.org")
	bobAddr := addr.New("bob", "device-1", "example.org")

	aliceIdentity, _ := newIdentity(t)
	bobIdentity, bobSign := newIdentity(t)
	bobSPK, err := key25519.NewPair()
	require.NoError(t, err)
	sig, err := s.Sign(bobSign.Priv, bobSPK.Pub[:])
	require.NoError(t, err)

	bundle := x3dh.PreKeyBundle{
		IdentityAgreementKey: bobIdentity.Pub,
		IdentitySignKey:      bobSign.Pub,
		SignedPreKey:         bobSPK.Pub,
		SPKSignature:         sig,
		SPKID:                1,
	}

	aliceStore := newFakeStore()
	aliceManager := NewManager(aliceStore, 30_000)

	aliceSession, aliceEphemeralPub, err := aliceManager.EstablishOutbound(ctx, s, aliceAddr, bobAddr, aliceIdentity.Priv, bundle, "session-1", 1000)
	require.NoError(t, err)
	require.NotNil(t, aliceSession.Ratchet)

	invite := wire.InviteMsg{
		From:              aliceAddr,
		To:                bobAddr,
		AliceIdentityKey:  aliceIdentity.Pub,
		AliceEphemeralKey: aliceEphemeralPub,
		SessionID:         "session-1",
		InviteT:           1000,
	}

	bobStore := newFakeStore()
	bobManager := NewManager(bobStore, 30_000)

	bobSession, replaced, err := bobManager.HandleInboundInvite(ctx, s, bobAddr, invite, bobIdentity.Priv, *bobSPK, nil, 1000)
	require.NoError(t, err)
	assert.True(t, replaced)
	require.NotNil(t, bobSession.Ratchet)

	// Alice's shared secret derivation and Bob's must agree: a message
	// encrypted on one side decrypts cleanly on the other.
	ctxBytes := []byte("conversation")
	header, ciphertext, err := aliceSession.Ratchet.Encrypt([]byte("hello bob"), ctxBytes)
	require.NoError(t, err)
	plaintext, err := bobSession.Ratchet.Decrypt(*header, ciphertext, ctxBytes)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello bob"), plaintext)
}

func TestShouldReplaceReconciliation(t *testing.T) {
	older := &Session{SessionID: "aaa", InviteT: 100}

	assert.True(t, ShouldReplace(nil, "anything", 1))
	assert.True(t, ShouldReplace(older, "bbb", 200))
	assert.False(t, ShouldReplace(older, "bbb", 50))
	// Tie on invite_t: lexicographically larger session_id wins.
	assert.True(t, ShouldReplace(older, "zzz", 100))
	assert.False(t, ShouldReplace(older, "aaa", 100))
}

func TestPendingPlaintextQueueDrainsFIFO(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	manager := NewManager(store, 30_000)

	from := addr.New("alice", "device-1", "example.org")
	to := addr.New("bob", "device-1", "example.org")

	require.NoError(t, manager.QueueOutboundPlaintext(ctx, PendingPlaintext{From: from, To: to, PendingID: "1", Bytes: []byte("first")}))
	require.NoError(t, manager.QueueOutboundPlaintext(ctx, PendingPlaintext{From: from, To: to, PendingID: "2", Bytes: []byte("second")}))

	drained, err := manager.DrainOutboundPlaintext(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, drained, 2)
	assert.Equal(t, "1", drained[0].PendingID)
	assert.Equal(t, "2", drained[1].PendingID)

	drainedAgain, err := manager.DrainOutboundPlaintext(ctx, from, to)
	require.NoError(t, err)
	assert.Empty(t, drainedAgain)
}

func TestPendingRequestReplayUntilAcked(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	manager := NewManager(store, 30_000)
	user := addr.New("alice", "device-1", "example.org")

	require.NoError(t, manager.QueueRequest(ctx, PendingRequest{UserAddr: user, RequestID: "req-1", RequestType: "publish-spk"}))

	pending, err := manager.ReplayPendingRequests(ctx, user)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, manager.AckRequest(ctx, user, "req-1"))

	pending, err = manager.ReplayPendingRequests(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// bobIdentityFixture bundles together everything needed to run X3DH
// against a fixed bob identity more than once, so a test can re-invite
// with a fresh ephemeral key while bob's long-term keys stay put.
type bobIdentityFixture struct {
	identity key25519.Pair
	bundle   x3dh.PreKeyBundle
	spk      key25519.Pair
}

func newBobIdentityFixture(t *testing.T, s suite.Suite) bobIdentityFixture {
	t.Helper()
	identity, sign := newIdentity(t)
	spk, err := key25519.NewPair()
	require.NoError(t, err)
	sig, err := s.Sign(sign.Priv, spk.Pub[:])
	require.NoError(t, err)
	return bobIdentityFixture{
		identity: identity,
		bundle: x3dh.PreKeyBundle{
			IdentityAgreementKey: identity.Pub,
			IdentitySignKey:      sign.Pub,
			SignedPreKey:         spk.Pub,
			SPKSignature:         sig,
			SPKID:                1,
		},
		spk: *spk,
	}
}

// handshake runs a fresh X3DH exchange and has bob reconcile it through
// HandleInboundInvite, returning both sides' view of the resulting
// session plus whether it replaced an existing one.
func handshake(
	t *testing.T, s suite.Suite,
	aliceStore *fakeStore, aliceIdentity key25519.Pair, aliceAddr, bobAddr addr.Address,
	bob bobIdentityFixture, bobManager *Manager,
	sessionID string, inviteT int64,
) (*Session, *Session, bool) {
	t.Helper()
	ctx := context.Background()

	result, err := x3dh.InitiateAsAlice(s, aliceIdentity.Priv, bob.bundle)
	require.NoError(t, err)
	rat, err := ratchet.InitAlice(s, result.SharedSecret, bob.bundle.SignedPreKey)
	require.NoError(t, err)

	spk := bob.bundle.SignedPreKey
	aliceSession := &Session{
		SessionID:          sessionID,
		OurAddress:         aliceAddr,
		TheirAddress:       bobAddr,
		BobSignedPreKey:    &spk,
		BobOneTimePreKeyID: result.UsedOPKID,
		Ratchet:            rat,
		InviteT:            inviteT,
	}
	require.NoError(t, aliceStore.StoreSession(ctx, aliceSession))

	invite := wire.InviteMsg{
		From:              aliceAddr,
		To:                bobAddr,
		AliceIdentityKey:  aliceIdentity.Pub,
		AliceEphemeralKey: result.EphemeralPublicKey,
		SessionID:         sessionID,
		InviteT:           inviteT,
	}
	bobSession, replaced, err := bobManager.HandleInboundInvite(ctx, s, bobAddr, invite, bob.identity.Priv, bob.spk, nil, inviteT)
	require.NoError(t, err)

	return aliceSession, bobSession, replaced
}

func TestReInviteSuccessfulDecryptOnSuccessorUnloadsPredecessor(t *testing.T) {
	s := suite.Default()
	ctx := context.Background()

	aliceAddr := addr.New("alice", "device-1", "example.org")
	bobAddr := addr.New("bob", "device-1", "example.org")
	aliceIdentity, _ := newIdentity(t)
	bob := newBobIdentityFixture(t, s)

	aliceStore := newFakeStore()
	aliceManager := NewManager(aliceStore, 30_000)
	bobStore := newFakeStore()
	bobManager := NewManager(bobStore, 30_000)

	_, _, replaced := handshake(t, s, aliceStore, aliceIdentity, aliceAddr, bobAddr, bob, bobManager, "session-1", 1000)
	require.True(t, replaced)

	_, bobSession2, replaced := handshake(t, s, aliceStore, aliceIdentity, aliceAddr, bobAddr, bob, bobManager, "session-2", 2000)
	require.True(t, replaced)
	assert.Equal(t, "session-1", bobSession2.PredecessorID)

	// The predecessor is still reachable right after the re-invite.
	predecessor, err := bobStore.LoadInboundSession(ctx, "session-1", bobAddr)
	require.NoError(t, err)
	require.NotNil(t, predecessor)
	require.NotNil(t, predecessor.SupersededAtMillis)

	payload, err := aliceManager.EncryptOutbound(ctx, aliceAddr, bobAddr, []byte("hello again"))
	require.NoError(t, err)

	msg := wire.E2eeMsg{SessionID: "session-2", Case: wire.PayloadOneToOne, OneToOne: payload}
	plaintext, err := bobManager.DecryptInbound(ctx, bobAddr, msg, 2100)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello again"), plaintext)

	// One successful decrypt on the successor unloads the predecessor
	// immediately, well inside the grace window.
	predecessor, err = bobStore.LoadInboundSession(ctx, "session-1", bobAddr)
	require.NoError(t, err)
	assert.Nil(t, predecessor)
}

func TestReInvitePredecessorExpiresAfterGraceWindow(t *testing.T) {
	s := suite.Default()
	ctx := context.Background()

	aliceAddr := addr.New("alice", "device-1", "example.org")
	bobAddr := addr.New("bob", "device-1", "example.org")
	aliceIdentity, _ := newIdentity(t)
	bob := newBobIdentityFixture(t, s)

	aliceStore := newFakeStore()
	bobStore := newFakeStore()
	bobManager := NewManager(bobStore, 30_000) // 30s grace window

	_, _, replaced := handshake(t, s, aliceStore, aliceIdentity, aliceAddr, bobAddr, bob, bobManager, "session-1", 1000)
	require.True(t, replaced)

	_, bobSession2, replaced := handshake(t, s, aliceStore, aliceIdentity, aliceAddr, bobAddr, bob, bobManager, "session-2", 2000)
	require.True(t, replaced)
	require.Equal(t, "session-1", bobSession2.PredecessorID)

	predecessor, err := bobStore.LoadInboundSession(ctx, "session-1", bobAddr)
	require.NoError(t, err)
	require.NotNil(t, predecessor)
	supersededAt := *predecessor.SupersededAtMillis

	// Once nowMillis has moved past supersededAt+graceMillis, the
	// predecessor is force-unloaded and reports UnknownSession.
	pastGrace := supersededAt + 30_000 + 1
	expiredMsg := wire.E2eeMsg{SessionID: "session-1", Case: wire.PayloadOneToOne, OneToOne: &wire.One2oneMsgPayload{}}
	_, err = bobManager.DecryptInbound(ctx, bobAddr, expiredMsg, pastGrace)
	require.Error(t, err)
	kind, ok := apperr.Of(err)
	require.True(t, ok)
	assert.Equal(t, apperr.UnknownSession, kind)

	predecessor, err = bobStore.LoadInboundSession(ctx, "session-1", bobAddr)
	require.NoError(t, err)
	assert.Nil(t, predecessor)
}

func TestWithLockSerializesPerAddress(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(store, 30_000)
	addrA := addr.New("alice", "device-1", "example.org")

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = manager.WithLock(addrA, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, counter)
}
