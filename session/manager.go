package session

import (
	"context"
	"sync"

	"e2ee/addr"
	"e2ee/apperr"
	"e2ee/crypto/key25519"
	"e2ee/crypto/suite"
	"e2ee/protocol/ratchet"
	"e2ee/protocol/x3dh"
	"e2ee/wire"
)

// Manager resolves (our_address, their_address) to a Session
// (establishing one via X3DH if absent), reconciles concurrent invites,
// dispatches ordinary post-handshake traffic through the ratchet, and
// serializes EstablishOutbound, HandleInboundInvite, EncryptOutbound and
// DecryptInbound on a given our_address so two of that account's
// sessions never ratchet concurrently.
//
// One mutex per our_address (keyed by Address.String()) so unrelated
// accounts never block each other.
type Manager struct {
	store Store

	// graceMillis bounds how long a session superseded by a re-invite
	// stays decryptable: a successful decrypt on its successor unloads
	// it immediately, but absent one it is force-unloaded once this much
	// time has passed since it was superseded.
	graceMillis int64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewManager(store Store, graceMillis int64) *Manager {
	return &Manager{store: store, graceMillis: graceMillis, locks: make(map[string]*sync.Mutex)}
}

func (m *Manager) lockFor(our addr.Address) *sync.Mutex {
	key := our.String()
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// WithLock serializes fn against EstablishOutbound, HandleInboundInvite,
// EncryptOutbound, DecryptInbound and other WithLock calls for the same
// our_address, so different sessions of the same account never ratchet
// concurrently.
func (m *Manager) WithLock(our addr.Address, fn func() error) error {
	lock := m.lockFor(our)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// EstablishOutbound resolves (our_addr, their_addr) to a Session,
// establishing one via X3DH if absent. If a session already exists it is
// returned unchanged; callers that need a fresh session after a
// deliberate re-invite should use HandleInboundInvite's reconciliation
// instead.
//
// EstablishOutbound returns the freshly established session plus the
// X3DH ephemeral public key the caller must carry in the outbound
// InviteMsg as alice_ephemeral_key — the session itself has no further
// use for it once Bob has mirrored the handshake.
func (m *Manager) EstablishOutbound(
	ctx context.Context,
	s suite.Suite,
	our, their addr.Address,
	ourIdentityAgreementPriv key25519.PrivateKey,
	bundle x3dh.PreKeyBundle,
	sessionID string,
	inviteT int64,
) (*Session, key25519.PublicKey, error) {
	lock := m.lockFor(our)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.LoadOutboundSession(ctx, our, their)
	if err != nil {
		return nil, key25519.PublicKey{}, apperr.Wrap(apperr.PersistenceFailure, "load outbound session", err)
	}
	if existing != nil {
		return existing, key25519.PublicKey{}, nil
	}

	result, err := x3dh.InitiateAsAlice(s, ourIdentityAgreementPriv, bundle)
	if err != nil {
		return nil, key25519.PublicKey{}, err
	}
	rat, err := ratchet.InitAlice(s, result.SharedSecret, bundle.SignedPreKey)
	if err != nil {
		return nil, key25519.PublicKey{}, err
	}

	spk := bundle.SignedPreKey
	newSession := &Session{
		SessionID:          sessionID,
		OurAddress:         our,
		TheirAddress:       their,
		BobSignedPreKey:    &spk,
		BobOneTimePreKeyID: result.UsedOPKID,
		Ratchet:            rat,
		InviteT:            inviteT,
	}
	if err := m.store.StoreSession(ctx, newSession); err != nil {
		return nil, key25519.PublicKey{}, apperr.Wrap(apperr.PersistenceFailure, "store new outbound session", err)
	}
	return newSession, result.EphemeralPublicKey, nil
}

// HandleInboundInvite handles receipt of an InviteMsg for an existing
// session: compare invite_t; if new > old, replace, and retain the
// predecessor under its own session_id (rather than dropping it outright)
// so in-flight traffic addressed to it keeps decrypting until
// DecryptInbound observes one successful decrypt on the successor, or
// the grace window elapses, whichever comes first. Returns
// (session, replaced, error); replaced is false when the invite loses
// reconciliation and the prior session is kept as-is. nowMillis is the
// receipt time used to start the predecessor's grace window.
func (m *Manager) HandleInboundInvite(
	ctx context.Context,
	s suite.Suite,
	our addr.Address,
	invite wire.InviteMsg,
	ourIdentityAgreementPriv key25519.PrivateKey,
	ourSignedPreKeyPair key25519.Pair,
	ourOneTimePreKeyPriv *key25519.PrivateKey,
	nowMillis int64,
) (*Session, bool, error) {
	lock := m.lockFor(our)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.LoadOutboundSession(ctx, our, invite.From)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.PersistenceFailure, "load existing session", err)
	}
	if !ShouldReplace(existing, invite.SessionID, invite.InviteT) {
		return existing, false, nil
	}

	sharedSecret, err := x3dh.RespondAsBob(s, x3dh.BobInboundKeys{
		IdentityPriv:  ourIdentityAgreementPriv,
		SignedPreKey:  ourSignedPreKeyPair.Priv,
		OneTimePreKey: ourOneTimePreKeyPriv,
	}, invite.AliceIdentityKey, invite.AliceEphemeralKey)
	if err != nil {
		return nil, false, err
	}

	rat := ratchet.InitBob(s, sharedSecret, ourSignedPreKeyPair)
	aliceIdentityKey := invite.AliceIdentityKey

	newSession := &Session{
		SessionID:        invite.SessionID,
		OurAddress:       our,
		TheirAddress:     invite.From,
		AliceIdentityKey: &aliceIdentityKey,
		Ratchet:          rat,
		InviteT:          invite.InviteT,
		Responded:        true,
	}
	if existing != nil {
		newSession.PredecessorID = existing.SessionID
	}
	if err := m.store.StoreSession(ctx, newSession); err != nil {
		return nil, false, apperr.Wrap(apperr.PersistenceFailure, "store replacement session", err)
	}

	if existing != nil {
		supersededAt := nowMillis
		existing.SupersededAtMillis = &supersededAt
		if err := m.store.RetainPredecessorSession(ctx, existing); err != nil {
			return nil, false, apperr.Wrap(apperr.PersistenceFailure, "retain predecessor session", err)
		}
	}

	return newSession, true, nil
}

// DecryptInbound resolves msg.SessionID to a Session and runs its
// ciphertext through the ratchet under WithLock. If the resolved session
// is a predecessor HandleInboundInvite retained, this call both enforces
// its grace window (forcing UnloadOldSession once nowMillis has moved
// past SupersededAtMillis+graceMillis) and, on a successful decrypt
// against its *successor*, unloads the predecessor immediately — the
// "one successful decrypt" trigger that lets a re-invite settle before
// the grace window would otherwise have expired it.
func (m *Manager) DecryptInbound(ctx context.Context, our addr.Address, msg wire.E2eeMsg, nowMillis int64) ([]byte, error) {
	if msg.Case != wire.PayloadOneToOne || msg.OneToOne == nil {
		return nil, apperr.New(apperr.BadInput, "decrypt inbound: missing one-to-one payload")
	}

	var plaintext []byte
	err := m.WithLock(our, func() error {
		sess, err := m.store.LoadInboundSession(ctx, msg.SessionID, our)
		if err != nil {
			return apperr.Wrap(apperr.PersistenceFailure, "load inbound session", err)
		}
		if sess == nil {
			return apperr.New(apperr.UnknownSession, "no session for this session_id")
		}
		if sess.SupersededAtMillis != nil && nowMillis-*sess.SupersededAtMillis > m.graceMillis {
			if err := m.store.UnloadOldSession(ctx, our, sess.TheirAddress, sess.InviteT); err != nil {
				return apperr.Wrap(apperr.PersistenceFailure, "unload expired predecessor session", err)
			}
			return apperr.New(apperr.UnknownSession, "predecessor session's grace window has elapsed")
		}

		header := ratchet.Header{
			RatchetPub: msg.OneToOne.RatchetKey,
			PN:         msg.OneToOne.PrevChainLen,
			N:          msg.OneToOne.Sequence,
		}
		// saved restores the in-memory ratchet if persisting its advance fails.
		saved := *sess.Ratchet
		pt, err := sess.Ratchet.Decrypt(header, msg.OneToOne.Ciphertext, adContext(our, sess.TheirAddress, msg.SessionID))
		if err != nil {
			return err
		}
		plaintext = pt

		if sess.SupersededAtMillis == nil && sess.PredecessorID != "" {
			predecessor, err := m.store.LoadInboundSession(ctx, sess.PredecessorID, our)
			if err != nil {
				*sess.Ratchet = saved
				return apperr.Wrap(apperr.PersistenceFailure, "load predecessor session", err)
			}
			if predecessor != nil {
				if err := m.store.UnloadOldSession(ctx, our, predecessor.TheirAddress, predecessor.InviteT); err != nil {
					*sess.Ratchet = saved
					return apperr.Wrap(apperr.PersistenceFailure, "unload predecessor session after decrypt", err)
				}
			}
			sess.PredecessorID = ""
		}
		// A retained predecessor is written back without becoming the
		// pair's active session again.
		storeSession := m.store.StoreSession
		if sess.SupersededAtMillis != nil {
			storeSession = m.store.RetainPredecessorSession
		}
		if err := storeSession(ctx, sess); err != nil {
			*sess.Ratchet = saved
			return apperr.Wrap(apperr.PersistenceFailure, "store session after decrypt", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// EncryptOutbound resolves (our, their) to its active Session and
// ratchets plaintext forward into a wire-ready payload, under WithLock
// so concurrent sends for the same our_address never race the ratchet.
func (m *Manager) EncryptOutbound(ctx context.Context, our, their addr.Address, plaintext []byte) (*wire.One2oneMsgPayload, error) {
	var payload *wire.One2oneMsgPayload
	err := m.WithLock(our, func() error {
		sess, err := m.store.LoadOutboundSession(ctx, our, their)
		if err != nil {
			return apperr.Wrap(apperr.PersistenceFailure, "load outbound session", err)
		}
		if sess == nil {
			return apperr.New(apperr.UnknownSession, "no outbound session for this pair")
		}

		// saved restores the in-memory ratchet if persisting its advance fails.
		saved := *sess.Ratchet
		header, ciphertext, err := sess.Ratchet.Encrypt(plaintext, adContext(our, their, sess.SessionID))
		if err != nil {
			return err
		}
		if err := m.store.StoreSession(ctx, sess); err != nil {
			*sess.Ratchet = saved
			return apperr.Wrap(apperr.PersistenceFailure, "store session after encrypt", err)
		}
		payload = &wire.One2oneMsgPayload{
			Sequence:     header.N,
			RatchetKey:   header.RatchetPub,
			PrevChainLen: header.PN,
			Ciphertext:   ciphertext,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// adContext builds the AEAD associated-context suffix every one-to-one
// message is bound to, appended after the ratchet header itself. The
// two addresses are ordered lexicographically rather than as (our,
// their) so the same bytes are produced on both the encrypting and the
// decrypting side of a session, which swap which address is "our".
func adContext(a, b addr.Address, sessionID string) []byte {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return []byte(x + y + sessionID)
}

// QueueOutboundPlaintext buffers (from, to, id, bytes, notif_level)
// until a usable session exists.
func (m *Manager) QueueOutboundPlaintext(ctx context.Context, rec PendingPlaintext) error {
	if err := m.store.EnqueuePendingPlaintext(ctx, rec); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "enqueue pending plaintext", err)
	}
	return nil
}

// DrainOutboundPlaintext returns buffered plaintext for (from, to) in
// FIFO order, for the caller to encrypt and send now that a session
// exists, drained in FIFO order.
func (m *Manager) DrainOutboundPlaintext(ctx context.Context, from, to addr.Address) ([]PendingPlaintext, error) {
	records, err := m.store.DrainPendingPlaintext(ctx, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "drain pending plaintext", err)
	}
	return records, nil
}

// QueueRequest buffers a directory request that is idempotent and
// replayed on reconnect until acknowledged.
func (m *Manager) QueueRequest(ctx context.Context, rec PendingRequest) error {
	if err := m.store.EnqueuePendingRequest(ctx, rec); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "enqueue pending request", err)
	}
	return nil
}

// AckRequest marks a pending request as acknowledged so it is no longer
// replayed on reconnect.
func (m *Manager) AckRequest(ctx context.Context, user addr.Address, requestID string) error {
	if err := m.store.AckPendingRequest(ctx, user, requestID); err != nil {
		return apperr.Wrap(apperr.PersistenceFailure, "ack pending request", err)
	}
	return nil
}

// ReplayPendingRequests returns every not-yet-acknowledged request for
// user, for the caller to resend over the transport port on reconnect.
func (m *Manager) ReplayPendingRequests(ctx context.Context, user addr.Address) ([]PendingRequest, error) {
	records, err := m.store.ListPendingRequests(ctx, user)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "list pending requests", err)
	}
	return records, nil
}

// LoadOutboundSessions loads load_outbound_sessions(our, their_user,
// their_domain): one session per device of the peer user, so an
// outbound plaintext can be encrypted once per device.
func (m *Manager) LoadOutboundSessions(ctx context.Context, our addr.Address, theirUser, theirDomain string) ([]*Session, error) {
	sessions, err := m.store.LoadOutboundSessions(ctx, our, theirUser, theirDomain)
	if err != nil {
		return nil, apperr.Wrap(apperr.PersistenceFailure, "load outbound sessions", err)
	}
	return sessions, nil
}
