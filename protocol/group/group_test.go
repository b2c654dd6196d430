package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"e2ee/addr"
	"e2ee/apperr"
	"e2ee/crypto/key25519"
	"e2ee/crypto/suite"
)

type participant struct {
	member   Member
	signPair key25519.Pair
}

func newParticipant(t *testing.T, userID string) participant {
	t.Helper()
	agreement, err := key25519.NewPair()
	require.NoError(t, err)
	signing, err := key25519.NewPair()
	require.NoError(t, err)
	return participant{
		member: Member{
			Address:         addr.New(userID, "device-1", "example.org"),
			IdentityPub:     agreement.Pub,
			IdentitySignPub: signing.Pub,
		},
		signPair: *signing,
	}
}

func TestGroupMessageRoundTrip(t *testing.T) {
	s := suite.Default()
	alice := newParticipant(t, "alice")
	bob := newParticipant(t, "bob")
	carol := newParticipant(t, "carol")

	aliceSession, err := Create(s, "group-1", addr.Group("team", "example.org"), "Team", alice.member, []Member{bob.member, carol.member})
	require.NoError(t, err)

	bobSession, err := Join(s, "group-1", aliceSession.GroupAddress, "Team", aliceSession.GroupSeed, bob.member, aliceSession.Members)
	require.NoError(t, err)

	header, ciphertext, signature, err := aliceSession.Encrypt(s, alice.signPair.Priv, []byte("hello team"))
	require.NoError(t, err)

	plaintext, err := bobSession.Decrypt(s, header, ciphertext, signature)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello team"), plaintext)
}

func TestGroupMessageMultipleSendersInterleaved(t *testing.T) {
	s := suite.Default()
	alice := newParticipant(t, "alice")
	bob := newParticipant(t, "bob")

	aliceSession, err := Create(s, "group-2", addr.Group("pair", "example.org"), "Pair", alice.member, []Member{bob.member})
	require.NoError(t, err)
	bobSession, err := Join(s, "group-2", aliceSession.GroupAddress, "Pair", aliceSession.GroupSeed, bob.member, aliceSession.Members)
	require.NoError(t, err)

	h1, c1, sig1, err := aliceSession.Encrypt(s, alice.signPair.Priv, []byte("from alice 1"))
	require.NoError(t, err)
	h2, c2, sig2, err := bobSession.Encrypt(s, bob.signPair.Priv, []byte("from bob 1"))
	require.NoError(t, err)
	h3, c3, sig3, err := aliceSession.Encrypt(s, alice.signPair.Priv, []byte("from alice 2"))
	require.NoError(t, err)

	p1, err := bobSession.Decrypt(s, h1, c1, sig1)
	require.NoError(t, err)
	assert.Equal(t, []byte("from alice 1"), p1)

	p2, err := aliceSession.Decrypt(s, h2, c2, sig2)
	require.NoError(t, err)
	assert.Equal(t, []byte("from bob 1"), p2)

	p3, err := bobSession.Decrypt(s, h3, c3, sig3)
	require.NoError(t, err)
	assert.Equal(t, []byte("from alice 2"), p3)
}

func TestGroupMessageTamperedSignatureFails(t *testing.T) {
	s := suite.Default()
	alice := newParticipant(t, "alice")
	bob := newParticipant(t, "bob")

	aliceSession, err := Create(s, "group-3", addr.Group("pair", "example.org"), "Pair", alice.member, []Member{bob.member})
	require.NoError(t, err)
	bobSession, err := Join(s, "group-3", aliceSession.GroupAddress, "Pair", aliceSession.GroupSeed, bob.member, aliceSession.Members)
	require.NoError(t, err)

	header, ciphertext, signature, err := aliceSession.Encrypt(s, alice.signPair.Priv, []byte("hello"))
	require.NoError(t, err)
	signature[0] ^= 0xff

	_, err = bobSession.Decrypt(s, header, ciphertext, signature)
	require.Error(t, err)
	kind, ok := apperr.Of(err)
	require.True(t, ok)
	assert.Equal(t, apperr.DecryptAuth, kind)
}

func TestMembershipRotationIssuesFreshSeed(t *testing.T) {
	s := suite.Default()
	alice := newParticipant(t, "alice")
	bob := newParticipant(t, "bob")
	carol := newParticipant(t, "carol")

	aliceSession, err := Create(s, "group-4", addr.Group("team", "example.org"), "Team", alice.member, []Member{bob.member})
	require.NoError(t, err)

	rotated, err := RotateForMembershipChange(s, "group-4-2", aliceSession, alice.member, []Member{bob.member, carol.member})
	require.NoError(t, err)

	assert.NotEqual(t, aliceSession.GroupSeed, rotated.GroupSeed)
	assert.Len(t, rotated.Members, 2)

	carolSession, err := Join(s, "group-4-2", rotated.GroupAddress, "Team", rotated.GroupSeed, carol.member, rotated.Members)
	require.NoError(t, err)

	header, ciphertext, signature, err := rotated.Encrypt(s, alice.signPair.Priv, []byte("welcome carol"))
	require.NoError(t, err)
	plaintext, err := carolSession.Decrypt(s, header, ciphertext, signature)
	require.NoError(t, err)
	assert.Equal(t, []byte("welcome carol"), plaintext)
}

func TestLeaveClearsLocalChainState(t *testing.T) {
	s := suite.Default()
	alice := newParticipant(t, "alice")
	bob := newParticipant(t, "bob")

	aliceSession, err := Create(s, "group-5", addr.Group("pair", "example.org"), "Pair", alice.member, []Member{bob.member})
	require.NoError(t, err)

	aliceSession.Leave()
	assert.Nil(t, aliceSession.sendChain)
	assert.Nil(t, aliceSession.recvChains)
}
