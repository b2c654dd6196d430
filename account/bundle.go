package account

import "e2ee/protocol/x3dh"

// PreKeyBundle packages this account's published keys into the tuple an
// initiator consumes to open a session, optionally attaching one
// one-time pre-key.
func (a *Account) PreKeyBundle(opk *OneTimePreKey) x3dh.PreKeyBundle {
	b := x3dh.PreKeyBundle{
		IdentityAgreementKey: a.IdentityKey.AsymKeyPair.Pub,
		IdentitySignKey:      a.IdentityKey.SignKeyPair.Pub,
		SignedPreKey:         a.CurrentSignedPreKey.KeyPair.Pub,
		SPKSignature:         a.CurrentSignedPreKey.Signature,
		SPKID:                a.CurrentSignedPreKey.ID,
	}
	if opk != nil {
		pub := opk.Pair.Pub
		b.OneTimePreKey = &pub
		b.OPKID = opk.ID
	}
	return b
}
