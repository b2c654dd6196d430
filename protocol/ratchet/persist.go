package ratchet

import (
	"time"

	"e2ee/crypto/key25519"
	"e2ee/crypto/suite"
)

// SkippedEntry is one retained-but-unconsumed message key, exported for
// persistence adapters that must survive a process restart without
// losing out-of-order delivery tolerance — sessions are
// durable state, not best-effort cache).
type SkippedEntry struct {
	RatchetPub key25519.PublicKey `json:"ratchet_pub"`
	Index      uint32             `json:"index"`
	Key        MsgKey             `json:"key"`
	StoredAt   int64              `json:"stored_at_unix_nano"`
}

// Persisted is the full wire/storage shape of a Ratchet: everything
// Export/Import need to round-trip a session across a restart. The
// suite and clock are re-supplied by the caller on Import, since the
// suite is selected once at session establishment and isn't itself
// part of the persisted state.
type Persisted struct {
	RootKey   [32]byte             `json:"root_key"`
	Dhs       key25519.Pair        `json:"dhs"`
	Dhr       *key25519.PublicKey  `json:"dhr,omitempty"`
	SendChain *ChainKey            `json:"send_chain,omitempty"`
	RecvChain *ChainKey            `json:"recv_chain,omitempty"`
	Ns        uint32               `json:"ns"`
	Nr        uint32               `json:"nr"`
	PN        uint32               `json:"pn"`
	Skipped   []SkippedEntry       `json:"skipped,omitempty"`
}

// PackID reports the cipher suite pack id this ratchet was established
// under, needed by persistence adapters to re-resolve the suite on
// Import.
func (r *Ratchet) PackID() string { return r.suite.PackID() }

// Export snapshots the ratchet into its persistable form.
func (r *Ratchet) Export() Persisted {
	p := Persisted{
		RootKey:   r.RootKey,
		Dhs:       r.Dhs,
		Ns:        r.Ns,
		Nr:        r.Nr,
		PN:        r.PN,
		Skipped:   make([]SkippedEntry, 0, r.skipped.Len()),
	}
	if r.Dhr != nil {
		dhr := *r.Dhr
		p.Dhr = &dhr
	}
	if r.SendChain != nil {
		sc := *r.SendChain
		p.SendChain = &sc
	}
	if r.RecvChain != nil {
		rc := *r.RecvChain
		p.RecvChain = &rc
	}
	for k, entry := range r.skipped.entries {
		p.Skipped = append(p.Skipped, SkippedEntry{
			RatchetPub: k.pub,
			Index:      k.index,
			Key:        entry.key,
			StoredAt:   entry.storedAt.UnixNano(),
		})
	}
	return p
}

// Import rebuilds a Ratchet from its persisted form against the given
// suite (and optional clock override), restoring every skipped key.
func Import(s suite.Suite, p Persisted, opts ...Option) *Ratchet {
	r := newRatchet(s, opts)
	r.RootKey = p.RootKey
	r.Dhs = p.Dhs
	if p.Dhr != nil {
		dhr := *p.Dhr
		r.Dhr = &dhr
	}
	if p.SendChain != nil {
		sc := *p.SendChain
		r.SendChain = &sc
	}
	if p.RecvChain != nil {
		rc := *p.RecvChain
		r.RecvChain = &rc
	}
	for _, entry := range p.Skipped {
		r.skipped.Store(entry.RatchetPub, entry.Index, entry.Key, time.Unix(0, entry.StoredAt))
	}
	return r
}
