package group

import "e2ee/addr"

// Persisted is the full storage shape of a group Session: its unexported
// chain state made explicit so persistence adapters can round-trip a
// session across a restart. Group sessions are durable state, not a
// best-effort cache, the same as one-to-one sessions.
type Persisted struct {
	SessionID    string            `json:"session_id"`
	GroupAddress string            `json:"group_address"`
	GroupName    string            `json:"group_name"`
	GroupSeed    [32]byte          `json:"group_seed"`
	Members      []Member          `json:"members"`
	Self         Member            `json:"self"`
	SendChain    *ChainKey         `json:"send_chain,omitempty"`
	RecvChains   map[string]ChainKey `json:"recv_chains,omitempty"`
}

// Export snapshots a Session into its persistable form. GroupAddress is
// the caller's responsibility to re-synthesize on Import via addr.Group,
// since addr.Address round-trips through its own JSON tags already.
func (gs *Session) Export() Persisted {
	p := Persisted{
		SessionID: gs.SessionID,
		GroupName: gs.GroupName,
		GroupSeed: gs.GroupSeed,
		Members:   append([]Member(nil), gs.Members...),
		Self:      gs.Self,
	}
	if gs.sendChain != nil {
		sc := *gs.sendChain
		p.SendChain = &sc
	}
	if len(gs.recvChains) > 0 {
		p.RecvChains = make(map[string]ChainKey, len(gs.recvChains))
		for k, v := range gs.recvChains {
			p.RecvChains[k] = *v
		}
	}
	return p
}

// Import rebuilds a Session from its persisted form. groupAddress is
// supplied by the caller (not round-tripped through Persisted) since it
// is derivable from SessionID/GroupName in most deployments, and its
// exact construction is left to the directory layer.
func Import(p Persisted, groupAddress addr.Address) *Session {
	gs := &Session{
		SessionID:    p.SessionID,
		GroupAddress: groupAddress,
		GroupName:    p.GroupName,
		GroupSeed:    p.GroupSeed,
		Members:      append([]Member(nil), p.Members...),
		Self:         p.Self,
	}
	if p.SendChain != nil {
		sc := *p.SendChain
		gs.sendChain = &sc
	}
	gs.recvChains = make(map[string]*ChainKey, len(p.RecvChains))
	for k, v := range p.RecvChains {
		cv := v
		gs.recvChains[k] = &cv
	}
	return gs
}
