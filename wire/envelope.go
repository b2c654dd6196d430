package wire

// EnvelopeKind discriminates Envelope's payload, mirroring its
// PayloadCase tagged-variant pattern at the transport layer: every
// message this repo puts on the wire (not just E2eeMsg's one-to-one/
// group split) travels inside one Envelope so transport.Port has a
// single type to send and subscribe on.
type EnvelopeKind int

const (
	EnvelopeInvite EnvelopeKind = iota
	EnvelopeAccept
	EnvelopeE2ee
	EnvelopeResponse
	EnvelopeGroupPreKeyBundle
)

// Envelope is the outermost transport-layer wrapper. Exactly one of the
// pointer fields matching Kind is populated.
type Envelope struct {
	Kind        EnvelopeKind       `json:"kind"`
	Invite      *InviteMsg         `json:"invite,omitempty"`
	Accept      *AcceptMsg         `json:"accept,omitempty"`
	E2ee        *E2eeMsg           `json:"e2ee,omitempty"`
	Response    *Response          `json:"response,omitempty"`
	GroupBundle *GroupPreKeyBundle `json:"group_bundle,omitempty"`
}

func NewInviteEnvelope(msg InviteMsg) Envelope {
	return Envelope{Kind: EnvelopeInvite, Invite: &msg}
}

func NewAcceptEnvelope(msg AcceptMsg) Envelope {
	return Envelope{Kind: EnvelopeAccept, Accept: &msg}
}

func NewE2eeEnvelope(msg E2eeMsg) Envelope {
	return Envelope{Kind: EnvelopeE2ee, E2ee: &msg}
}

func NewResponseEnvelope(msg Response) Envelope {
	return Envelope{Kind: EnvelopeResponse, Response: &msg}
}

func NewGroupPreKeyBundleEnvelope(msg GroupPreKeyBundle) Envelope {
	return Envelope{Kind: EnvelopeGroupPreKeyBundle, GroupBundle: &msg}
}
