package peermesh

import (
	"github.com/pion/webrtc/v3"

	"github.com/EduMesh/ClassLink/pkg/protocol"
)

// Signaler delivers handshake payloads to one remote connection through the
// relay. The signaling client implements it; tests substitute a recorder.
type Signaler interface {
	SendOffer(target, sdp string) error
	SendAnswer(target, sdp string) error
	SendCandidate(target string, candidate protocol.ICECandidatePayload) error
}

// PeerLink owns the connection to one remote participant for as long as both
// sides are co-present in a room. A link is created when the participant is
// discovered and deleted on its peer-left, never reused.
//
// Two implementations exist: MeshLink drives raw offer/answer/ICE primitives
// for the direct peer-mesh path, and provider.Link wraps a managed
// conferencing provider's call object. Which one backs a session is a
// configuration choice, invisible to the Manager.
type PeerLink interface {
	// RemoteConnectionID identifies the remote participant.
	RemoteConnectionID() string

	// State returns the current handshake state.
	State() HandshakeState

	// Initiate starts the handshake by sending the initial offer. Only
	// the side that discovered the peer as pre-existing calls this.
	Initiate() error

	// HandleOffer applies a remote offer and replies with an answer.
	HandleOffer(sdp string) error

	// HandleAnswer applies the remote answer to a sent offer.
	HandleAnswer(sdp string) error

	// AddRemoteCandidate applies a trickled ICE candidate. Candidates
	// arriving before the remote description are buffered, not dropped.
	AddRemoteCandidate(candidate protocol.ICECandidatePayload) error

	// ReplaceVideoTrack swaps the outgoing video source in place without
	// renegotiating the handshake.
	ReplaceVideoTrack(track webrtc.TrackLocal) error

	// Close detaches tracks, releases the underlying connection resources
	// and moves the link to closed.
	Close() error
}
