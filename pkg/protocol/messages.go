package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType tags a signaling envelope. The set is closed: DecodePayload
// handles every type exhaustively and rejects everything else, so a malformed
// or unknown message can be dropped at the relay boundary before it reaches
// any room state.
type MessageType string

// Client to server.
const (
	TypeJoinRoom           MessageType = "join-room"
	TypeOffer              MessageType = "offer"
	TypeAnswer             MessageType = "answer"
	TypeICECandidate       MessageType = "ice-candidate"
	TypeMediaStateChange   MessageType = "media-state-change"
	TypeScreenShareStarted MessageType = "screen-share-started"
	TypeScreenShareStopped MessageType = "screen-share-stopped"
	TypeLeaveRoom          MessageType = "leave-room"
)

// Server to client.
const (
	TypeWelcome              MessageType = "welcome"
	TypeExistingParticipants MessageType = "existing-participants"
	TypePeerJoined           MessageType = "peer-joined"
	TypePeerLeft             MessageType = "peer-left"
	TypePeerMediaChanged     MessageType = "peer-media-changed"
	TypePeerScreenShare      MessageType = "peer-screen-share"
	TypeError                MessageType = "error"
)

// Envelope is the wire frame for every signaling message. Sender is stamped
// by the relay on forwarded handshake payloads; Target is set by the sending
// client on offer/answer/ice-candidate and stripped before forwarding.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Sender  string          `json:"sender,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinRoomPayload announces intent to join a signaling room.
type JoinRoomPayload struct {
	RoomSlug    string `json:"roomSlug"`
	SessionID   string `json:"sessionId"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName"`
	IsHost      bool   `json:"isHost"`
}

// SDPPayload carries an offer or answer session description.
type SDPPayload struct {
	SDP string `json:"sdp"`
}

// ICECandidatePayload carries one trickled ICE candidate.
type ICECandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// MediaStatePayload reports the sender's current local media state.
type MediaStatePayload struct {
	HasVideo bool `json:"hasVideo"`
	HasAudio bool `json:"hasAudio"`
}

// WelcomePayload assigns the connection its id after the websocket upgrade.
type WelcomePayload struct {
	ConnectionID string `json:"connectionId"`
}

// Participant describes one room member as seen by other members.
type Participant struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
	DisplayName  string `json:"displayName"`
	IsHost       bool   `json:"isHost"`
	HasVideo     bool   `json:"hasVideo"`
	HasAudio     bool   `json:"hasAudio"`
}

// ExistingParticipantsPayload is the roster returned to a joining client,
// excluding the client itself.
type ExistingParticipantsPayload struct {
	Participants []Participant `json:"participants"`
}

// PeerLeftPayload notifies a room that a member disconnected or left.
type PeerLeftPayload struct {
	ConnectionID string `json:"connectionId"`
}

// PeerMediaChangedPayload fans out a member's media state change.
type PeerMediaChangedPayload struct {
	ConnectionID string `json:"connectionId"`
	HasVideo     bool   `json:"hasVideo"`
	HasAudio     bool   `json:"hasAudio"`
}

// PeerScreenSharePayload fans out a member's screen share transition.
type PeerScreenSharePayload struct {
	ConnectionID string `json:"connectionId"`
	IsSharing    bool   `json:"isSharing"`
}

// ErrorPayload reports a request-level failure back to one client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrUnknownType is returned for envelope types outside the closed set.
var ErrUnknownType = fmt.Errorf("protocol: unknown message type")

// DecodePayload decodes an envelope's payload into its concrete type. The
// switch is exhaustive over the closed message set; anything else is an
// ErrUnknownType the caller drops.
func (e *Envelope) DecodePayload() (interface{}, error) {
	switch e.Type {
	case TypeJoinRoom:
		return decodeAs[JoinRoomPayload](e)
	case TypeOffer, TypeAnswer:
		return decodeAs[SDPPayload](e)
	case TypeICECandidate:
		return decodeAs[ICECandidatePayload](e)
	case TypeMediaStateChange:
		return decodeAs[MediaStatePayload](e)
	case TypeScreenShareStarted, TypeScreenShareStopped, TypeLeaveRoom:
		// no payload
		return nil, nil
	case TypeWelcome:
		return decodeAs[WelcomePayload](e)
	case TypeExistingParticipants:
		return decodeAs[ExistingParticipantsPayload](e)
	case TypePeerJoined:
		return decodeAs[Participant](e)
	case TypePeerLeft:
		return decodeAs[PeerLeftPayload](e)
	case TypePeerMediaChanged:
		return decodeAs[PeerMediaChangedPayload](e)
	case TypePeerScreenShare:
		return decodeAs[PeerScreenSharePayload](e)
	case TypeError:
		return decodeAs[ErrorPayload](e)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
}

func decodeAs[T any](e *Envelope) (*T, error) {
	var out T
	if len(e.Payload) == 0 {
		return nil, fmt.Errorf("protocol: %s payload missing", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return nil, fmt.Errorf("protocol: decode %s payload: %w", e.Type, err)
	}
	return &out, nil
}

// NewEnvelope builds an envelope with an encoded payload. Payload types are
// plain structs, so marshaling cannot fail in practice; a nil payload yields
// an empty-payload envelope.
func NewEnvelope(t MessageType, payload interface{}) Envelope {
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err == nil {
			env.Payload = raw
		}
	}
	return env
}

// NewTargeted builds a client-to-server handshake envelope addressed at one
// connection.
func NewTargeted(t MessageType, target string, payload interface{}) Envelope {
	env := NewEnvelope(t, payload)
	env.Target = target
	return env
}

// Forwarded returns a copy of a handshake envelope rewritten for delivery:
// tagged with the sender's connection id, target stripped.
func (e *Envelope) Forwarded(sender string) Envelope {
	return Envelope{
		Type:    e.Type,
		Sender:  sender,
		Payload: e.Payload,
	}
}
