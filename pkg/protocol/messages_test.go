package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadByType(t *testing.T) {
	mid := "0"
	var line uint16 = 1

	tests := []struct {
		name string
		env  Envelope
		want interface{}
	}{
		{
			name: "join room",
			env: NewEnvelope(TypeJoinRoom, JoinRoomPayload{
				RoomSlug:    "algebra-101",
				SessionID:   "sess-1",
				DisplayName: "Ada",
				IsHost:      true,
			}),
			want: &JoinRoomPayload{RoomSlug: "algebra-101", SessionID: "sess-1", DisplayName: "Ada", IsHost: true},
		},
		{
			name: "offer",
			env:  NewTargeted(TypeOffer, "conn-b", SDPPayload{SDP: "v=0"}),
			want: &SDPPayload{SDP: "v=0"},
		},
		{
			name: "answer",
			env:  NewTargeted(TypeAnswer, "conn-a", SDPPayload{SDP: "v=0"}),
			want: &SDPPayload{SDP: "v=0"},
		},
		{
			name: "ice candidate",
			env: NewTargeted(TypeICECandidate, "conn-b", ICECandidatePayload{
				Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host",
				SDPMid:        &mid,
				SDPMLineIndex: &line,
			}),
			want: &ICECandidatePayload{
				Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host",
				SDPMid:        &mid,
				SDPMLineIndex: &line,
			},
		},
		{
			name: "media state",
			env:  NewEnvelope(TypeMediaStateChange, MediaStatePayload{HasVideo: true}),
			want: &MediaStatePayload{HasVideo: true},
		},
		{
			name: "welcome",
			env:  NewEnvelope(TypeWelcome, WelcomePayload{ConnectionID: "conn-a"}),
			want: &WelcomePayload{ConnectionID: "conn-a"},
		},
		{
			name: "peer left",
			env:  NewEnvelope(TypePeerLeft, PeerLeftPayload{ConnectionID: "conn-a"}),
			want: &PeerLeftPayload{ConnectionID: "conn-a"},
		},
		{
			name: "peer screen share",
			env:  NewEnvelope(TypePeerScreenShare, PeerScreenSharePayload{ConnectionID: "conn-a", IsSharing: true}),
			want: &PeerScreenSharePayload{ConnectionID: "conn-a", IsSharing: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.env.DecodePayload()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodePayloadNoPayloadTypes(t *testing.T) {
	for _, typ := range []MessageType{TypeScreenShareStarted, TypeScreenShareStopped, TypeLeaveRoom} {
		env := NewEnvelope(typ, nil)
		got, err := env.DecodePayload()
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestDecodePayloadUnknownType(t *testing.T) {
	env := Envelope{Type: "chat-message", Payload: json.RawMessage(`{}`)}
	_, err := env.DecodePayload()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodePayloadMalformed(t *testing.T) {
	env := Envelope{Type: TypeJoinRoom, Payload: json.RawMessage(`{"roomSlug":42}`)}
	_, err := env.DecodePayload()
	assert.Error(t, err)

	env = Envelope{Type: TypeOffer}
	_, err = env.DecodePayload()
	assert.Error(t, err)
}

func TestForwardedStampsSenderStripsTarget(t *testing.T) {
	env := NewTargeted(TypeOffer, "conn-b", SDPPayload{SDP: "v=0"})
	fwd := env.Forwarded("conn-a")

	assert.Equal(t, TypeOffer, fwd.Type)
	assert.Equal(t, "conn-a", fwd.Sender)
	assert.Empty(t, fwd.Target)
	assert.Equal(t, env.Payload, fwd.Payload)
}

func TestEnvelopeWireFormat(t *testing.T) {
	env := NewTargeted(TypeAnswer, "conn-b", SDPPayload{SDP: "v=0"})
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"answer","target":"conn-b","payload":{"sdp":"v=0"}}`, string(raw))

	var back Envelope
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, env.Type, back.Type)
	assert.Equal(t, env.Target, back.Target)
}
