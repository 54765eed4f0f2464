package peermesh

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/EduMesh/ClassLink/pkg/constants"
	apperrors "github.com/EduMesh/ClassLink/pkg/errors"
	"github.com/EduMesh/ClassLink/pkg/logger"
	"github.com/EduMesh/ClassLink/pkg/protocol"
)

// Events holds the callbacks a SignalClient dispatches to. Nil callbacks are
// skipped.
type Events struct {
	OnRoster           func(roster []protocol.Participant)
	OnPeerJoined       func(peer protocol.Participant)
	OnPeerLeft         func(connectionID string)
	OnOffer            func(sender, sdp string)
	OnAnswer           func(sender, sdp string)
	OnCandidate        func(sender string, candidate protocol.ICECandidatePayload)
	OnPeerMediaChanged func(change protocol.PeerMediaChangedPayload)
	OnPeerScreenShare  func(change protocol.PeerScreenSharePayload)
	OnError            func(code, message string)
}

// SignalClient is the client side of the signaling websocket. It implements
// Signaler for outgoing handshake messages and StateNotifier for local media
// state, and dispatches incoming envelopes to Events.
type SignalClient struct {
	conn   *websocket.Conn
	events Events
	connID string

	writeMu sync.Mutex // gorilla allows one concurrent writer
}

// Dial connects to a signaling endpoint and consumes the welcome frame, so
// the local connection id is known before Run starts.
func Dial(ctx context.Context, url string, events Events) (*SignalClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}

	var env protocol.Envelope
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(constants.WriteWait))
	}
	if err := conn.ReadJSON(&env); err != nil {
		_ = conn.Close()
		return nil, apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if env.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, apperrors.NewAppErrorf(apperrors.ErrCodeInvalidMessage,
			"expected welcome, got %s", env.Type)
	}
	welcome, err := env.DecodePayload()
	if err != nil {
		_ = conn.Close()
		return nil, apperrors.WrapError(apperrors.ErrCodeInvalidMessage, err)
	}

	return &SignalClient{
		conn:   conn,
		events: events,
		connID: welcome.(*protocol.WelcomePayload).ConnectionID,
	}, nil
}

// ConnectionID returns the id the relay assigned to this connection.
func (sc *SignalClient) ConnectionID() string {
	return sc.connID
}

// BindMesh wires the handshake and membership callbacks to a link manager.
// Call before Run; media callbacks stay with the caller.
func (sc *SignalClient) BindMesh(pm *Manager) {
	sc.events.OnRoster = pm.HandleRoster
	sc.events.OnPeerJoined = func(peer protocol.Participant) {
		pm.HandlePeerJoined(peer.ConnectionID)
	}
	sc.events.OnPeerLeft = pm.HandlePeerLeft
	sc.events.OnOffer = func(sender, sdp string) {
		if err := pm.HandleOffer(sender, sdp); err != nil {
			logger.Error("offer handling failed", zap.String("sender", sender), zap.Error(err))
		}
	}
	sc.events.OnAnswer = func(sender, sdp string) {
		if err := pm.HandleAnswer(sender, sdp); err != nil {
			logger.Error("answer handling failed", zap.String("sender", sender), zap.Error(err))
		}
	}
	sc.events.OnCandidate = func(sender string, candidate protocol.ICECandidatePayload) {
		if err := pm.HandleCandidate(sender, candidate); err != nil {
			logger.Debug("candidate dropped", zap.String("sender", sender), zap.Error(err))
		}
	}
}

// JoinRoom announces the room this client wants to participate in.
func (sc *SignalClient) JoinRoom(join protocol.JoinRoomPayload) error {
	return sc.send(protocol.NewEnvelope(protocol.TypeJoinRoom, join))
}

// LeaveRoom leaves the current room without closing the connection.
func (sc *SignalClient) LeaveRoom() error {
	return sc.send(protocol.NewEnvelope(protocol.TypeLeaveRoom, nil))
}

// SendOffer sends an SDP offer to one peer.
func (sc *SignalClient) SendOffer(target, sdp string) error {
	return sc.send(protocol.NewTargeted(protocol.TypeOffer, target, protocol.SDPPayload{SDP: sdp}))
}

// SendAnswer sends an SDP answer to one peer.
func (sc *SignalClient) SendAnswer(target, sdp string) error {
	return sc.send(protocol.NewTargeted(protocol.TypeAnswer, target, protocol.SDPPayload{SDP: sdp}))
}

// SendCandidate trickles one ICE candidate to one peer.
func (sc *SignalClient) SendCandidate(target string, candidate protocol.ICECandidatePayload) error {
	return sc.send(protocol.NewTargeted(protocol.TypeICECandidate, target, candidate))
}

// NotifyMediaState broadcasts the local mute flags to the room.
func (sc *SignalClient) NotifyMediaState(audioEnabled, videoEnabled bool) error {
	return sc.send(protocol.NewEnvelope(protocol.TypeMediaStateChange, protocol.MediaStatePayload{
		HasAudio: audioEnabled,
		HasVideo: videoEnabled,
	}))
}

// NotifyScreenShare broadcasts a screen share transition to the room.
func (sc *SignalClient) NotifyScreenShare(active bool) error {
	t := protocol.TypeScreenShareStopped
	if active {
		t = protocol.TypeScreenShareStarted
	}
	return sc.send(protocol.NewEnvelope(t, nil))
}

// Run reads and dispatches envelopes until the connection drops or ctx is
// canceled. It always returns a non-nil reason.
func (sc *SignalClient) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = sc.conn.Close()
	}()

	for {
		var env protocol.Envelope
		if err := sc.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperrors.WrapError(apperrors.ErrCodeTransportClosed, err)
		}
		sc.dispatch(&env)
	}
}

// Close closes the websocket.
func (sc *SignalClient) Close() error {
	return sc.conn.Close()
}

func (sc *SignalClient) dispatch(env *protocol.Envelope) {
	payload, err := env.DecodePayload()
	if err != nil {
		logger.Warn("dropping undecodable envelope",
			zap.String("type", string(env.Type)),
			zap.Error(err))
		return
	}

	switch env.Type {
	case protocol.TypeExistingParticipants:
		if sc.events.OnRoster != nil {
			sc.events.OnRoster(payload.(*protocol.ExistingParticipantsPayload).Participants)
		}
	case protocol.TypePeerJoined:
		if sc.events.OnPeerJoined != nil {
			sc.events.OnPeerJoined(*payload.(*protocol.Participant))
		}
	case protocol.TypePeerLeft:
		if sc.events.OnPeerLeft != nil {
			sc.events.OnPeerLeft(payload.(*protocol.PeerLeftPayload).ConnectionID)
		}
	case protocol.TypeOffer:
		if sc.events.OnOffer != nil {
			sc.events.OnOffer(env.Sender, payload.(*protocol.SDPPayload).SDP)
		}
	case protocol.TypeAnswer:
		if sc.events.OnAnswer != nil {
			sc.events.OnAnswer(env.Sender, payload.(*protocol.SDPPayload).SDP)
		}
	case protocol.TypeICECandidate:
		if sc.events.OnCandidate != nil {
			sc.events.OnCandidate(env.Sender, *payload.(*protocol.ICECandidatePayload))
		}
	case protocol.TypePeerMediaChanged:
		if sc.events.OnPeerMediaChanged != nil {
			sc.events.OnPeerMediaChanged(*payload.(*protocol.PeerMediaChangedPayload))
		}
	case protocol.TypePeerScreenShare:
		if sc.events.OnPeerScreenShare != nil {
			sc.events.OnPeerScreenShare(*payload.(*protocol.PeerScreenSharePayload))
		}
	case protocol.TypeError:
		e := payload.(*protocol.ErrorPayload)
		logger.Warn("server reported error",
			zap.String("code", e.Code),
			zap.String("message", e.Message))
		if sc.events.OnError != nil {
			sc.events.OnError(e.Code, e.Message)
		}
	default:
		logger.Debug("ignoring envelope", zap.String("type", string(env.Type)))
	}
}

func (sc *SignalClient) send(env protocol.Envelope) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	_ = sc.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
	if err := sc.conn.WriteJSON(env); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeSendFailed, err)
	}
	return nil
}
