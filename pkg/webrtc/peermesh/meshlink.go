package peermesh

import (
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	apperrors "github.com/EduMesh/ClassLink/pkg/errors"
	"github.com/EduMesh/ClassLink/pkg/logger"
	"github.com/EduMesh/ClassLink/pkg/protocol"
	"github.com/EduMesh/ClassLink/pkg/webrtc/constants"
)

// LinkOptions configures a mesh link.
type LinkOptions struct {
	ICEServers []webrtc.ICEServer

	// Local tracks attached before the handshake. Either may be nil for a
	// receive-only link.
	AudioTrack webrtc.TrackLocal
	VideoTrack webrtc.TrackLocal

	// OnRemoteTrack fires when a remote media track arrives, for wiring to
	// the local playback surface.
	OnRemoteTrack func(remoteConnID string, track *webrtc.TrackRemote)

	// OnStateChange observes handshake transitions.
	OnStateChange func(remoteConnID string, state HandshakeState)
}

// DefaultICEServers returns the STUN configuration used when the deployment
// provides none.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{{URLs: constants.DefaultStunServers}}
}

// MeshLink drives one direct peer connection through its offer/answer
// handshake. Media flows directly between the peers once connected; only
// handshake metadata ever touches the signaler.
type MeshLink struct {
	remoteID string
	signaler Signaler
	opt      LinkOptions

	pc          *webrtc.PeerConnection
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	stateMu sync.RWMutex
	state   HandshakeState

	// candMu guards the early-candidate buffer. Candidates may trickle in
	// before the SDP they belong to has been applied; they are held here
	// and flushed after SetRemoteDescription.
	candMu        sync.Mutex
	pending       []protocol.ICECandidatePayload
	remoteDescSet bool
}

// NewMeshLink creates the link and its underlying peer connection with local
// tracks attached. The handshake does not start until Initiate or
// HandleOffer.
func NewMeshLink(remoteConnID string, opt LinkOptions, signaler Signaler) (*MeshLink, error) {
	if len(opt.ICEServers) == 0 {
		opt.ICEServers = DefaultICEServers()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeInternal, err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: opt.ICEServers})
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}

	link := &MeshLink{
		remoteID: remoteConnID,
		signaler: signaler,
		opt:      opt,
		pc:       pc,
		state:    StateIdle,
	}

	if opt.AudioTrack != nil {
		if link.audioSender, err = pc.AddTrack(opt.AudioTrack); err != nil {
			_ = pc.Close()
			return nil, apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
		}
	}
	if opt.VideoTrack != nil {
		if link.videoSender, err = pc.AddTrack(opt.VideoTrack); err != nil {
			_ = pc.Close()
			return nil, apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := signaler.SendCandidate(remoteConnID, protocol.ICECandidatePayload{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		}); err != nil {
			logger.Warn("failed to send ICE candidate",
				zap.String("remote", remoteConnID),
				zap.Error(err))
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Debug("peer connection state changed",
			zap.String("remote", remoteConnID),
			zap.String("state", s.String()))
		switch s {
		case webrtc.PeerConnectionStateConnected:
			link.transition(StateConnected)
		case webrtc.PeerConnectionStateFailed:
			// no automatic restart; the UI surfaces the degradation
			link.transition(StateFailed)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Info("remote track received",
			zap.String("remote", remoteConnID),
			zap.String("kind", track.Kind().String()),
			zap.String("stream_id", track.StreamID()))
		if opt.OnRemoteTrack != nil {
			opt.OnRemoteTrack(remoteConnID, track)
		}
	})

	return link, nil
}

// RemoteConnectionID identifies the remote participant.
func (l *MeshLink) RemoteConnectionID() string {
	return l.remoteID
}

// State returns the current handshake state.
func (l *MeshLink) State() HandshakeState {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

// transition applies a state change when legal. Illegal moves are logged and
// ignored rather than returned, since most arrive from the transport's own
// callbacks after a local close.
func (l *MeshLink) transition(next HandshakeState) bool {
	l.stateMu.Lock()
	if !l.state.CanTransition(next) {
		current := l.state
		l.stateMu.Unlock()
		logger.Debug("ignoring illegal handshake transition",
			zap.String("remote", l.remoteID),
			zap.String("from", current.String()),
			zap.String("to", next.String()))
		return false
	}
	if l.state == next {
		l.stateMu.Unlock()
		return true
	}
	l.state = next
	l.stateMu.Unlock()

	if l.opt.OnStateChange != nil {
		l.opt.OnStateChange(l.remoteID, next)
	}
	return true
}

// Initiate creates and sends the initial offer and moves to offer-sent.
func (l *MeshLink) Initiate() error {
	if state := l.State(); state != StateIdle {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidTransition,
			"cannot initiate handshake from state %s", state)
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}
	l.transition(StateOfferSent)
	if err := l.signaler.SendOffer(l.remoteID, offer.SDP); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeSendFailed, err)
	}
	return nil
}

// HandleOffer applies a remote offer, flushes any early candidates and
// replies with an answer.
func (l *MeshLink) HandleOffer(sdp string) error {
	if !l.transition(StateOfferReceived) {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidTransition,
			"unexpected offer in state %s", l.State())
	}

	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}
	l.flushPendingCandidates()

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}
	l.transition(StateAnswerSent)
	if err := l.signaler.SendAnswer(l.remoteID, answer.SDP); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeSendFailed, err)
	}
	return nil
}

// HandleAnswer applies the matching answer to a sent offer.
func (l *MeshLink) HandleAnswer(sdp string) error {
	if state := l.State(); state != StateOfferSent {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidTransition,
			"unexpected answer in state %s", state)
	}

	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}
	l.flushPendingCandidates()
	l.transition(StateConnected)
	return nil
}

// AddRemoteCandidate applies a trickled candidate, buffering it when the
// remote description has not been applied yet.
func (l *MeshLink) AddRemoteCandidate(candidate protocol.ICECandidatePayload) error {
	l.candMu.Lock()
	if !l.remoteDescSet {
		l.pending = append(l.pending, candidate)
		l.candMu.Unlock()
		return nil
	}
	l.candMu.Unlock()

	if err := l.pc.AddICECandidate(toCandidateInit(candidate)); err != nil {
		// keep it for the next flush instead of dropping
		l.candMu.Lock()
		l.pending = append(l.pending, candidate)
		l.candMu.Unlock()
		logger.Debug("buffered ICE candidate after apply failure",
			zap.String("remote", l.remoteID),
			zap.Error(err))
	}
	return nil
}

func (l *MeshLink) flushPendingCandidates() {
	l.candMu.Lock()
	l.remoteDescSet = true
	buffered := l.pending
	l.pending = nil
	l.candMu.Unlock()

	for _, candidate := range buffered {
		if err := l.pc.AddICECandidate(toCandidateInit(candidate)); err != nil {
			logger.Warn("failed to apply buffered ICE candidate",
				zap.String("remote", l.remoteID),
				zap.Error(err))
		}
	}
}

// ReplaceVideoTrack swaps the outgoing video source on the existing sender.
// No new offer is created, so established links never renegotiate for a
// camera/screen switch.
func (l *MeshLink) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	if l.videoSender == nil {
		return apperrors.NewAppError(apperrors.ErrCodeNoVideoTrack, "link has no outgoing video track")
	}
	if err := l.videoSender.ReplaceTrack(track); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeTrackSwapError, err)
	}
	return nil
}

// Close releases the underlying connection. Safe to call more than once.
func (l *MeshLink) Close() error {
	l.transition(StateClosed)
	if err := l.pc.Close(); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeInternal, err)
	}
	return nil
}

func toCandidateInit(c protocol.ICECandidatePayload) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}
