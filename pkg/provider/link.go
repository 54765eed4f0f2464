package provider

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	apperrors "github.com/EduMesh/ClassLink/pkg/errors"
	"github.com/EduMesh/ClassLink/pkg/logger"
	"github.com/EduMesh/ClassLink/pkg/protocol"
	rtcconstants "github.com/EduMesh/ClassLink/pkg/webrtc/constants"
	"github.com/EduMesh/ClassLink/pkg/webrtc/peermesh"
)

// Session is one participant's membership in a provider-hosted call. It
// ensures the room, mints the access token and hands out links.
type Session struct {
	client   *Client
	room     string
	identity string
	token    string
}

// Join creates the provider session for one participant.
func Join(ctx context.Context, client *Client, roomName, identity string, isHost bool) (*Session, error) {
	if _, err := client.EnsureRoom(ctx, roomName); err != nil {
		return nil, err
	}
	token, err := client.MintToken(ctx, roomName, identity, isHost)
	if err != nil {
		return nil, err
	}
	return &Session{
		client:   client,
		room:     roomName,
		identity: identity,
		token:    token,
	}, nil
}

// Token returns the access token handed to the media frontend.
func (s *Session) Token() string {
	return s.token
}

// LinkFactory returns a peermesh.LinkFactory producing provider-backed
// links, so the link manager works identically in both backends.
func (s *Session) LinkFactory() peermesh.LinkFactory {
	return func(remoteConnID string) (peermesh.PeerLink, error) {
		return &Link{session: s, remoteID: remoteConnID, state: peermesh.StateIdle}, nil
	}
}

// Link wraps the provider's call object toward one remote participant. The
// provider negotiates transport internally, so the raw handshake primitives
// are absorbed here: Initiate subscribes to the remote's media and the SDP
// and candidate hooks are no-ops.
type Link struct {
	session  *Session
	remoteID string

	mu    sync.RWMutex
	state peermesh.HandshakeState
}

// RemoteConnectionID identifies the remote participant.
func (l *Link) RemoteConnectionID() string {
	return l.remoteID
}

// State returns the current handshake state.
func (l *Link) State() peermesh.HandshakeState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Initiate subscribes to the remote participant's media through the
// provider. There is no offer round-trip, so a successful subscribe is
// already connected.
func (l *Link) Initiate() error {
	if state := l.State(); state != peermesh.StateIdle {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidTransition,
			"cannot initiate link from state %s", state)
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := l.session.client.Subscribe(ctx, l.session.room, l.session.identity, l.remoteID); err != nil {
		l.setState(peermesh.StateFailed)
		return err
	}
	l.setState(peermesh.StateConnected)
	return nil
}

// HandleOffer is a no-op; the provider negotiates internally. A subscribe
// still happens so both discovery branches end up attached.
func (l *Link) HandleOffer(string) error {
	if l.State() == peermesh.StateIdle {
		return l.initiateAsReceiver()
	}
	return nil
}

// HandleAnswer is a no-op; the provider negotiates internally.
func (l *Link) HandleAnswer(string) error {
	return nil
}

// AddRemoteCandidate is a no-op; the provider handles transport.
func (l *Link) AddRemoteCandidate(protocol.ICECandidatePayload) error {
	return nil
}

// ReplaceVideoTrack tells the provider which video source this participant
// publishes. The track id carries the source name, matching the ids the
// capture layer assigns.
func (l *Link) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	source := rtcconstants.CameraTrackID
	if track != nil {
		source = track.ID()
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := l.session.client.SetVideoSource(ctx, l.session.room, l.session.identity, source); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeTrackSwapError, err)
	}
	return nil
}

// Close detaches from the remote participant's media.
func (l *Link) Close() error {
	if l.State() == peermesh.StateClosed {
		return nil
	}
	l.setState(peermesh.StateClosed)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := l.session.client.Unsubscribe(ctx, l.session.room, l.session.identity, l.remoteID); err != nil {
		logger.Debug("provider unsubscribe failed",
			zap.String("remote", l.remoteID),
			zap.Error(err))
	}
	return nil
}

func (l *Link) initiateAsReceiver() error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := l.session.client.Subscribe(ctx, l.session.room, l.session.identity, l.remoteID); err != nil {
		l.setState(peermesh.StateFailed)
		return err
	}
	l.setState(peermesh.StateConnected)
	return nil
}

// setState assigns directly. The provider absorbs the handshake, so the
// link jumps straight from idle to connected without visiting the offer
// states. Only closed is terminal.
func (l *Link) setState(next peermesh.HandshakeState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == peermesh.StateClosed {
		return
	}
	l.state = next
}
