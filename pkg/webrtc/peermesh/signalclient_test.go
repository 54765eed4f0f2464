package peermesh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EduMesh/ClassLink/pkg/protocol"
	"github.com/EduMesh/ClassLink/pkg/registry"
	"github.com/EduMesh/ClassLink/pkg/relay"
)

// loopLink is a signaling-only link: it exchanges placeholder SDP through
// the signaler and walks the handshake states, without any transport.
type loopLink struct {
	localID  string
	remoteID string
	signaler Signaler

	mu    sync.Mutex
	state HandshakeState
}

func (l *loopLink) RemoteConnectionID() string { return l.remoteID }

func (l *loopLink) State() HandshakeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *loopLink) setState(s HandshakeState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *loopLink) Initiate() error {
	l.setState(StateOfferSent)
	return l.signaler.SendOffer(l.remoteID, "offer-from-"+l.localID)
}

func (l *loopLink) HandleOffer(string) error {
	l.setState(StateAnswerSent)
	return l.signaler.SendAnswer(l.remoteID, "answer-from-"+l.localID)
}

func (l *loopLink) HandleAnswer(string) error {
	l.setState(StateConnected)
	return nil
}

func (l *loopLink) AddRemoteCandidate(protocol.ICECandidatePayload) error { return nil }

func (l *loopLink) ReplaceVideoTrack(webrtc.TrackLocal) error { return nil }

func (l *loopLink) Close() error {
	l.setState(StateClosed)
	return nil
}

type meshPeer struct {
	client  *SignalClient
	manager *Manager
}

func startSignaling(t *testing.T) string {
	t.Helper()
	r := relay.New(registry.New(nil), nil)
	srv := httptest.NewServer(http.HandlerFunc(r.ServeWS))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connectPeer(t *testing.T, url, name string, events Events) *meshPeer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client, err := Dial(ctx, url, events)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	manager := NewManager(func(remote string) (PeerLink, error) {
		return &loopLink{localID: client.ConnectionID(), remoteID: remote, signaler: client, state: StateIdle}, nil
	})
	client.BindMesh(manager)
	go client.Run(ctx)

	require.NoError(t, client.JoinRoom(protocol.JoinRoomPayload{
		RoomSlug:    "algebra-101",
		SessionID:   "sess-1",
		DisplayName: name,
	}))
	return &meshPeer{client: client, manager: manager}
}

func TestHandshakeCompletesAcrossRelay(t *testing.T) {
	url := startSignaling(t)

	a := connectPeer(t, url, "Ada", Events{})
	b := connectPeer(t, url, "Blaise", Events{})

	// B saw A in its roster and initiated; A answered. Both sides end up
	// with exactly one link each.
	require.Eventually(t, func() bool {
		link, ok := b.manager.Lookup(a.client.ConnectionID())
		return ok && link.State() == StateConnected
	}, 3*time.Second, 20*time.Millisecond, "initiator never reached connected")

	require.Eventually(t, func() bool {
		link, ok := a.manager.Lookup(b.client.ConnectionID())
		return ok && link.State() == StateAnswerSent
	}, 3*time.Second, 20*time.Millisecond, "receiver never sent its answer")

	assert.Equal(t, 1, a.manager.Len())
	assert.Equal(t, 1, b.manager.Len())
}

func TestThreePeersFormFullMesh(t *testing.T) {
	url := startSignaling(t)

	a := connectPeer(t, url, "Ada", Events{})
	b := connectPeer(t, url, "Blaise", Events{})
	c := connectPeer(t, url, "Carol", Events{})

	peers := []*meshPeer{a, b, c}
	require.Eventually(t, func() bool {
		for _, p := range peers {
			if p.manager.Len() != 2 {
				return false
			}
		}
		return true
	}, 3*time.Second, 20*time.Millisecond, "mesh never completed")

	// the newest joiner initiated toward both existing peers
	for _, remote := range []*meshPeer{a, b} {
		link, ok := c.manager.Lookup(remote.client.ConnectionID())
		require.True(t, ok)
		assert.Equal(t, StateConnected, link.State())
	}
}

func TestPeerLeftTearsDownLink(t *testing.T) {
	url := startSignaling(t)

	a := connectPeer(t, url, "Ada", Events{})
	b := connectPeer(t, url, "Blaise", Events{})

	require.Eventually(t, func() bool {
		return a.manager.Len() == 1 && b.manager.Len() == 1
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, b.client.LeaveRoom())

	require.Eventually(t, func() bool {
		return a.manager.Len() == 0
	}, 3*time.Second, 20*time.Millisecond, "link survived peer-left")
}

func TestMediaNotificationsReachPeers(t *testing.T) {
	url := startSignaling(t)

	var mu sync.Mutex
	var mediaChanges []protocol.PeerMediaChangedPayload
	var shareChanges []protocol.PeerScreenSharePayload

	a := connectPeer(t, url, "Ada", Events{
		OnPeerMediaChanged: func(change protocol.PeerMediaChangedPayload) {
			mu.Lock()
			mediaChanges = append(mediaChanges, change)
			mu.Unlock()
		},
		OnPeerScreenShare: func(change protocol.PeerScreenSharePayload) {
			mu.Lock()
			shareChanges = append(shareChanges, change)
			mu.Unlock()
		},
	})
	b := connectPeer(t, url, "Blaise", Events{})

	require.Eventually(t, func() bool {
		return a.manager.Len() == 1 && b.manager.Len() == 1
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, b.client.NotifyMediaState(false, true))
	require.NoError(t, b.client.NotifyScreenShare(true))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(mediaChanges) == 1 && len(shareChanges) == 1
	}, 3*time.Second, 20*time.Millisecond, "notifications never arrived")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, b.client.ConnectionID(), mediaChanges[0].ConnectionID)
	assert.False(t, mediaChanges[0].HasAudio)
	assert.True(t, mediaChanges[0].HasVideo)
	assert.True(t, shareChanges[0].IsSharing)
}
