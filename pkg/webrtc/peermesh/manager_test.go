package peermesh

import (
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/EduMesh/ClassLink/pkg/errors"
	"github.com/EduMesh/ClassLink/pkg/protocol"
)

// fakeLink records calls instead of touching the network.
type fakeLink struct {
	mu         sync.Mutex
	remoteID   string
	state      HandshakeState
	initiates  int
	offers     []string
	answers    []string
	candidates []protocol.ICECandidatePayload
	swaps      []webrtc.TrackLocal
	closed     bool

	initErr error
	swapErr error
}

func (f *fakeLink) RemoteConnectionID() string { return f.remoteID }

func (f *fakeLink) State() HandshakeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeLink) Initiate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiates++
	if f.initErr != nil {
		return f.initErr
	}
	f.state = StateOfferSent
	return nil
}

func (f *fakeLink) HandleOffer(sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, sdp)
	f.state = StateAnswerSent
	return nil
}

func (f *fakeLink) HandleAnswer(sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, sdp)
	f.state = StateConnected
	return nil
}

func (f *fakeLink) AddRemoteCandidate(c protocol.ICECandidatePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeLink) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.swapErr != nil {
		return f.swapErr
	}
	f.swaps = append(f.swaps, track)
	return nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.state = StateClosed
	return nil
}

type fakeFactory struct {
	mu    sync.Mutex
	links map[string]*fakeLink
	err   error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{links: make(map[string]*fakeLink)}
}

func (ff *fakeFactory) build(remoteConnID string) (PeerLink, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.err != nil {
		return nil, ff.err
	}
	link := &fakeLink{remoteID: remoteConnID, state: StateIdle}
	ff.links[remoteConnID] = link
	return link, nil
}

func roster(ids ...string) []protocol.Participant {
	out := make([]protocol.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, protocol.Participant{ConnectionID: id, DisplayName: "user-" + id})
	}
	return out
}

func TestRosterInitiatesTowardEachExistingPeer(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(ff.build)

	pm.HandleRoster(roster("a", "b", "c"))

	require.Equal(t, 3, pm.Len())
	for _, id := range []string{"a", "b", "c"} {
		link, ok := ff.links[id]
		require.True(t, ok, id)
		assert.Equal(t, 1, link.initiates, id)
	}
}

func TestPeerJoinedDoesNotInitiate(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(ff.build)

	pm.HandlePeerJoined("a")

	require.Equal(t, 1, pm.Len())
	assert.Equal(t, 0, ff.links["a"].initiates)
}

func TestRosterNeverDoubleOffers(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(ff.build)

	// a duplicate roster entry or a re-delivered roster must not
	// produce a second offer toward the same peer
	pm.HandleRoster(roster("a", "a"))
	pm.HandleRoster(roster("a"))

	require.Equal(t, 1, pm.Len())
	assert.Equal(t, 1, ff.links["a"].initiates)
}

func TestOfferRoutedToLink(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(ff.build)
	pm.HandlePeerJoined("a")

	require.NoError(t, pm.HandleOffer("a", "sdp-offer"))
	assert.Equal(t, []string{"sdp-offer"}, ff.links["a"].offers)
}

func TestOfferCreatesLinkWhenRacedAheadOfJoin(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(ff.build)

	require.NoError(t, pm.HandleOffer("a", "sdp-offer"))

	require.Equal(t, 1, pm.Len())
	assert.Equal(t, 0, ff.links["a"].initiates)
	assert.Equal(t, []string{"sdp-offer"}, ff.links["a"].offers)
}

func TestAnswerAndCandidateRequireKnownPeer(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(ff.build)

	err := pm.HandleAnswer("ghost", "sdp")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeUnknownTarget, appErr.Code)

	err = pm.HandleCandidate("ghost", protocol.ICECandidatePayload{Candidate: "c"})
	require.Error(t, err)

	pm.HandleRoster(roster("a"))
	require.NoError(t, pm.HandleAnswer("a", "sdp-answer"))
	require.NoError(t, pm.HandleCandidate("a", protocol.ICECandidatePayload{Candidate: "c"}))
	assert.Equal(t, []string{"sdp-answer"}, ff.links["a"].answers)
	assert.Len(t, ff.links["a"].candidates, 1)
}

func TestPeerLeftClosesLink(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(ff.build)
	pm.HandleRoster(roster("a", "b"))

	pm.HandlePeerLeft("a")

	assert.Equal(t, 1, pm.Len())
	assert.True(t, ff.links["a"].closed)
	assert.False(t, ff.links["b"].closed)

	// unknown peer is a no-op
	pm.HandlePeerLeft("ghost")
}

func TestFailedInitiateDropsLink(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(func(remote string) (PeerLink, error) {
		link := &fakeLink{remoteID: remote, state: StateIdle, initErr: errors.New("boom")}
		ff.links[remote] = link
		return link, nil
	})

	pm.HandleRoster(roster("a"))

	assert.Equal(t, 0, pm.Len())
	assert.True(t, ff.links["a"].closed)
}

func TestReplaceVideoTrackFansOut(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(ff.build)
	pm.HandleRoster(roster("a", "b"))

	require.NoError(t, pm.ReplaceVideoTrack(nil))
	assert.Len(t, ff.links["a"].swaps, 1)
	assert.Len(t, ff.links["b"].swaps, 1)
}

func TestReplaceVideoTrackReportsFirstError(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(ff.build)
	pm.HandleRoster(roster("a", "b"))
	ff.links["a"].swapErr = errors.New("sender gone")
	ff.links["b"].swapErr = errors.New("sender gone")

	err := pm.ReplaceVideoTrack(nil)
	assert.Error(t, err)
}

func TestCloseAll(t *testing.T) {
	ff := newFakeFactory()
	pm := NewManager(ff.build)
	pm.HandleRoster(roster("a", "b", "c"))

	pm.CloseAll()

	assert.Equal(t, 0, pm.Len())
	for id, link := range ff.links {
		assert.True(t, link.closed, id)
	}
}
