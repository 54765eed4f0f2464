package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EduMesh/ClassLink/pkg/webrtc/peermesh"
)

func newTestSession(t *testing.T) (*Session, *providerAPI) {
	t.Helper()
	client, api := newTestClient(t)
	sess, err := Join(context.Background(), client, "algebra-101", "teacher-1", true)
	require.NoError(t, err)
	return sess, api
}

func TestJoinMintsToken(t *testing.T) {
	sess, _ := newTestSession(t)
	assert.Equal(t, "tok-abc", sess.Token())
}

func TestLinkInitiateSubscribesAndConnects(t *testing.T) {
	sess, api := newTestSession(t)
	link, err := sess.LinkFactory()("conn-remote")
	require.NoError(t, err)

	require.Equal(t, peermesh.StateIdle, link.State())
	require.NoError(t, link.Initiate())
	assert.Equal(t, peermesh.StateConnected, link.State())
	assert.Equal(t, int64(1), api.subscribed.Load())

	// a second initiate is rejected
	assert.Error(t, link.Initiate())
}

func TestLinkHandleOfferAttachesReceiverSide(t *testing.T) {
	sess, api := newTestSession(t)
	link, err := sess.LinkFactory()("conn-remote")
	require.NoError(t, err)

	require.NoError(t, link.HandleOffer("ignored-sdp"))
	assert.Equal(t, peermesh.StateConnected, link.State())
	assert.Equal(t, int64(1), api.subscribed.Load())

	// handshake primitives are absorbed once attached
	require.NoError(t, link.HandleOffer("ignored-sdp"))
	require.NoError(t, link.HandleAnswer("ignored-sdp"))
	assert.Equal(t, int64(1), api.subscribed.Load())
}

func TestLinkCloseUnsubscribes(t *testing.T) {
	sess, api := newTestSession(t)
	link, err := sess.LinkFactory()("conn-remote")
	require.NoError(t, err)
	require.NoError(t, link.Initiate())

	require.NoError(t, link.Close())
	assert.Equal(t, peermesh.StateClosed, link.State())
	assert.Equal(t, int64(1), api.unsubscribed.Load())

	// closing twice does not unsubscribe twice
	require.NoError(t, link.Close())
	assert.Equal(t, int64(1), api.unsubscribed.Load())
}

func TestLinkReplaceVideoTrackSwitchesSource(t *testing.T) {
	sess, api := newTestSession(t)
	link, err := sess.LinkFactory()("conn-remote")
	require.NoError(t, err)

	// nil track falls back to the camera source
	require.NoError(t, link.ReplaceVideoTrack(nil))
	assert.Equal(t, "camera", api.videoSource.Load())
}
