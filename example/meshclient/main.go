// Command meshclient joins a signaling room as a mesh participant. It
// publishes silent placeholder tracks, dials every existing participant and
// logs remote media as it arrives, which makes it handy for exercising a
// local relay without a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/EduMesh/ClassLink/pkg/constants"
	"github.com/EduMesh/ClassLink/pkg/logger"
	"github.com/EduMesh/ClassLink/pkg/protocol"
	rtcconstants "github.com/EduMesh/ClassLink/pkg/webrtc/constants"
	"github.com/EduMesh/ClassLink/pkg/webrtc/peermesh"
)

// staticSource is a placeholder capture source backed by a static sample
// track that never produces frames.
type staticSource struct {
	track *webrtc.TrackLocalStaticSample
}

func newStaticSource(mimeType, id string) (*staticSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		id,
		rtcconstants.DefaultStreamID,
	)
	if err != nil {
		return nil, err
	}
	return &staticSource{track: track}, nil
}

func (s *staticSource) Track() webrtc.TrackLocal { return s.track }

func (s *staticSource) Close() error { return nil }

func main() {
	server := flag.String("server", "ws://localhost:7080"+constants.SignalingPath, "signaling endpoint")
	room := flag.String("room", "demo-room", "room slug to join")
	sessionID := flag.String("session", "demo-session", "class session id")
	name := flag.String("name", "mesh-client", "display name")
	flag.Parse()

	if err := logger.Init(&logger.LogConfig{
		Daily:    true,
		Filename: "logs/meshclient.log",
		Level:    "debug",
		MaxAge:   7,
	}, "development"); err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := peermesh.Dial(ctx, *server, peermesh.Events{
		OnPeerMediaChanged: func(change protocol.PeerMediaChangedPayload) {
			logger.Info("[meshclient] peer media changed",
				zap.String("peer", change.ConnectionID),
				zap.Bool("video", change.HasVideo),
				zap.Bool("audio", change.HasAudio))
		},
		OnPeerScreenShare: func(change protocol.PeerScreenSharePayload) {
			logger.Info("[meshclient] peer screen share",
				zap.String("peer", change.ConnectionID),
				zap.Bool("sharing", change.IsSharing))
		},
	})
	if err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}
	defer client.Close()
	logger.Info("[meshclient] connected", zap.String("connection_id", client.ConnectionID()))

	audio, err := newStaticSource(webrtc.MimeTypeOpus, rtcconstants.AudioTrackID)
	if err != nil {
		logger.Fatal("failed to create audio track", zap.Error(err))
	}
	camera, err := newStaticSource(webrtc.MimeTypeVP8, rtcconstants.CameraTrackID)
	if err != nil {
		logger.Fatal("failed to create camera track", zap.Error(err))
	}

	manager := peermesh.NewManager(peermesh.MeshLinkFactory(peermesh.LinkOptions{
		AudioTrack: audio.Track(),
		VideoTrack: camera.Track(),
		OnRemoteTrack: func(remote string, track *webrtc.TrackRemote) {
			logger.Info("[meshclient] remote track",
				zap.String("peer", remote),
				zap.String("kind", track.Kind().String()))
		},
		OnStateChange: func(remote string, state peermesh.HandshakeState) {
			logger.Info("[meshclient] link state",
				zap.String("peer", remote),
				zap.String("state", state.String()))
		},
	}, client))
	client.BindMesh(manager)
	defer manager.CloseAll()

	if err := client.JoinRoom(protocol.JoinRoomPayload{
		RoomSlug:    *room,
		SessionID:   *sessionID,
		DisplayName: *name,
	}); err != nil {
		logger.Fatal("failed to join room", zap.Error(err))
	}
	logger.Info("[meshclient] joined room", zap.String("room", *room))

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("signaling connection lost", zap.Error(err))
	}
	logger.Info("[meshclient] shutting down")
}
