package peermesh

import (
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	apperrors "github.com/EduMesh/ClassLink/pkg/errors"
	"github.com/EduMesh/ClassLink/pkg/logger"
)

// CaptureSource is a live local media source bound to a sendable track.
// Implementations wrap whatever capture pipeline feeds the track (camera,
// screen grabber, file playback in the example client).
type CaptureSource interface {
	Track() webrtc.TrackLocal
	Close() error
}

// SourceOpener lazily opens a capture source. Screen capture is only opened
// when a share actually starts.
type SourceOpener func() (CaptureSource, error)

// TrackSwapper swaps the outgoing video source across established links.
// Satisfied by Manager.
type TrackSwapper interface {
	ReplaceVideoTrack(track webrtc.TrackLocal) error
}

// StateNotifier tells the room about local media-state changes. Satisfied by
// the signaling client.
type StateNotifier interface {
	NotifyMediaState(audioEnabled, videoEnabled bool) error
	NotifyScreenShare(active bool) error
}

// MediaController tracks local mute and screen-share state.
//
// Mute and camera toggles only flip flags and notify peers; tracks stay
// attached so that unmuting never renegotiates. A screen share swaps the
// video source in place on every link, and a failed swap rolls back to the
// camera so peers are never left watching a dead share.
type MediaController struct {
	swapper    TrackSwapper
	notifier   StateNotifier
	openScreen SourceOpener

	mu           sync.Mutex
	audioEnabled bool
	videoEnabled bool
	camera       CaptureSource
	screen       CaptureSource
}

// NewMediaController starts with both audio and video enabled and the camera
// as the active video source. camera may be nil for an audio-only client.
func NewMediaController(swapper TrackSwapper, notifier StateNotifier, camera CaptureSource, openScreen SourceOpener) *MediaController {
	return &MediaController{
		swapper:      swapper,
		notifier:     notifier,
		openScreen:   openScreen,
		audioEnabled: true,
		videoEnabled: true,
		camera:       camera,
	}
}

// ToggleMute flips the microphone flag and notifies the room. Returns the
// new enabled state.
func (mc *MediaController) ToggleMute() (bool, error) {
	mc.mu.Lock()
	mc.audioEnabled = !mc.audioEnabled
	audio, video := mc.audioEnabled, mc.videoEnabled
	mc.mu.Unlock()
	return audio, mc.notifier.NotifyMediaState(audio, video)
}

// ToggleVideo flips the camera flag and notifies the room. Returns the new
// enabled state.
func (mc *MediaController) ToggleVideo() (bool, error) {
	mc.mu.Lock()
	mc.videoEnabled = !mc.videoEnabled
	audio, video := mc.audioEnabled, mc.videoEnabled
	mc.mu.Unlock()
	return video, mc.notifier.NotifyMediaState(audio, video)
}

// AudioEnabled reports the microphone flag.
func (mc *MediaController) AudioEnabled() bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.audioEnabled
}

// VideoEnabled reports the camera flag.
func (mc *MediaController) VideoEnabled() bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.videoEnabled
}

// Sharing reports whether a screen share is active.
func (mc *MediaController) Sharing() bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.screen != nil
}

// StartScreenShare opens the screen source and swaps it in for the camera on
// every link. If the swap fails the camera is restored and peers are told
// the share stopped, so their roster never shows a share that carries no
// media.
func (mc *MediaController) StartScreenShare() error {
	// the lock covers the open and the swap, so two interleaved starts
	// cannot both open a screen source
	mc.mu.Lock()
	if mc.screen != nil {
		mc.mu.Unlock()
		return nil
	}
	if mc.openScreen == nil {
		mc.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrCodeCaptureFailed, "no screen capture source configured")
	}
	screen, err := mc.openScreen()
	if err != nil {
		mc.mu.Unlock()
		return apperrors.WrapError(apperrors.ErrCodeCaptureFailed, err)
	}

	if err := mc.swapper.ReplaceVideoTrack(screen.Track()); err != nil {
		if cerr := screen.Close(); cerr != nil {
			logger.Debug("error closing screen source after failed swap", zap.Error(cerr))
		}
		mc.revertToCameraLocked()
		mc.mu.Unlock()
		if nerr := mc.notifier.NotifyScreenShare(false); nerr != nil {
			logger.Warn("failed to notify screen share rollback", zap.Error(nerr))
		}
		return apperrors.WrapError(apperrors.ErrCodeTrackSwapError, err)
	}

	mc.screen = screen
	mc.mu.Unlock()
	return mc.notifier.NotifyScreenShare(true)
}

// StopScreenShare restores the camera track and releases the screen source.
// A no-op when no share is active.
func (mc *MediaController) StopScreenShare() error {
	mc.mu.Lock()
	screen := mc.screen
	if screen == nil {
		mc.mu.Unlock()
		return nil
	}
	mc.screen = nil
	mc.revertToCameraLocked()
	mc.mu.Unlock()

	if err := screen.Close(); err != nil {
		logger.Debug("error closing screen source", zap.Error(err))
	}
	return mc.notifier.NotifyScreenShare(false)
}

// Close stops any active share and releases the camera.
func (mc *MediaController) Close() error {
	mc.mu.Lock()
	screen := mc.screen
	camera := mc.camera
	mc.screen = nil
	mc.camera = nil
	mc.mu.Unlock()

	if screen != nil {
		if err := screen.Close(); err != nil {
			logger.Debug("error closing screen source", zap.Error(err))
		}
	}
	if camera != nil {
		return camera.Close()
	}
	return nil
}

// revertToCameraLocked swaps the camera back in. The caller holds mc.mu.
func (mc *MediaController) revertToCameraLocked() {
	if mc.camera == nil {
		return
	}
	if err := mc.swapper.ReplaceVideoTrack(mc.camera.Track()); err != nil {
		logger.Warn("failed to restore camera track", zap.Error(err))
	}
}
