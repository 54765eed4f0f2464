package constants

import "time"

const (
	DefaultICETimeout = 10 * time.Second
	DefaultStreamID   = "classlink"
)

// DefaultStunServers are used when the deployment configures no ICE servers.
var DefaultStunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Track identifiers within a participant's outbound stream.
const (
	AudioTrackID  = "audio"
	CameraTrackID = "camera"
	ScreenTrackID = "screen"
)
