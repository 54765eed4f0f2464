package constants

import "time"

// Peer link backends selectable via configuration.
const (
	BackendMesh     = "mesh"
	BackendProvider = "provider"
)

// Websocket transport parameters for relay connections.
const (
	// WriteWait is the time allowed to write a message to a peer.
	WriteWait = 10 * time.Second

	// PongWait is the time allowed to read the next pong from a peer.
	PongWait = 60 * time.Second

	// PingPeriod must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize bounds inbound messages; SDP payloads fit well below this.
	MaxMessageSize = 64 * 1024

	// SendBufferSize is the per-client outbound queue length.
	SendBufferSize = 256
)

const (
	SignalingPath = "/ws/signaling"
	HealthPath    = "/health"
	MetricsPath   = "/metrics"
)

const (
	ENV_SESSION_API_BASE = "SESSION_API_BASE"
	ENV_PEER_BACKEND     = "PEER_BACKEND"
	ENV_PROVIDER_BASE    = "PROVIDER_BASE_URL"
	ENV_PROVIDER_KEY     = "PROVIDER_API_KEY"
	ENV_ICE_SERVERS      = "ICE_SERVERS"
)
