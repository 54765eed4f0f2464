package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid"
	"go.uber.org/zap"

	apperrors "github.com/EduMesh/ClassLink/pkg/errors"
	"github.com/EduMesh/ClassLink/pkg/logger"
	"github.com/EduMesh/ClassLink/pkg/metrics"
	"github.com/EduMesh/ClassLink/pkg/protocol"
	"github.com/EduMesh/ClassLink/pkg/registry"
	"github.com/EduMesh/ClassLink/pkg/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the signaling path carries no credentials; origin policy is
		// enforced by the fronting proxy in deployment
		return true
	},
}

// Relay routes signaling envelopes between the right parties and never
// interprets handshake content. It owns the set of connected clients; room
// membership lives in the registry.
type Relay struct {
	registry *registry.Registry
	sessions session.Resolver

	mu      sync.RWMutex
	clients map[string]*Client
}

// New creates a relay over the given registry and session resolver.
func New(reg *registry.Registry, sessions session.Resolver) *Relay {
	if sessions == nil {
		sessions = &session.StaticResolver{}
	}
	return &Relay{
		registry: reg,
		sessions: sessions,
		clients:  make(map[string]*Client),
	}
}

// Registry exposes the underlying room registry.
func (r *Relay) Registry() *registry.Registry {
	return r.registry
}

// ServeWS upgrades an HTTP request to a signaling connection, assigns it a
// fresh connection id and starts its pumps.
func (r *Relay) ServeWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(r, conn, uuid.NewString())
	r.mu.Lock()
	r.clients[client.ConnectionID] = client
	r.mu.Unlock()
	metrics.ConnectionsActive.Inc()

	client.enqueue(protocol.NewEnvelope(protocol.TypeWelcome, protocol.WelcomePayload{
		ConnectionID: client.ConnectionID,
	}))

	logger.Info("signaling connection opened",
		zap.String("connection_id", client.ConnectionID),
		zap.String("remote_addr", conn.RemoteAddr().String()))

	go client.writePump()
	go client.readPump()
}

// dispatch routes one inbound envelope. Malformed and unexpected messages
// are dropped with a log entry; they never terminate the sender's connection
// or affect anyone else.
func (r *Relay) dispatch(c *Client, env *protocol.Envelope) {
	payload, err := env.DecodePayload()
	if err != nil {
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
		logger.Warn("dropping malformed message",
			zap.String("connection_id", c.ConnectionID),
			zap.String("type", string(env.Type)),
			zap.Error(err))
		return
	}

	switch env.Type {
	case protocol.TypeJoinRoom:
		r.handleJoin(c, payload.(*protocol.JoinRoomPayload))
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		r.handleForward(c, env)
	case protocol.TypeMediaStateChange:
		r.handleMediaState(c, payload.(*protocol.MediaStatePayload))
	case protocol.TypeScreenShareStarted:
		r.handleScreenShare(c, true)
	case protocol.TypeScreenShareStopped:
		r.handleScreenShare(c, false)
	case protocol.TypeLeaveRoom:
		r.handleLeave(c)
	default:
		// a client echoing server-to-client types is a protocol error
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
		logger.Warn("dropping unexpected message type",
			zap.String("connection_id", c.ConnectionID),
			zap.String("type", string(env.Type)))
	}
}

func (r *Relay) handleJoin(c *Client, join *protocol.JoinRoomPayload) {
	if join.RoomSlug == "" || join.SessionID == "" {
		c.enqueue(errorEnvelope(apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "roomSlug and sessionId are required")))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.sessions.ValidateSession(ctx, join.SessionID); err != nil {
		logger.Warn("join rejected",
			zap.String("connection_id", c.ConnectionID),
			zap.String("session_id", join.SessionID),
			zap.Error(err))
		c.enqueue(errorEnvelope(err))
		return
	}

	// the join flag is advisory; a recognized host is forced true
	isHost := join.IsHost
	if join.UserID != "" {
		if resolved, err := r.sessions.IsHost(ctx, join.SessionID, join.UserID); err == nil && resolved {
			isHost = true
		}
	}

	displayName := join.DisplayName
	if displayName == "" {
		suffix, _ := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 6)
		displayName = fmt.Sprintf("guest-%s", suffix)
	}

	key := registry.RoomKey{Slug: join.RoomSlug, SessionID: join.SessionID}

	// switching rooms implicitly leaves the previous one; its members must
	// hear peer-left now, not when the transport eventually drops
	if prev, joined := c.currentRoom(); joined && prev != key {
		if r.registry.Leave(prev, c.ConnectionID) {
			metrics.LeavesTotal.Inc()
			r.broadcast(prev, c.ConnectionID, protocol.NewEnvelope(protocol.TypePeerLeft, protocol.PeerLeftPayload{
				ConnectionID: c.ConnectionID,
			}))
			logger.Info("participant switched rooms",
				zap.String("from", prev.String()),
				zap.String("to", key.String()),
				zap.String("connection_id", c.ConnectionID))
		}
	}

	participant := registry.Participant{
		ConnectionID: c.ConnectionID,
		UserID:       join.UserID,
		DisplayName:  displayName,
		IsHost:       isHost,
		HasVideo:     true,
		HasAudio:     true,
	}

	// re-join with the same connection id replaces the prior entry
	existing := r.registry.Join(key, participant)
	c.setRoom(key)
	metrics.JoinsTotal.Inc()
	metrics.RoomsActive.Set(float64(r.registry.RoomCount()))

	roster := make([]protocol.Participant, 0, len(existing))
	for _, p := range existing {
		roster = append(roster, toProtocol(p))
	}
	c.enqueue(protocol.NewEnvelope(protocol.TypeExistingParticipants, protocol.ExistingParticipantsPayload{
		Participants: roster,
	}))

	r.broadcast(key, c.ConnectionID, protocol.NewEnvelope(protocol.TypePeerJoined, toProtocol(participant)))

	logger.Info("participant joined room",
		zap.String("room", key.String()),
		zap.String("connection_id", c.ConnectionID),
		zap.String("display_name", displayName),
		zap.Bool("is_host", isHost),
		zap.Int("existing", len(existing)))
}

// handleForward relays an offer, answer or ICE candidate verbatim to its
// target, tagged with the sender's connection id. A vanished target is a
// silent drop: the sender will observe peer-left shortly.
func (r *Relay) handleForward(c *Client, env *protocol.Envelope) {
	key, joined := c.currentRoom()
	if !joined {
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonNotInRoom).Inc()
		logger.Debug("dropping handshake payload from client outside any room",
			zap.String("connection_id", c.ConnectionID))
		return
	}
	if env.Target == "" {
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
		return
	}

	// the target must share the sender's room; anything else is stale
	if _, ok := r.registry.Member(key, env.Target); !ok {
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonUnknownTarget).Inc()
		logger.Debug("dropping handshake payload for unknown target",
			zap.String("connection_id", c.ConnectionID),
			zap.String("target", env.Target),
			zap.String("type", string(env.Type)))
		return
	}

	r.mu.RLock()
	target, ok := r.clients[env.Target]
	r.mu.RUnlock()
	if !ok {
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonUnknownTarget).Inc()
		return
	}

	target.enqueue(env.Forwarded(c.ConnectionID))
	metrics.RelayedTotal.WithLabelValues(string(env.Type)).Inc()
}

func (r *Relay) handleMediaState(c *Client, state *protocol.MediaStatePayload) {
	key, joined := c.currentRoom()
	if !joined {
		return
	}
	// unknown connection means the leave already won the race; no-op
	if !r.registry.UpdateMediaState(key, c.ConnectionID, state.HasVideo, state.HasAudio) {
		return
	}
	r.broadcast(key, c.ConnectionID, protocol.NewEnvelope(protocol.TypePeerMediaChanged, protocol.PeerMediaChangedPayload{
		ConnectionID: c.ConnectionID,
		HasVideo:     state.HasVideo,
		HasAudio:     state.HasAudio,
	}))
}

func (r *Relay) handleScreenShare(c *Client, sharing bool) {
	key, joined := c.currentRoom()
	if !joined {
		return
	}
	r.broadcast(key, c.ConnectionID, protocol.NewEnvelope(protocol.TypePeerScreenShare, protocol.PeerScreenSharePayload{
		ConnectionID: c.ConnectionID,
		IsSharing:    sharing,
	}))
}

func (r *Relay) handleLeave(c *Client) {
	key, joined := c.currentRoom()
	if !joined {
		return
	}
	c.clearRoom()
	if r.registry.Leave(key, c.ConnectionID) {
		metrics.LeavesTotal.Inc()
		metrics.RoomsActive.Set(float64(r.registry.RoomCount()))
		r.broadcast(key, c.ConnectionID, protocol.NewEnvelope(protocol.TypePeerLeft, protocol.PeerLeftPayload{
			ConnectionID: c.ConnectionID,
		}))
	}
	logger.Info("participant left room",
		zap.String("room", key.String()),
		zap.String("connection_id", c.ConnectionID))
}

// disconnect handles transport-level connection loss. Idempotent with an
// explicit prior leave.
func (r *Relay) disconnect(c *Client) {
	r.mu.Lock()
	delete(r.clients, c.ConnectionID)
	r.mu.Unlock()
	metrics.ConnectionsActive.Dec()

	if key, removed := r.registry.Disconnect(c.ConnectionID); removed {
		metrics.LeavesTotal.Inc()
		metrics.RoomsActive.Set(float64(r.registry.RoomCount()))
		r.broadcast(key, c.ConnectionID, protocol.NewEnvelope(protocol.TypePeerLeft, protocol.PeerLeftPayload{
			ConnectionID: c.ConnectionID,
		}))
		logger.Info("participant disconnected",
			zap.String("room", key.String()),
			zap.String("connection_id", c.ConnectionID))
	}
	c.clearRoom()
}

// broadcast fans an envelope out to every room member except excludeConnID.
// Each delivery is independent; a full queue on one member drops only that
// member's copy.
func (r *Relay) broadcast(key registry.RoomKey, excludeConnID string, env protocol.Envelope) {
	for _, p := range r.registry.Roster(key, excludeConnID) {
		r.mu.RLock()
		target, ok := r.clients[p.ConnectionID]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		target.enqueue(env)
	}
}

func toProtocol(p registry.Participant) protocol.Participant {
	return protocol.Participant{
		ConnectionID: p.ConnectionID,
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		IsHost:       p.IsHost,
		HasVideo:     p.HasVideo,
		HasAudio:     p.HasAudio,
	}
}

func errorEnvelope(err error) protocol.Envelope {
	code := apperrors.ErrCodeInternal
	msg := err.Error()
	if appErr, ok := apperrors.AsAppError(err); ok {
		code = appErr.Code
		msg = appErr.Message
	}
	return protocol.NewEnvelope(protocol.TypeError, protocol.ErrorPayload{
		Code:    string(code),
		Message: msg,
	})
}
