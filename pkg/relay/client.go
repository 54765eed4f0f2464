package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/EduMesh/ClassLink/pkg/constants"
	"github.com/EduMesh/ClassLink/pkg/logger"
	"github.com/EduMesh/ClassLink/pkg/metrics"
	"github.com/EduMesh/ClassLink/pkg/protocol"
	"github.com/EduMesh/ClassLink/pkg/registry"
)

// Client wraps one signaling websocket connection. All reads happen on the
// readPump goroutine and all writes on the writePump goroutine, so a client's
// inbound messages are processed in arrival order and its outbound queue is
// the only cross-goroutine handoff.
type Client struct {
	relay *Relay
	conn  *websocket.Conn

	ConnectionID string

	// send is the outbound queue. Enqueueing never blocks: when the queue
	// is full the message is dropped and counted, so one slow consumer
	// cannot stall fan-out to the rest of a room.
	send chan protocol.Envelope

	mu     sync.Mutex
	room   registry.RoomKey
	joined bool

	closeOnce sync.Once
}

func newClient(relay *Relay, conn *websocket.Conn, connectionID string) *Client {
	return &Client{
		relay:        relay,
		conn:         conn,
		ConnectionID: connectionID,
		send:         make(chan protocol.Envelope, constants.SendBufferSize),
	}
}

func (c *Client) setRoom(key registry.RoomKey) {
	c.mu.Lock()
	c.room = key
	c.joined = true
	c.mu.Unlock()
}

func (c *Client) clearRoom() {
	c.mu.Lock()
	c.room = registry.RoomKey{}
	c.joined = false
	c.mu.Unlock()
}

func (c *Client) currentRoom() (registry.RoomKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.joined
}

// enqueue hands an envelope to the write pump without blocking. Returns false
// when the message was dropped because the queue is full.
func (c *Client) enqueue(env protocol.Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonSlowConsumer).Inc()
		logger.Warn("outbound queue full, dropping message",
			zap.String("connection_id", c.ConnectionID),
			zap.String("type", string(env.Type)))
		return false
	}
}

// readPump reads envelopes until the connection drops, dispatching each to
// the relay in arrival order. On exit the connection is treated as an
// ungraceful disconnect.
func (c *Client) readPump() {
	defer func() {
		c.relay.disconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(constants.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	})

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed",
					zap.String("connection_id", c.ConnectionID),
					zap.Error(err))
			}
			return
		}
		c.relay.dispatch(c, &env)
	}
}

// writePump drains the send queue to the websocket and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				logger.Warn("websocket write failed",
					zap.String("connection_id", c.ConnectionID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}
