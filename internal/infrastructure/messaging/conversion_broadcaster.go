// Package messaging pushes recorded conversions to connected dashboard
// clients over websockets.
package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/domain/attribution"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/performance"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 64
	broadcastQueue = 256
)

// ConversionEvent is the payload sent to clients for each new conversion.
type ConversionEvent struct {
	Type       string                  `json:"type"`
	Conversion *attribution.Conversion `json:"conversion"`
}

// StreamClient is a single connected feed consumer.
type StreamClient struct {
	Conn *websocket.Conn
	Send chan []byte
}

// NewStreamClient wraps conn with a buffered outbound queue.
func NewStreamClient(conn *websocket.Conn) *StreamClient {
	return &StreamClient{
		Conn: conn,
		Send: make(chan []byte, clientBuffer),
	}
}

// ConversionBroadcaster fans conversions out to every registered client.
// Clients whose queue is full are dropped rather than slowing the feed.
type ConversionBroadcaster struct {
	clients    map[*StreamClient]bool
	register   chan *StreamClient
	unregister chan *StreamClient
	broadcast  chan []byte
	done       chan struct{}
	logger     *logging.ChanneledLogger
	perf       *performance.Tracker
	mu         sync.RWMutex
}

// NewConversionBroadcaster creates a broadcaster. Run must be started before
// clients can register.
func NewConversionBroadcaster(logger *logging.ChanneledLogger, perf *performance.Tracker) *ConversionBroadcaster {
	return &ConversionBroadcaster{
		clients:    make(map[*StreamClient]bool),
		register:   make(chan *StreamClient),
		unregister: make(chan *StreamClient),
		broadcast:  make(chan []byte, broadcastQueue),
		done:       make(chan struct{}),
		logger:     logger,
		perf:       perf,
	}
}

// Run is the broadcaster's main loop. It returns when ctx is cancelled,
// closing every client queue.
func (b *ConversionBroadcaster) Run(ctx context.Context) {
	defer func() {
		b.mu.Lock()
		for client := range b.clients {
			delete(b.clients, client)
			close(client.Send)
			b.perf.Increment(performance.CounterStreamClients, -1)
		}
		b.mu.Unlock()
		close(b.done)
		b.logger.Stream().Info("Conversion broadcaster stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.perf.Increment(performance.CounterStreamClients, 1)
			count := len(b.clients)
			b.mu.Unlock()
			b.logger.Stream().Debug("Stream client registered", "clients", count)

		case client := <-b.unregister:
			b.remove(client, "unregistered")

		case message := <-b.broadcast:
			var slow []*StreamClient
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client.Send <- message:
				default:
					slow = append(slow, client)
				}
			}
			b.mu.RUnlock()
			for _, client := range slow {
				b.remove(client, "dropped slow client")
			}
		}
	}
}

func (b *ConversionBroadcaster) remove(client *StreamClient, reason string) {
	b.mu.Lock()
	_, ok := b.clients[client]
	if ok {
		delete(b.clients, client)
		close(client.Send)
		b.perf.Increment(performance.CounterStreamClients, -1)
	}
	count := len(b.clients)
	b.mu.Unlock()

	if ok {
		b.logger.Stream().Debug("Stream client "+reason, "clients", count)
	}
}

// Register queues a client for registration. It reports false once the
// broadcaster has stopped.
func (b *ConversionBroadcaster) Register(client *StreamClient) bool {
	select {
	case b.register <- client:
		return true
	case <-b.done:
		return false
	}
}

// Unregister queues a client for removal.
func (b *ConversionBroadcaster) Unregister(client *StreamClient) {
	select {
	case b.unregister <- client:
	case <-b.done:
	}
}

// ClientCount returns the number of registered clients.
func (b *ConversionBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// PublishConversion queues c for every client. It never blocks; when the
// queue is full the event is dropped.
func (b *ConversionBroadcaster) PublishConversion(c *attribution.Conversion) {
	message, err := json.Marshal(ConversionEvent{Type: "conversion", Conversion: c})
	if err != nil {
		b.logger.Stream().Error("Failed to marshal conversion event", "error", err.Error(), "conversionId", c.ConversionID)
		return
	}

	select {
	case <-b.done:
	case b.broadcast <- message:
	default:
		b.logger.Stream().Warn("Conversion feed queue full, event dropped", "conversionId", c.ConversionID)
	}
}

// ServeClient attaches conn to the feed and blocks until the client goes away.
func (b *ConversionBroadcaster) ServeClient(conn *websocket.Conn) {
	client := NewStreamClient(conn)
	if !b.Register(client) {
		conn.Close()
		return
	}
	go client.writePump()
	client.readPump(b)
}

// readPump discards inbound messages and keeps the read deadline alive.
func (c *StreamClient) readPump(b *ConversionBroadcaster) {
	defer func() {
		b.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				b.logger.Stream().Warn("Stream client read error", "error", err.Error())
			}
			return
		}
	}
}

func (c *StreamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
