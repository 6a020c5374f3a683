package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Websocket service configuration
const (
	MaxWebSocketClients   = 100
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPongTimeout  = 60 * time.Second
	WebSocketPingInterval = 30 * time.Second
	DefaultRefreshInterval = 5 * time.Minute
)

// watchlistUpdateMessage is the payload pushed to subscribed clients
type watchlistUpdateMessage struct {
	Type    string                  `json:"type"`
	Success bool                    `json:"success"`
	Total   int                     `json:"total"`
	Data    []EnrichedWatchlistItem `json:"data"`
}

// clientCommand is what connected clients may send us
type clientCommand struct {
	Action string `json:"action"`
	UserID uint   `json:"userId"`
}

// WSClient is one live websocket connection. A connection belongs to at most
// one user at a time; userID is zero until the client joins.
type WSClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	userID uint
	closed bool
}

// BroadcastService owns the connection registry and delivers enriched
// watchlist payloads to exactly the connections subscribed to each user.
// One instance per process, with an explicit Start/Stop lifecycle.
type BroadcastService struct {
	aggregator *WatchlistAggregator
	upgrader   websocket.Upgrader

	mu        sync.RWMutex
	clients   map[*WSClient]bool
	groups    map[uint]map[*WSClient]bool // userID -> connections
	isRunning bool
}

// NewBroadcastService creates the process-scoped broadcast service
func NewBroadcastService(aggregator *WatchlistAggregator) *BroadcastService {
	return &BroadcastService{
		aggregator: aggregator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*WSClient]bool),
		groups:  make(map[uint]map[*WSClient]bool),
	}
}

// Start marks the service as accepting connections
func (s *BroadcastService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = true
	log.Println("Broadcast service started")
}

// Stop closes every client connection and stops accepting new ones
func (s *BroadcastService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isRunning = false
	for client := range s.clients {
		if !client.closed {
			client.closed = true
			close(client.send)
		}
		client.conn.Close()
	}
	s.clients = make(map[*WSClient]bool)
	s.groups = make(map[uint]map[*WSClient]bool)
	log.Println("Broadcast service stopped")
}

// HandleWebSocket upgrades an HTTP request to a websocket connection
func (s *BroadcastService) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.isRunning
	atCapacity := len(s.clients) >= MaxWebSocketClients
	s.mu.RUnlock()

	if !running || atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &WSClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
	}

	s.register(client)

	go client.writePump()
	go client.readPump(s)
}

func (s *BroadcastService) register(client *WSClient) {
	s.mu.Lock()
	s.clients[client] = true
	clientCount := len(s.clients)
	s.mu.Unlock()
	log.Printf("WebSocket client %s connected. Total clients: %d", client.id, clientCount)
}

func (s *BroadcastService) unregister(client *WSClient) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		s.removeFromGroupLocked(client)
		if !client.closed {
			client.closed = true
			close(client.send)
		}
	}
	clientCount := len(s.clients)
	s.mu.Unlock()
	log.Printf("WebSocket client %s disconnected. Total clients: %d", client.id, clientCount)
}

// Join associates a connection with a user's group. Idempotent; joining a
// different user moves the connection.
func (s *BroadcastService) Join(client *WSClient, userID uint) {
	if userID == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client.userID == userID {
		return
	}
	s.removeFromGroupLocked(client)

	client.userID = userID
	if _, ok := s.groups[userID]; !ok {
		s.groups[userID] = make(map[*WSClient]bool)
	}
	s.groups[userID][client] = true
	log.Printf("WebSocket client %s joined user %d", client.id, userID)
}

// Leave removes a connection from whatever group it is in; no-op if absent
func (s *BroadcastService) Leave(client *WSClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeFromGroupLocked(client)
}

// removeFromGroupLocked removes the client from its user group. Caller holds s.mu.
func (s *BroadcastService) removeFromGroupLocked(client *WSClient) {
	if client.userID == 0 {
		return
	}
	if group, ok := s.groups[client.userID]; ok {
		delete(group, client)
		if len(group) == 0 {
			delete(s.groups, client.userID)
		}
	}
	client.userID = 0
}

// DeliverAll sends each user's enriched sequence to every connection in that
// user's group. Users with zero connections are skipped.
func (s *BroadcastService) DeliverAll(batches map[uint][]EnrichedWatchlistItem) {
	for userID, items := range batches {
		s.DeliverOne(userID, items)
	}
}

// DeliverOne sends one user's enriched sequence to that user's connections.
// Delivery failure to an individual connection is swallowed. Sends happen under
// the registry lock: unregister and Stop close send channels under the write
// lock, so a send can never race a close.
func (s *BroadcastService) DeliverOne(userID uint, items []EnrichedWatchlistItem) {
	s.mu.RLock()
	subscribed := len(s.groups[userID]) > 0
	s.mu.RUnlock()
	if !subscribed {
		return
	}

	payload := watchlistUpdateMessage{
		Type:    "watchlistUpdate",
		Success: true,
		Total:   len(items),
		Data:    items,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling watchlist update for user %d: %v", userID, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.groups[userID] {
		if client.closed {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client buffer full; drop this delivery, the pumps clean up
			// stuck connections via ping timeouts.
		}
	}
}

// RefreshAll runs a full aggregation cycle and delivers the results.
// Invoked by the scheduler on every tick.
func (s *BroadcastService) RefreshAll(ctx context.Context) {
	batches, err := s.aggregator.RunCycle(ctx)
	if err != nil {
		log.Printf("Refresh cycle failed: %v", err)
		return
	}
	s.DeliverAll(batches)
}

// NotifyMutation refreshes and delivers one user's watchlist. Called
// synchronously from mutation handlers before their HTTP response returns.
func (s *BroadcastService) NotifyMutation(ctx context.Context, userID uint) error {
	items, err := s.aggregator.RunForOne(ctx, userID)
	if err != nil {
		return err
	}
	s.DeliverOne(userID, items)
	return nil
}

// GetClientCount returns the number of connected clients
func (s *BroadcastService) GetClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// writePump writes messages to the websocket connection
func (c *WSClient) writePump() {
	ticker := time.NewTicker(WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads join/leave commands from the websocket connection
func (c *WSClient) readPump(s *BroadcastService) {
	defer func() {
		s.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}

		switch cmd.Action {
		case "join":
			s.Join(c, cmd.UserID)
		case "leave":
			s.Leave(c)
		}
	}
}
