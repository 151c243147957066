package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"interview-monitor/pkg/escalation"
	"interview-monitor/pkg/storage"
	"interview-monitor/pkg/timeline"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Feed message types
const (
	FeedTimelineEntry  = "timeline_entry"
	FeedWarning        = "warning"
	FeedEscalation     = "escalation"
	FeedEvidence       = "evidence"
	FeedSessionStarted = "session_started"
	FeedSessionEnded   = "session_ended"
	FeedTranscript     = "transcript"
)

const (
	clientSendBuffer = 256
	broadcastBuffer  = 1024
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// FeedMessage is one live update pushed to proctor dashboards
type FeedMessage struct {
	Type      string      `json:"type"`
	MonitorID string      `json:"monitor_id"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Client represents a connected dashboard websocket
type Client struct {
	hub       *LiveHub
	conn      *websocket.Conn
	send      chan []byte
	monitorID string
}

// LiveHub fans monitor events out to websocket clients. Clients may
// subscribe to one monitor or, with no filter, to all of them.
type LiveHub struct {
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
	clients     map[*Client]bool
	subscribers map[string]map[*Client]bool
	broadcast   chan *FeedMessage
	register    chan *Client
	unregister  chan *Client
	quit        chan struct{}
	mutex       sync.RWMutex
	running     atomic.Bool
	dropped     atomic.Int64
}

// NewLiveHub creates a new hub. allowedOrigins restricts upgrades when non-empty.
func NewLiveHub(logger *logrus.Logger, allowedOrigins []string) *LiveHub {
	return &LiveHub{
		logger:      logger,
		upgrader:    newUpgrader(allowedOrigins),
		clients:     make(map[*Client]bool),
		subscribers: make(map[string]map[*Client]bool),
		broadcast:   make(chan *FeedMessage, broadcastBuffer),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		quit:        make(chan struct{}),
	}
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
		},
	}
}

// Run processes registrations and broadcasts until ctx is cancelled
func (h *LiveHub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.quit)
	}()
	h.logger.Info("Starting live feed hub")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("Live feed hub stopped")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			if client.monitorID != "" {
				if _, ok := h.subscribers[client.monitorID]; !ok {
					h.subscribers[client.monitorID] = make(map[*Client]bool)
				}
				h.subscribers[client.monitorID][client] = true
			}
			h.mutex.Unlock()
			h.logger.WithField("monitor_id", client.monitorID).Debug("Live feed client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			h.removeLocked(client)
			h.mutex.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.WithError(err).WithField("type", message.Type).Error("Failed to marshal feed message")
				continue
			}

			h.mutex.Lock()
			for client := range h.subscribers[message.MonitorID] {
				h.deliverLocked(client, data)
			}
			for client := range h.clients {
				if client.monitorID == "" {
					h.deliverLocked(client, data)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// deliverLocked drops clients that cannot keep up. Callers hold h.mutex.
func (h *LiveHub) deliverLocked(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.logger.WithField("monitor_id", client.monitorID).Warn("Live feed client too slow, disconnecting")
		h.removeLocked(client)
	}
}

func (h *LiveHub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	if subs, ok := h.subscribers[client.monitorID]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscribers, client.monitorID)
		}
	}
}

func (h *LiveHub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		h.removeLocked(client)
	}
}

// Broadcast queues a message without blocking. Messages are dropped when the hub is saturated.
func (h *LiveHub) Broadcast(msg *FeedMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.WithField("type", msg.Type).Warn("Live feed saturated, dropping message")
	}
}

// ServeWs upgrades a dashboard connection. The optional monitor query
// parameter limits the feed to one monitor.
func (h *LiveHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade live feed connection")
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, clientSendBuffer),
		monitorID: r.URL.Query().Get("monitor"),
	}

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected clients
func (h *LiveHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether Run is active
func (h *LiveHub) IsRunning() bool {
	return h.running.Load()
}

// Dropped returns how many messages were discarded because the hub was saturated
func (h *LiveHub) Dropped() int64 {
	return h.dropped.Load()
}

// readPump discards client input and unregisters on disconnect
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// OnTranscription forwards speech-to-text results to the monitor's subscribers
func (h *LiveHub) OnTranscription(streamID string, text string, isFinal bool, _ map[string]interface{}) {
	h.Broadcast(&FeedMessage{
		Type:      FeedTranscript,
		MonitorID: streamID,
		Data: map[string]interface{}{
			"text":     text,
			"is_final": isFinal,
		},
	})
}

// ForMonitor returns the notifier, timeline listener and lifecycle hooks for one monitor
func (h *LiveHub) ForMonitor(monitorID string) *MonitorFeed {
	return &MonitorFeed{hub: h, monitorID: monitorID}
}

// MonitorFeed publishes one monitor's events to the hub
type MonitorFeed struct {
	hub       *LiveHub
	monitorID string
}

func (f *MonitorFeed) push(kind, sessionID string, data interface{}) {
	f.hub.Broadcast(&FeedMessage{
		Type:      kind,
		MonitorID: f.monitorID,
		SessionID: sessionID,
		Data:      data,
	})
}

func (f *MonitorFeed) Warn(n escalation.Notice) { f.push(FeedWarning, n.SessionID, n) }

func (f *MonitorFeed) Escalate(e escalation.Escalation) { f.push(FeedEscalation, e.SessionID, e) }

func (f *MonitorFeed) Evidence(n escalation.Notice) { f.push(FeedEvidence, n.SessionID, n) }

func (f *MonitorFeed) OnEntry(sessionID string, entry timeline.Entry) {
	f.push(FeedTimelineEntry, sessionID, entry)
}

func (f *MonitorFeed) SessionStarted(record storage.SessionRecord) {
	f.push(FeedSessionStarted, record.SessionID, record)
}

func (f *MonitorFeed) SessionEnded(record storage.SessionRecord) {
	f.push(FeedSessionEnded, record.SessionID, record)
}
