package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"inbox-service/internal/models"
	"inbox-service/internal/observability"
)

// Client is one registered inbox socket. Writes are serialized per connection.
type Client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

// Send writes one inbox event to the socket.
func (c *Client) Send(event models.InboxEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains the open inbox sockets of every user.
type Hub struct {
	inboxes map[string]map[*websocket.Conn]*Client
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{inboxes: make(map[string]map[*websocket.Conn]*Client)}
}

// AddInboxClient registers a websocket connection for userID.
func (h *Hub) AddInboxClient(userID string, conn *websocket.Conn, info ConnInfo) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.inboxes[userID]; !ok {
		h.inboxes[userID] = make(map[*websocket.Conn]*Client)
	}
	client := &Client{conn: conn, info: info}
	h.inboxes[userID][conn] = client
	return client
}

// RemoveInboxClient removes an inbox websocket connection.
func (h *Hub) RemoveInboxClient(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.inboxes[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.inboxes, userID)
		}
	}
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.inboxes[userID])
}

// BroadcastMessage pushes a newly confirmed message to every socket of userID.
func (h *Hub) BroadcastMessage(userID string, msg models.Message) {
	h.broadcast(userID, models.InboxEvent{Type: "message", Message: &msg})
}

// BroadcastConversations pushes a conversation list to every socket of userID.
func (h *Hub) BroadcastConversations(userID string, convs []models.Conversation) {
	h.broadcast(userID, models.InboxEvent{Type: "conversations", Conversations: convs})
}

func (h *Hub) broadcast(userID string, event models.InboxEvent) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.inboxes[userID]))
	for _, client := range h.inboxes[userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.Send(event); err != nil {
			log.Printf("websocket write error user_id=%s conn_id=%s: %v", userID, client.info.ConnID, err)
			client.conn.Close()
			h.RemoveInboxClient(userID, client.conn)
			publishWSEvent(context.Background(), "ws_error", client.info, err.Error())
		}
	}
}

func publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	envelope := observability.WSEnvelope(event, info.ConnID, info.UserID, info.DeviceID, info.IP, reason, time.Since(info.ConnectedAt))
	_ = observability.PublishEvent(ctx, observability.RoutingWSInbox, envelope, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent("inbox", event)
}
