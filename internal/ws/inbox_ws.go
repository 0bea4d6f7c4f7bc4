package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"inbox-service/internal/auth"
	"inbox-service/internal/models"
	"inbox-service/internal/observability"
	"inbox-service/internal/repositories"
	"inbox-service/internal/synchronizer"
)

// InboxWebSocketHandler streams a user's conversation list over a websocket.
type InboxWebSocketHandler struct {
	hub      *Hub
	verifier auth.Verifier
	registry *synchronizer.Registry
	feed     repositories.MessageFeed
	users    repositories.UserRepository
	opts     synchronizer.SubscribeOptions
}

// NewInboxWebSocketHandler constructs an InboxWebSocketHandler.
func NewInboxWebSocketHandler(hub *Hub, verifier auth.Verifier, registry *synchronizer.Registry, feed repositories.MessageFeed, users repositories.UserRepository, opts synchronizer.SubscribeOptions) *InboxWebSocketHandler {
	return &InboxWebSocketHandler{hub: hub, verifier: verifier, registry: registry, feed: feed, users: users, opts: opts}
}

// Handle authenticates, upgrades and serves the socket until the client leaves.
func (h *InboxWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("inbox-service/ws").Start(c.Request.Context(), "ws.handshake")

	userID, err := h.verifier.Verify(ctx, observability.BearerToken(c.Request))
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}
	traceID := span.SpanContext().TraceID().String()
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := h.hub.AddInboxClient(userID, conn, info)
	span.End()

	observability.IncWSActive("inbox")
	publishWSEvent(ctx, "ws_connect", info, "")

	ctx, cancel := context.WithCancel(ctx)
	syncer, release := h.registry.Acquire(userID)
	sub := syncer.Subscribe(ctx, h.feed, h.opts)
	go h.forward(ctx, client, sub)

	closeReason := readUntilClosed(conn)
	if closeReason != "" {
		publishWSEvent(ctx, "ws_error", info, closeReason)
	}

	cancel()
	sub.Close()
	release()
	h.hub.RemoveInboxClient(userID, conn)
	conn.Close()
	observability.DecWSActive("inbox")
	publishWSEvent(context.Background(), "ws_disconnect", info, closeReason)
}

// forward relays subscription updates; a subscription that ends on its own
// (for example a rejected viewer) closes the socket.
func (h *InboxWebSocketHandler) forward(ctx context.Context, client *Client, sub *synchronizer.Subscription) {
	for convs := range sub.Updates() {
		event := models.InboxEvent{
			Type:          "conversations",
			Conversations: synchronizer.DecorateProfiles(ctx, h.users, convs),
		}
		if err := client.Send(event); err != nil {
			log.Printf("inbox websocket send failed user_id=%s conn_id=%s: %v", client.info.UserID, client.info.ConnID, err)
			client.conn.Close()
			return
		}
	}
	if ctx.Err() == nil {
		client.mu.Lock()
		_ = client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscription ended"),
			time.Now().Add(writeWait))
		client.mu.Unlock()
		client.conn.Close()
	}
}

// readUntilClosed drains client frames and returns a reason for abnormal closes.
func readUntilClosed(conn *websocket.Conn) string {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ""
			}
			return err.Error()
		}
	}
}
