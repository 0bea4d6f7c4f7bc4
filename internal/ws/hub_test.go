package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-service/internal/models"
	"inbox-service/internal/repositories"
	"inbox-service/internal/synchronizer"
)

func TestHubAddAndRemoveInboxClient(t *testing.T) {
	hub := NewHub()

	hub.AddInboxClient("alice", nil, ConnInfo{UserID: "alice"})
	if len(hub.inboxes) != 1 {
		t.Fatalf("expected inbox to be created")
	}
	assert.Equal(t, 1, hub.Connections("alice"))

	hub.RemoveInboxClient("alice", nil)
	if len(hub.inboxes) != 0 {
		t.Fatalf("expected inbox to be removed")
	}
}

type tokenVerifier map[string]string

func (v tokenVerifier) Verify(ctx context.Context, token string) (string, error) {
	if userID, ok := v[token]; ok {
		return userID, nil
	}
	return "", errors.New("invalid token")
}

type staticFeed struct {
	msgs []models.Message
}

func (f *staticFeed) Open(ctx context.Context, userID string) (repositories.MessageStream, error) {
	return &staticStream{msgs: f.msgs}, nil
}

type staticStream struct {
	msgs []models.Message
	sent bool
}

func (s *staticStream) Next(ctx context.Context) ([]models.Message, error) {
	if !s.sent {
		s.sent = true
		return s.msgs, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *staticStream) Close() error { return nil }

func newInboxServer(t *testing.T, feed repositories.MessageFeed) (*httptest.Server, *Hub, *synchronizer.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	registry := synchronizer.NewRegistry(synchronizer.Deps{})
	handler := NewInboxWebSocketHandler(hub, tokenVerifier{"tok": "alice"},
		registry, feed, nil,
		synchronizer.SubscribeOptions{InitialBackoff: 10 * time.Millisecond})
	router := gin.New()
	router.GET("/ws/inbox", handler.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub, registry
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/inbox" + query
}

func TestInboxSocketStreamsConversations(t *testing.T) {
	sent := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	feed := &staticFeed{msgs: []models.Message{{
		ID:           "m1",
		Text:         "hi alice",
		SenderID:     "bob",
		ReceiverID:   "alice",
		Participants: []string{"alice", "bob"},
		Kind:         models.KindText,
		CreatedAt:    sent,
	}}}
	srv, hub, registry := newInboxServer(t, feed)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=tok"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var event models.InboxEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "conversations", event.Type)
	require.Len(t, event.Conversations, 1)
	conv := event.Conversations[0]
	assert.Equal(t, "bob", conv.ID)
	assert.Equal(t, "hi alice", conv.LastMessage)
	assert.True(t, conv.Unread)
	require.NotNil(t, conv.OtherUser)
	assert.Equal(t, models.UnknownUserName, conv.OtherUser.Name())
	assert.Equal(t, 1, hub.Connections("alice"))
	assert.Equal(t, 1, registry.Len())

	hub.BroadcastMessage("alice", models.Message{ID: "m2", SenderID: "bob", ReceiverID: "alice", Text: "again"})
	var pushed models.InboxEvent
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, "message", pushed.Type)
	require.NotNil(t, pushed.Message)
	assert.Equal(t, "m2", pushed.Message.ID)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return hub.Connections("alice") == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, registry.Len())
}

func TestInboxSocketRejectsBadToken(t *testing.T) {
	srv, _, _ := newInboxServer(t, &staticFeed{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
