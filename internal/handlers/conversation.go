package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leebenson/conform"

	"inbox-service/internal/models"
	"inbox-service/internal/notify"
	"inbox-service/internal/observability"
	"inbox-service/internal/repositories"
	"inbox-service/internal/storage"
	"inbox-service/internal/synchronizer"
	"inbox-service/internal/telemetry"
	"inbox-service/internal/ws"
)

// ConversationHandler serves the inbox endpoints of the signed-in user.
type ConversationHandler struct {
	registry *synchronizer.Registry
	users    repositories.UserRepository
	media    storage.ObjectStore
	notifier notify.Notifier
	hub      *ws.Hub
	audit    *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler. hub and audit may be nil.
func NewConversationHandler(registry *synchronizer.Registry, users repositories.UserRepository, media storage.ObjectStore, notifier notify.Notifier, hub *ws.Hub, audit *telemetry.AuditEmitter) *ConversationHandler {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &ConversationHandler{
		registry: registry,
		users:    users,
		media:    media,
		notifier: notifier,
		hub:      hub,
		audit:    audit,
	}
}

func (h *ConversationHandler) viewer(c *gin.Context) *synchronizer.Synchronizer {
	return h.registry.For(c.GetString("userID"))
}

// ListConversations returns the conversation list; a store outage serves the last good list as stale.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	convs, err := h.viewer(c).Refresh(ctx)
	stale := false
	if err != nil {
		if synchronizer.KindOf(err) != synchronizer.KindTransient {
			writeError(c, err)
			return
		}
		stale = true
	}
	c.JSON(http.StatusOK, gin.H{
		"conversations": synchronizer.DecorateProfiles(ctx, h.users, convs),
		"stale":         stale,
	})
}

// StartConversation returns the existing conversation with user_id or an empty one.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required" conform:"trim"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !trimStrings(c, &req) {
		return
	}

	conv, err := h.viewer(c).StartConversation(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	decorated := synchronizer.DecorateProfiles(c.Request.Context(), h.users, []models.Conversation{conv})
	c.JSON(http.StatusOK, decorated[0])
}

// GetMessages returns the thread with :user_id, oldest first.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	msgs, err := h.viewer(c).LoadThread(c.Request.Context(), c.Param("user_id"))
	stale := false
	if err != nil {
		if synchronizer.KindOf(err) != synchronizer.KindTransient {
			writeError(c, err)
			return
		}
		stale = true
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "stale": stale})
}

// PostMessage sends a text message to :user_id.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" conform:"trim"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !trimStrings(c, &req) {
		return
	}

	msg, err := h.viewer(c).SendMessage(c.Request.Context(), c.Param("user_id"), req.Text)
	h.respondSend(c, msg, err)
}

// PostSharedPost uploads the multipart image and shares it with :user_id.
func (h *ConversationHandler) PostSharedPost(c *gin.Context) {
	if h.media == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "media storage not configured"})
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, storage.MaxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
		return
	}
	prepared, err := storage.PrepareImage(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	viewer := h.viewer(c)
	otherID := c.Param("user_id")
	// reject a bad recipient before the image becomes public
	if err := viewer.CheckRecipient(otherID); err != nil {
		writeError(c, err)
		return
	}

	userID := c.GetString("userID")
	url, err := h.media.Put(c.Request.Context(), storage.SharedPostKey(userID, prepared.Ext), prepared.ContentType, prepared.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to upload image"})
		return
	}

	post := models.SharedPost{ImageURL: url, Caption: c.PostForm("caption")}
	msg, err := viewer.SendSharedPost(c.Request.Context(), otherID, post, c.PostForm("text"))
	h.respondSend(c, msg, err)
}

// MarkRead marks the inbound messages of the conversation with :user_id as read.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	viewer := h.viewer(c)
	otherID := c.Param("user_id")

	marked, err := viewer.MarkConversationRead(ctx, otherID)
	if err != nil {
		writeError(c, err)
		return
	}
	if marked > 0 {
		_ = observability.PublishEvent(ctx, observability.RoutingConversationRead,
			observability.ConversationReadEnvelope(viewer.ViewerID(), otherID, marked),
			observability.BuildHeaders(requestIDFromContext(c), ""))
		if h.hub != nil {
			h.hub.BroadcastConversations(viewer.ViewerID(), synchronizer.DecorateProfiles(ctx, h.users, viewer.Conversations()))
		}
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// RetryMessage resends the failed local message :local_id.
func (h *ConversationHandler) RetryMessage(c *gin.Context) {
	msg, err := h.viewer(c).RetryMessage(c.Request.Context(), c.Param("local_id"))
	h.respondSend(c, msg, err)
}

// DiscardMessage drops the failed local message :local_id.
func (h *ConversationHandler) DiscardMessage(c *gin.Context) {
	if err := h.viewer(c).DiscardMessage(c.Param("local_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SearchUsers filters the followed users by ?q=.
func (h *ConversationHandler) SearchUsers(c *gin.Context) {
	users, err := h.viewer(c).SearchUsers(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// respondSend answers a send or retry. A failure that left a local failed
// message returns it so the client can retry or discard it by id.
func (h *ConversationHandler) respondSend(c *gin.Context, msg models.Message, err error) {
	if err != nil {
		status, body := errorResponse(c, err)
		if msg.ID != "" {
			if status == http.StatusServiceUnavailable {
				body["error"] = "message not delivered"
			}
			body["message"] = msg
		}
		c.JSON(status, body)
		return
	}
	h.delivered(c, msg)
	c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) delivered(c *gin.Context, msg models.Message) {
	ctx := c.Request.Context()
	requestID := requestIDFromContext(c)

	_ = observability.PublishEvent(ctx, observability.RoutingMessageSent,
		observability.MessageSentEnvelope(msg), observability.BuildHeaders(requestID, ""))
	h.audit.Emit(ctx, "INFO", "Message sent", requestID, userIDFromContext(c))
	if h.hub != nil {
		h.hub.BroadcastMessage(msg.ReceiverID, msg)
	}
	h.notifyRecipient(ctx, msg)
}

func (h *ConversationHandler) notifyRecipient(ctx context.Context, msg models.Message) {
	if h.users == nil {
		return
	}
	profiles, err := h.users.BulkUsers(ctx, []string{msg.SenderID, msg.ReceiverID})
	if err != nil {
		log.Printf("notify skipped message_id=%s: %v", msg.ID, err)
		return
	}
	sender := models.UserProfile{ID: msg.SenderID}
	var recipient models.UserProfile
	for _, p := range profiles {
		switch p.ID {
		case msg.SenderID:
			sender = p
		case msg.ReceiverID:
			recipient = p
		}
	}
	if recipient.ID == "" {
		return
	}
	_ = h.notifier.NotifyMessage(ctx, recipient, sender, msg)
}

func writeError(c *gin.Context, err error) {
	status, body := errorResponse(c, err)
	c.JSON(status, body)
}

func errorResponse(c *gin.Context, err error) (int, gin.H) {
	switch synchronizer.KindOf(err) {
	case synchronizer.KindValidation:
		return http.StatusBadRequest, gin.H{"error": validationMessage(err)}
	case synchronizer.KindUnauthorized:
		return http.StatusUnauthorized, gin.H{"error": "not signed in"}
	case synchronizer.KindTransient:
		return http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"}
	default:
		log.Printf("inbox request failed path=%s: %v", c.FullPath(), err)
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}

// trimStrings applies the conform tags of req and answers 400 when it cannot.
func trimStrings(c *gin.Context, req any) bool {
	if err := conform.Strings(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var syncErr *synchronizer.Error
	if errors.As(err, &syncErr) && syncErr.Err != nil {
		return syncErr.Err.Error()
	}
	return err.Error()
}
