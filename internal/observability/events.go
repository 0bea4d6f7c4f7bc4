package observability

import (
	"context"
	"time"

	"inbox-service/internal/models"
)

// Routing keys on the events exchange.
const (
	RoutingMessageSent      = "chat_events.message_sent"
	RoutingConversationRead = "chat_events.conversation_read"
	RoutingWSInbox          = "ws_events.inbox"
)

// Publisher delivers JSON events to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends an envelope through the default publisher, if any.
func PublishEvent(ctx context.Context, routingKey string, envelope EventEnvelope, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}
	if envelope.OccurredAt == "" {
		envelope.OccurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	err := defaultPublisher.Publish(ctx, routingKey, envelope, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

// MessageSentEnvelope describes a confirmed message for downstream consumers.
func MessageSentEnvelope(msg models.Message) EventEnvelope {
	payload := map[string]interface{}{
		"message_id":  msg.ID,
		"sender_id":   msg.SenderID,
		"receiver_id": msg.ReceiverID,
		"kind":        msg.Kind,
		"created_at":  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if msg.Post != nil {
		payload["post_image"] = msg.Post.ImageURL
	}
	return EventEnvelope{EventType: "chat_events", EventName: "message_sent", Payload: payload}
}

// ConversationReadEnvelope describes a mark-read batch.
func ConversationReadEnvelope(readerID, otherID string, marked int) EventEnvelope {
	return EventEnvelope{
		EventType: "chat_events",
		EventName: "conversation_read",
		Payload: map[string]interface{}{
			"reader_id": readerID,
			"other_id":  otherID,
			"marked":    marked,
		},
	}
}

// WSEnvelope describes a websocket lifecycle event.
func WSEnvelope(event, connID, userID, deviceID, ip, reason string, duration time.Duration) EventEnvelope {
	return EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "inbox",
				"event":       event,
				"conn_id":     connID,
				"duration_ms": duration.Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   userID,
				"device_id": deviceID,
				"ip":        ip,
			},
		},
	}
}
