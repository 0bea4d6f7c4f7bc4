package notify

import (
	"context"
	"log"

	"firebase.google.com/go/messaging"

	"inbox-service/internal/models"
)

// Notifier pushes a new-message alert to the recipient's device.
type Notifier interface {
	NotifyMessage(ctx context.Context, recipient models.UserProfile, sender models.UserProfile, msg models.Message) error
}

type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier sends through Firebase Cloud Messaging.
type FCMNotifier struct {
	client sender
}

func NewFCMNotifier(client *messaging.Client) *FCMNotifier {
	return &FCMNotifier{client: client}
}

// NotifyMessage is skipped for recipients without a registered device.
func (n *FCMNotifier) NotifyMessage(ctx context.Context, recipient models.UserProfile, from models.UserProfile, msg models.Message) error {
	if recipient.DeviceToken == "" {
		return nil
	}
	message := &messaging.Message{
		Token: recipient.DeviceToken,
		Notification: &messaging.Notification{
			Title: from.Name(),
			Body:  msg.Preview(),
		},
		Data: map[string]string{
			"conversation_id": msg.SenderID,
			"message_id":      msg.ID,
		},
	}
	if _, err := n.client.Send(ctx, message); err != nil {
		log.Printf("fcm send failed recipient=%s message_id=%s: %v", recipient.ID, msg.ID, err)
		return err
	}
	return nil
}

// Noop is used when push is not configured.
type Noop struct{}

func (Noop) NotifyMessage(ctx context.Context, recipient models.UserProfile, from models.UserProfile, msg models.Message) error {
	return nil
}
