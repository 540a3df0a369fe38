package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const TopicChatMessageSent = "chat.message.sent.v1"

type chatMessage struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Preview     string `json:"preview"`
}

// MessageNotifier is satisfied by *notify.Engine.
type MessageNotifier interface {
	Message(ctx context.Context, senderID, recipientID, preview string) (model.Notification, error)
}

// ChatMessages turns chat.message.sent events into message notifications.
func ChatMessages(n MessageNotifier) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var m chatMessage
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			return fmt.Errorf("decode chat message: %w", err)
		}
		if _, err := n.Message(ctx, m.SenderID, m.RecipientID, m.Preview); err != nil {
			return fmt.Errorf("notify recipient %s: %w", m.RecipientID, err)
		}
		return nil
	}
}
