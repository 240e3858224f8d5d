package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/imalive/server/models"
)

// Realtime event types pushed to clients.
const (
	EventMessage     = "message"
	EventChatMessage = "chat_message"
)

// Notifier pushes an event to every live connection of a user. Delivery is best effort.
type Notifier interface {
	Push(userID uint, event string, data interface{})
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Push(uint, string, interface{}) {}

// MessageService stores inbox messages and pushes them to their receivers.
type MessageService struct {
	db     *gorm.DB
	notify Notifier
}

func NewMessageService(db *gorm.DB, notify Notifier) *MessageService {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &MessageService{db: db, notify: notify}
}

// Notifier returns the push channel used for new messages.
func (s *MessageService) Notifier() Notifier {
	return s.notify
}

// Send inserts msgs in one statement and pushes each one once stored.
func (s *MessageService) Send(ctx context.Context, msgs ...*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(msgs).Error; err != nil {
		return storageErr(fmt.Errorf("create messages: %w", err))
	}
	s.Push(msgs...)
	return nil
}

// Push notifies receivers about messages already stored, e.g. inside a committed transaction.
func (s *MessageService) Push(msgs ...*models.Message) {
	for _, m := range msgs {
		s.notify.Push(m.ReceiverID, EventMessage, m)
	}
}
