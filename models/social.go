package models

import "time"

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipRejected = "rejected"
)

// Friendship links a requester and an addressee. One row per ordered pair.
type Friendship struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RequesterID uint      `gorm:"not null;uniqueIndex:idx_friend_pair,priority:1" json:"requester_id"`
	AddresseeID uint      `gorm:"not null;uniqueIndex:idx_friend_pair,priority:2;index" json:"addressee_id"`
	Status      string    `gorm:"size:16;not null;default:'pending'" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Inbox message kinds.
const (
	MessageFriendRequest = "friend_request"
	MessageSystem        = "system"
	MessageReminder      = "reminder"
	MessagePostShare     = "post_share"
)

// SystemSenderID marks messages generated by the service itself.
const SystemSenderID uint = 0

// Message is an inbox notification (not a chat message).
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SenderID   uint      `gorm:"not null;index" json:"sender_id"`
	ReceiverID uint      `gorm:"not null;index:idx_message_receiver,priority:1" json:"receiver_id"`
	Kind       string    `gorm:"column:message_type;size:20;not null" json:"message_type"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	IsBatch    bool      `gorm:"not null;default:false" json:"-"`
	IsRead     bool      `gorm:"not null;default:false;index:idx_message_receiver,priority:2" json:"is_read"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// Conversation is a one-to-one chat. User1ID is always the smaller id.
type Conversation struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	User1ID       uint      `gorm:"not null;uniqueIndex:idx_conversation_pair,priority:1" json:"user1_id"`
	User2ID       uint      `gorm:"not null;uniqueIndex:idx_conversation_pair,priority:2;index" json:"user2_id"`
	LastMessageAt time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID uint) uint {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Has reports whether userID takes part in the conversation.
func (c Conversation) Has(userID uint) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// ChatMessage is one line in a conversation.
type ChatMessage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index:idx_chat_conv_created,priority:1" json:"conversation_id"`
	SenderID       uint      `gorm:"not null;index" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	IsRead         bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt      time.Time `gorm:"index:idx_chat_conv_created,priority:2" json:"created_at"`
}
