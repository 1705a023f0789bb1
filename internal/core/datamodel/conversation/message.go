package conversation

import "time"

type Message struct {
	ID             string    `gorm:"column:id;primaryKey;size:64"`
	ConversationID string    `gorm:"column:conversation_id;not null;index:idx_conversation_messages_conversation_created,priority:1"`
	SenderID       string    `gorm:"column:sender_id"`
	Body           string    `gorm:"column:body;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index:idx_conversation_messages_conversation_created,priority:2"`
}

func (Message) TableName() string {
	return "conversation_messages"
}
