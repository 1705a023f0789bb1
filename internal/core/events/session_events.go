package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSessionChanged = "session.changed"
	EventTypeSessionCleared = "session.cleared"
)

type SessionChangedEvent struct {
	BaseEvent
	UserID    string    `json:"user_id"`
	Remember  bool      `json:"remember"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewSessionChangedEvent(userID string, remember bool, expiresAt time.Time) *SessionChangedEvent {
	return &SessionChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSessionChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id":    userID,
				"remember":   remember,
				"expires_at": expiresAt,
			},
		},
		UserID:    userID,
		Remember:  remember,
		ExpiresAt: expiresAt,
	}
}

type SessionClearedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

func NewSessionClearedEvent(userID, reason string) *SessionClearedEvent {
	return &SessionClearedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSessionCleared,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id": userID,
				"reason":  reason,
			},
		},
		UserID: userID,
		Reason: reason,
	}
}
