package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/ops-console/internal/storage"
)

// Source reads the newest message instant of a conversation.
type Source struct {
	exec *storage.Executor
}

func NewSource(exec *storage.Executor) *Source {
	return &Source{exec: exec}
}

func (s *Source) LatestChange(ctx context.Context, conversationID string) (time.Time, error) {
	var latest time.Time
	query := `SELECT created_at FROM conversation_messages
	          WHERE conversation_id = ? ORDER BY created_at DESC LIMIT 1`

	if err := s.exec.Get(ctx, &latest, query, conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to query latest message: %w", err)
	}
	return latest, nil
}
