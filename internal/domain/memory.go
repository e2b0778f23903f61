package domain

import (
	"context"
	"time"
)

// Episode is one persisted conversational turn. Append-only; a conversation
// is the set of episodes sharing (owner, conversation id) ordered by time.
type Episode struct {
	ID             int64          `json:"id"`
	OwnerID        int64          `json:"owner_id"`
	Kind           string         `json:"kind"` // always "chat" for now
	Role           string         `json:"role"` // patient | doctor | assistant | assistant_doctor
	ConversationID string         `json:"conversation_id"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// EpisodeStore is the durable backend for conversational memory.
// RecentEpisodes returns the most recent limit episodes newest first;
// callers reverse for chronological order.
type EpisodeStore interface {
	AppendEpisode(ctx context.Context, ep Episode) error
	RecentEpisodes(ctx context.Context, ownerID int64, conversationID string, limit int) ([]Episode, error)
}
