// Package memory is the rolling conversational context: an append-only
// episode log with a bounded most-recent-N read path. Persistence is
// best-effort; a memory failure must never block an answer.
package memory

import (
	"context"
	"log/slog"

	"quantia/internal/domain"
	"quantia/internal/metrics"
)

const defaultHistoryTurns = 5

type Manager struct {
	store  domain.EpisodeStore
	logger *slog.Logger
	turns  int
}

func NewManager(store domain.EpisodeStore, historyTurns int, logger *slog.Logger) *Manager {
	if historyTurns <= 0 {
		historyTurns = defaultHistoryTurns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger, turns: historyTurns}
}

// HistoryTurns is the configured context window size.
func (m *Manager) HistoryTurns() int { return m.turns }

// Append persists one turn. Errors are logged and swallowed: losing a memory
// write degrades future context, not the current answer.
func (m *Manager) Append(ctx context.Context, ownerID int64, role, content string, conversationID string, meta map[string]any) {
	ep := domain.Episode{
		OwnerID:        ownerID,
		Kind:           "chat",
		Role:           role,
		ConversationID: conversationID,
		Content:        content,
		Metadata:       meta,
	}
	if err := m.store.AppendEpisode(ctx, ep); err != nil {
		m.logger.Warn("memory append failed", "owner", ownerID, "conversation", conversationID, "error", err)
		return
	}
	metrics.MemoryAppends.Inc()
}

// History returns up to limit most recent turns of the conversation in
// chronological order (oldest first). An unreachable store degrades to an
// empty context rather than failing the turn.
func (m *Manager) History(ctx context.Context, ownerID int64, conversationID string, limit int) []domain.Episode {
	if limit <= 0 {
		limit = m.turns
	}
	episodes, err := m.store.RecentEpisodes(ctx, ownerID, conversationID, limit)
	if err != nil {
		m.logger.Warn("memory history unavailable, continuing without context", "owner", ownerID, "error", err)
		return nil
	}
	// Store order is newest first; reverse for chronological reading.
	for i, j := 0, len(episodes)-1; i < j; i, j = i+1, j-1 {
		episodes[i], episodes[j] = episodes[j], episodes[i]
	}
	return episodes
}
