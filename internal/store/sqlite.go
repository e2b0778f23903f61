// Package store persists the engine's durable state in SQLite: clinical
// observations, timeline events, treatments, documents with their chunked
// embeddings, and conversational memory episodes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quantia/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.HealthStore, domain.DocumentStore and
// domain.EpisodeStore on a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS observations (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id  INTEGER NOT NULL,
		code      TEXT NOT NULL,
		value     REAL NOT NULL,
		unit      TEXT,
		taken_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_obs_owner_code ON observations(owner_id, code, taken_at);

	CREATE TABLE IF NOT EXISTS timeline_events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id     INTEGER NOT NULL,
		kind         TEXT NOT NULL,
		category     TEXT,
		payload      TEXT,
		data_summary TEXT,
		occurred_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_owner ON timeline_events(owner_id, occurred_at);

	CREATE TABLE IF NOT EXISTS treatments (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id   INTEGER NOT NULL,
		name       TEXT NOT NULL,
		status     TEXT,
		start_date DATETIME NOT NULL,
		end_date   DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_treatments_owner ON treatments(owner_id, start_date);

	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		owner_id   INTEGER NOT NULL,
		title      TEXT,
		source     TEXT,
		body       TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		owner_id    INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		text        TEXT NOT NULL,
		embedding   TEXT,
		UNIQUE(document_id, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_owner ON document_chunks(owner_id);

	CREATE TABLE IF NOT EXISTS memory_episodes (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id        INTEGER NOT NULL,
		kind            TEXT NOT NULL,
		role            TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		content         TEXT,
		metadata        TEXT,
		occurred_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_episodes_conv ON memory_episodes(owner_id, conversation_id, occurred_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- observations ---

func observationWhere(ownerID int64, f domain.ObservationFilter) (string, []any) {
	clauses := []string{"owner_id = ?"}
	args := []any{ownerID}

	if len(f.Codes) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(f.Codes)), ",")
		clauses = append(clauses, "code IN ("+ph+")")
		for _, c := range f.Codes {
			args = append(args, c)
		}
	} else if f.CodeLike != "" {
		clauses = append(clauses, "code LIKE ?")
		args = append(args, "%"+f.CodeLike+"%")
	}
	if f.Start != nil {
		clauses = append(clauses, "taken_at >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		clauses = append(clauses, "taken_at <= ?")
		args = append(args, *f.End)
	}
	return strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) AddObservation(ctx context.Context, obs domain.Observation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (owner_id, code, value, unit, taken_at) VALUES (?, ?, ?, ?, ?)`,
		obs.OwnerID, obs.Code, obs.Value, obs.Unit, obs.TakenAt,
	)
	return err
}

func (s *SQLiteStore) Observations(ctx context.Context, ownerID int64, f domain.ObservationFilter) ([]domain.Observation, error) {
	where, args := observationWhere(ownerID, f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, code, value, unit, taken_at FROM observations WHERE `+where+` ORDER BY taken_at`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		var o domain.Observation
		var unit sql.NullString
		if err := rows.Scan(&o.ID, &o.OwnerID, &o.Code, &o.Value, &unit, &o.TakenAt); err != nil {
			return nil, err
		}
		o.Unit = unit.String
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ObservationStats(ctx context.Context, ownerID int64, f domain.ObservationFilter) (domain.ObservationStats, error) {
	where, args := observationWhere(ownerID, f)
	var stats domain.ObservationStats
	var avg, minV, maxV sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(value), MIN(value), MAX(value), COUNT(*) FROM observations WHERE `+where, args...,
	).Scan(&avg, &minV, &maxV, &stats.Count)
	if err != nil {
		return stats, err
	}
	stats.Avg = avg.Float64
	stats.Min = minV.Float64
	stats.Max = maxV.Float64
	return stats, nil
}

func (s *SQLiteStore) MonthlyAverages(ctx context.Context, ownerID int64, codeLike string, since time.Time) ([]domain.MonthlyAverage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strftime('%Y-%m', taken_at) AS month, AVG(value)
		 FROM observations
		 WHERE owner_id = ? AND code LIKE ? AND taken_at >= ?
		 GROUP BY month ORDER BY month`,
		ownerID, "%"+codeLike+"%", since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MonthlyAverage
	for rows.Next() {
		var m domain.MonthlyAverage
		if err := rows.Scan(&m.Month, &m.Avg); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LatestObservation(ctx context.Context, ownerID int64, code string) (*domain.Observation, error) {
	var o domain.Observation
	var unit sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, code, value, unit, taken_at FROM observations
		 WHERE owner_id = ? AND code = ? ORDER BY taken_at DESC LIMIT 1`,
		ownerID, code,
	).Scan(&o.ID, &o.OwnerID, &o.Code, &o.Value, &unit, &o.TakenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.Unit = unit.String
	return &o, nil
}

// --- timeline events ---

func eventWhere(ownerID int64, f domain.EventFilter) (string, []any) {
	clauses := []string{"owner_id = ?"}
	args := []any{ownerID}

	if len(f.Kinds) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(f.Kinds)), ",")
		clauses = append(clauses, "kind IN ("+ph+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if f.KindPrefix != "" {
		clauses = append(clauses, "kind LIKE ?")
		args = append(args, f.KindPrefix+"%")
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.ConditionLike != "" {
		clauses = append(clauses, "(payload LIKE ? OR kind LIKE ?)")
		pattern := "%" + f.ConditionLike + "%"
		args = append(args, pattern, pattern)
	}
	if f.Since != nil {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, *f.Since)
	}
	return strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) AddEvent(ctx context.Context, ev domain.TimelineEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timeline_events (owner_id, kind, category, payload, data_summary, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.OwnerID, ev.Kind, ev.Category, ev.Payload, ev.DataSummary, ev.OccurredAt,
	)
	return err
}

func (s *SQLiteStore) Events(ctx context.Context, ownerID int64, f domain.EventFilter) ([]domain.TimelineEvent, error) {
	where, args := eventWhere(ownerID, f)
	order := "occurred_at"
	if f.Newest {
		order = "occurred_at DESC"
	}
	query := `SELECT id, owner_id, kind, category, payload, data_summary, occurred_at
		 FROM timeline_events WHERE ` + where + ` ORDER BY ` + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TimelineEvent
	for rows.Next() {
		var ev domain.TimelineEvent
		var category, payload, summary sql.NullString
		if err := rows.Scan(&ev.ID, &ev.OwnerID, &ev.Kind, &category, &payload, &summary, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.Category = category.String
		ev.Payload = payload.String
		ev.DataSummary = summary.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountEvents(ctx context.Context, ownerID int64, f domain.EventFilter) (int, error) {
	where, args := eventWhere(ownerID, f)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM timeline_events WHERE `+where, args...).Scan(&n)
	return n, err
}

// --- treatments ---

func (s *SQLiteStore) AddTreatment(ctx context.Context, tr domain.Treatment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO treatments (owner_id, name, status, start_date, end_date) VALUES (?, ?, ?, ?, ?)`,
		tr.OwnerID, tr.Name, tr.Status, tr.StartDate, tr.EndDate,
	)
	return err
}

func (s *SQLiteStore) Treatments(ctx context.Context, ownerID int64, f domain.TreatmentFilter) ([]domain.Treatment, error) {
	clauses := []string{"owner_id = ?"}
	args := []any{ownerID}
	if f.NameLike != "" {
		clauses = append(clauses, "name LIKE ?")
		args = append(args, "%"+f.NameLike+"%")
	}
	if f.Since != nil {
		clauses = append(clauses, "start_date >= ?")
		args = append(args, *f.Since)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, status, start_date, end_date FROM treatments
		 WHERE `+strings.Join(clauses, " AND ")+` ORDER BY start_date`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Treatment
	for rows.Next() {
		var tr domain.Treatment
		var status sql.NullString
		var end sql.NullTime
		if err := rows.Scan(&tr.ID, &tr.OwnerID, &tr.Name, &status, &tr.StartDate, &end); err != nil {
			return nil, err
		}
		tr.Status = status.String
		if end.Valid {
			tr.EndDate = &end.Time
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FirstTreatment(ctx context.Context, ownerID int64, nameLike string) (*domain.Treatment, error) {
	var tr domain.Treatment
	var status sql.NullString
	var end sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, status, start_date, end_date FROM treatments
		 WHERE owner_id = ? AND name LIKE ? ORDER BY start_date LIMIT 1`,
		ownerID, "%"+nameLike+"%",
	).Scan(&tr.ID, &tr.OwnerID, &tr.Name, &status, &tr.StartDate, &end)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tr.Status = status.String
	if end.Valid {
		tr.EndDate = &end.Time
	}
	return &tr, nil
}

// --- documents & chunks ---

func (s *SQLiteStore) SaveDocument(ctx context.Context, doc domain.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, owner_id, title, source, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, source=excluded.source, body=excluded.body`,
		doc.ID, doc.OwnerID, doc.Title, doc.Source, doc.Body, doc.CreatedAt,
	)
	return err
}

// ReplaceChunks swaps a document's chunk set atomically. Chunk embeddings
// are stored as JSON; a nil embedding stays NULL until an index pass commits
// one.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return err
	}
	for _, ch := range chunks {
		var embJSON any
		if len(ch.Embedding) > 0 {
			b, err := json.Marshal(ch.Embedding)
			if err != nil {
				return fmt.Errorf("marshal embedding: %w", err)
			}
			embJSON = string(b)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_chunks (document_id, owner_id, chunk_index, text, embedding)
			 VALUES (?, ?, ?, ?, ?)`,
			documentID, ch.OwnerID, ch.ChunkIndex, ch.Text, embJSON,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ChunksWithEmbeddings(ctx context.Context, ownerID int64) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, owner_id, chunk_index, text, embedding
		 FROM document_chunks WHERE owner_id = ? AND embedding IS NOT NULL
		 ORDER BY document_id, chunk_index`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var ch domain.Chunk
		var embJSON sql.NullString
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.OwnerID, &ch.ChunkIndex, &ch.Text, &embJSON); err != nil {
			return nil, err
		}
		if embJSON.Valid {
			if err := json.Unmarshal([]byte(embJSON.String), &ch.Embedding); err != nil {
				s.logger.Warn("skipping chunk with corrupt embedding", "chunk", ch.ID, "error", err)
				continue
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ResolveChunk(ctx context.Context, chunkID int64) (*domain.ChunkRef, error) {
	var ref domain.ChunkRef
	var title, source sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.document_id, d.title, d.source, c.text
		 FROM document_chunks c JOIN documents d ON d.id = c.document_id
		 WHERE c.id = ?`, chunkID,
	).Scan(&ref.ChunkID, &ref.DocumentID, &title, &source, &ref.Text)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ref.Title = title.String
	ref.Source = source.String
	return &ref, nil
}

// --- memory episodes ---

func (s *SQLiteStore) AppendEpisode(ctx context.Context, ep domain.Episode) error {
	if ep.OccurredAt.IsZero() {
		ep.OccurredAt = time.Now()
	}
	if ep.Kind == "" {
		ep.Kind = "chat"
	}
	var metaJSON any
	if len(ep.Metadata) > 0 {
		b, err := json.Marshal(ep.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_episodes (owner_id, kind, role, conversation_id, content, metadata, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ep.OwnerID, ep.Kind, ep.Role, ep.ConversationID, ep.Content, metaJSON, ep.OccurredAt,
	)
	return err
}

// LastEpisodeAt returns when the owner's most recent episode was recorded,
// across all conversations, or nil when the owner has none.
func (s *SQLiteStore) LastEpisodeAt(ctx context.Context, ownerID int64) (*time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT occurred_at FROM memory_episodes WHERE owner_id = ?
		 ORDER BY occurred_at DESC, id DESC LIMIT 1`,
		ownerID,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

// RecentEpisodes returns the limit most recent episodes newest first; the
// memory layer reverses them into chronological order.
func (s *SQLiteStore) RecentEpisodes(ctx context.Context, ownerID int64, conversationID string, limit int) ([]domain.Episode, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, kind, role, conversation_id, content, metadata, occurred_at
		 FROM memory_episodes
		 WHERE owner_id = ? AND conversation_id = ?
		 ORDER BY occurred_at DESC, id DESC LIMIT ?`,
		ownerID, conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Episode
	for rows.Next() {
		var ep domain.Episode
		var content, metaJSON sql.NullString
		if err := rows.Scan(&ep.ID, &ep.OwnerID, &ep.Kind, &ep.Role, &ep.ConversationID, &content, &metaJSON, &ep.OccurredAt); err != nil {
			return nil, err
		}
		ep.Content = content.String
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &ep.Metadata)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}
