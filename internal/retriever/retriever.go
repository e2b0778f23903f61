// Package retriever runs the document side of retrieval-augmented
// generation: chunk, embed, persist, rebuild the owner's vector index, and
// answer semantic queries with human-readable snippets.
package retriever

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quantia/internal/chunker"
	"quantia/internal/domain"
	"quantia/internal/vectorindex"
)

const (
	defaultChunkSize = 1000
	defaultOverlap   = 200
	snippetLength    = 300
)

type Retriever struct {
	store     domain.DocumentStore
	embedder  domain.Embedder
	index     *vectorindex.Index
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

type Config struct {
	Store     domain.DocumentStore
	Embedder  domain.Embedder
	Index     *vectorindex.Index
	ChunkSize int
	Overlap   int
	Logger    *slog.Logger
}

func New(cfg Config) *Retriever {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = defaultOverlap
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retriever{
		store:     cfg.Store,
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		logger:    cfg.Logger,
	}
}

// Ingest chunks and embeds a document, replaces its stored chunk set, and
// synchronously rebuilds the owner's index so the content is immediately
// searchable. A document with no id gets one derived from its content hash.
func (r *Retriever) Ingest(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	if doc.ID == "" {
		hash := sha256.Sum256([]byte(doc.Body))
		doc.ID = fmt.Sprintf("%x", hash[:8])
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	windows, err := chunker.Split(doc.Body, r.chunkSize, r.overlap)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(windows))
	for i, w := range windows {
		vec, err := r.embedder.Embed(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		chunks = append(chunks, domain.Chunk{
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
			ChunkIndex: i,
			Text:       w,
			Embedding:  vec,
		})
	}

	if err := r.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	if err := r.store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return nil, fmt.Errorf("persist chunks: %w", err)
	}

	n, err := r.index.Build(ctx, doc.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}

	r.logger.Info("document ingested",
		"document", doc.ID, "owner", doc.OwnerID, "chunks", len(chunks), "indexed", n)
	return &doc, nil
}

// Search embeds the query and resolves the top hits into citable references.
// An owner with no indexed content gets an empty result, never an error.
func (r *Retriever) Search(ctx context.Context, ownerID int64, query string, topK int) ([]domain.Reference, error) {
	hits, err := r.index.Search(ctx, ownerID, query, topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	refs := make([]domain.Reference, 0, len(hits))
	for _, h := range hits {
		ref, err := r.store.ResolveChunk(ctx, h.ChunkID)
		if err != nil || ref == nil {
			r.logger.Warn("search hit references unknown chunk", "chunk", h.ChunkID, "error", err)
			continue
		}
		refs = append(refs, domain.Reference{
			Title:   ref.Title,
			Source:  ref.Source,
			Snippet: snippet(ref.Text),
		})
	}
	return refs, nil
}

// snippet flattens and truncates chunk text for display.
func snippet(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength])
	}
	return text
}
