package domain

import (
	"context"
	"time"
)

// Document is a free-text clinical document owned by a single user.
// Immutable once chunked except through an explicit re-index.
type Document struct {
	ID        string    `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is one overlapping text window of a document, the unit of retrieval.
// Embedding stays nil until an index pass commits it.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	OwnerID    int64     `json:"owner_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// ChunkRef resolves a chunk back to its document for citation purposes.
type ChunkRef struct {
	ChunkID    int64
	DocumentID string
	Title      string
	Source     string
	Text       string
}

// Reference is a user-facing citation of which tool or document snippet
// contributed to an answer.
type Reference struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// DocumentStore persists documents and their chunks.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc Document) error
	ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error
	ChunksWithEmbeddings(ctx context.Context, ownerID int64) ([]Chunk, error)
	ResolveChunk(ctx context.Context, chunkID int64) (*ChunkRef, error)
}

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
