// Package vectorindex maintains per-owner nearest-neighbor snapshots over
// chunk embeddings. Snapshots are rebuilt wholesale, never updated in place:
// content ingested after the last build stays invisible until the next one.
package vectorindex

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"quantia/internal/domain"
	"quantia/internal/embedding"
	"quantia/internal/metrics"
)

// ChunkSource supplies the chunks whose embeddings get indexed.
type ChunkSource interface {
	ChunksWithEmbeddings(ctx context.Context, ownerID int64) ([]domain.Chunk, error)
}

// Hit is a single search result.
type Hit struct {
	ChunkID    int64
	DocumentID string
	Score      float32
}

// chunkKey pairs a vector row with its chunk and document ids.
type chunkKey struct {
	ChunkID    int64
	DocumentID string
}

// Index builds and searches per-owner snapshots persisted as a file pair:
// a gob-encoded vector matrix and a parallel chunk/document id map.
type Index struct {
	dir      string
	source   ChunkSource
	embedder domain.Embedder
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New(dir string, source ChunkSource, embedder domain.Embedder, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		dir:      dir,
		source:   source,
		embedder: embedder,
		logger:   logger,
		locks:    make(map[int64]*sync.Mutex),
	}
}

// ownerLock serializes build and search for one owner. Different owners
// proceed concurrently.
func (ix *Index) ownerLock(ownerID int64) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		ix.locks[ownerID] = l
	}
	return l
}

func (ix *Index) vectorPath(ownerID int64) string {
	return filepath.Join(ix.dir, fmt.Sprintf("user_%d.index", ownerID))
}

func (ix *Index) metaPath(ownerID int64) string {
	return filepath.Join(ix.dir, fmt.Sprintf("user_%d.meta", ownerID))
}

// Build rebuilds the owner's snapshot from every chunk with a committed
// embedding and returns the number of vectors indexed. Zero vectors removes
// any existing snapshot: there is no valid empty index file.
func (ix *Index) Build(ctx context.Context, ownerID int64) (int, error) {
	lock := ix.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()
	return ix.buildLocked(ctx, ownerID)
}

func (ix *Index) buildLocked(ctx context.Context, ownerID int64) (int, error) {
	chunks, err := ix.source.ChunksWithEmbeddings(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}

	vectors := make([][]float32, 0, len(chunks))
	keys := make([]chunkKey, 0, len(chunks))
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			continue
		}
		vec := make([]float32, len(ch.Embedding))
		copy(vec, ch.Embedding)
		embedding.Normalize(vec)
		vectors = append(vectors, vec)
		keys = append(keys, chunkKey{ChunkID: ch.ID, DocumentID: ch.DocumentID})
	}

	if len(vectors) == 0 {
		ix.removeSnapshot(ownerID)
		return 0, nil
	}

	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create index dir: %w", err)
	}
	if err := writeGob(ix.vectorPath(ownerID), vectors); err != nil {
		return 0, fmt.Errorf("write vectors: %w", err)
	}
	if err := writeGob(ix.metaPath(ownerID), keys); err != nil {
		return 0, fmt.Errorf("write meta: %w", err)
	}

	ix.logger.Info("vector index rebuilt", "owner", ownerID, "vectors", len(vectors))
	metrics.IndexBuilds.Inc()
	return len(vectors), nil
}

// Search embeds the query and returns up to topK hits by descending
// similarity. A missing snapshot triggers a lazy build; an empty corpus
// yields an empty result, not an error.
func (ix *Index) Search(ctx context.Context, ownerID int64, query string, topK int) ([]Hit, error) {
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	lock := ix.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	vectors, keys, err := ix.loadSnapshot(ownerID)
	if errors.Is(err, fs.ErrNotExist) {
		n, buildErr := ix.buildLocked(ctx, ownerID)
		if buildErr != nil {
			return nil, buildErr
		}
		if n == 0 {
			return nil, nil
		}
		vectors, keys, err = ix.loadSnapshot(ownerID)
	}
	if err != nil {
		return nil, err
	}

	metrics.IndexSearches.Inc()

	qv, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	embedding.Normalize(qv)

	hits := make([]Hit, 0, len(vectors))
	for i, vec := range vectors {
		hits = append(hits, Hit{
			ChunkID:    keys[i].ChunkID,
			DocumentID: keys[i].DocumentID,
			Score:      embedding.Similarity(qv, vec),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (ix *Index) loadSnapshot(ownerID int64) ([][]float32, []chunkKey, error) {
	var vectors [][]float32
	if err := readGob(ix.vectorPath(ownerID), &vectors); err != nil {
		return nil, nil, err
	}
	var keys []chunkKey
	if err := readGob(ix.metaPath(ownerID), &keys); err != nil {
		return nil, nil, err
	}
	if len(vectors) != len(keys) {
		return nil, nil, fmt.Errorf("snapshot corrupt for owner %d: %d vectors, %d keys", ownerID, len(vectors), len(keys))
	}
	return vectors, keys, nil
}

func (ix *Index) removeSnapshot(ownerID int64) {
	for _, p := range []string{ix.vectorPath(ownerID), ix.metaPath(ownerID)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			ix.logger.Warn("cannot remove stale snapshot file", "path", p, "error", err)
		}
	}
}

// writeGob encodes v into path via a temp file and rename so a concurrent
// crash never leaves a half-written snapshot behind.
func writeGob(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}
