package vectorindex

import (
	"context"
	"os"
	"testing"

	"quantia/internal/domain"
	"quantia/internal/embedding"
)

// stubSource serves canned chunks, embedding them lazily with the lexical
// embedder so scores are reproducible.
type stubSource struct {
	chunks map[int64][]domain.Chunk
}

func (s *stubSource) ChunksWithEmbeddings(_ context.Context, ownerID int64) ([]domain.Chunk, error) {
	return s.chunks[ownerID], nil
}

func makeChunks(t *testing.T, emb domain.Embedder, ownerID int64, docID string, texts ...string) []domain.Chunk {
	t.Helper()
	var out []domain.Chunk
	for i, text := range texts {
		vec, err := emb.Embed(context.Background(), text)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		out = append(out, domain.Chunk{
			ID:         int64(i + 1),
			DocumentID: docID,
			OwnerID:    ownerID,
			ChunkIndex: i,
			Text:       text,
			Embedding:  vec,
		})
	}
	return out
}

func newTestIndex(t *testing.T, src ChunkSource) *Index {
	t.Helper()
	return New(t.TempDir(), src, embedding.NewLexical(128), nil)
}

func TestIndex_BuildAndSearchRoundTrip(t *testing.T) {
	emb := embedding.NewLexical(128)
	src := &stubSource{chunks: map[int64][]domain.Chunk{
		7: makeChunks(t, emb, 7, "doc-a",
			"fasting glucose was elevated this morning",
			"patient reports knee pain after running",
			"blood pressure stable on current treatment",
		),
	}}
	ix := newTestIndex(t, src)

	n, err := ix.Build(context.Background(), 7)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 vectors indexed, got %d", n)
	}

	hits, err := ix.Search(context.Background(), 7, "elevated fasting glucose", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 || len(hits) > 2 {
		t.Fatalf("expected 1-2 hits, got %d", len(hits))
	}
	if hits[0].ChunkID != 1 {
		t.Fatalf("expected glucose chunk first, got chunk %d", hits[0].ChunkID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatal("hits are not sorted by non-increasing score")
		}
	}
	for _, h := range hits {
		if h.DocumentID != "doc-a" {
			t.Fatalf("hit references foreign document %q", h.DocumentID)
		}
	}
}

func TestIndex_SearchLazilyBuilds(t *testing.T) {
	emb := embedding.NewLexical(128)
	src := &stubSource{chunks: map[int64][]domain.Chunk{
		3: makeChunks(t, emb, 3, "doc-b", "cholesterol panel results from march"),
	}}
	ix := newTestIndex(t, src)

	// No Build call: search must build on demand.
	hits, err := ix.Search(context.Background(), 3, "cholesterol results", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit after lazy build, got %d", len(hits))
	}
}

func TestIndex_EmptyCorpusSearchesEmpty(t *testing.T) {
	ix := newTestIndex(t, &stubSource{chunks: map[int64][]domain.Chunk{}})
	hits, err := ix.Search(context.Background(), 42, "anything", 5)
	if err != nil {
		t.Fatalf("search should not error on empty corpus: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestIndex_BuildWithZeroChunksRemovesSnapshot(t *testing.T) {
	emb := embedding.NewLexical(128)
	src := &stubSource{chunks: map[int64][]domain.Chunk{
		5: makeChunks(t, emb, 5, "doc-c", "initial note"),
	}}
	ix := newTestIndex(t, src)

	if _, err := ix.Build(context.Background(), 5); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := os.Stat(ix.vectorPath(5)); err != nil {
		t.Fatalf("expected snapshot file after build: %v", err)
	}

	src.chunks[5] = nil
	n, err := ix.Build(context.Background(), 5)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 vectors, got %d", n)
	}
	if _, err := os.Stat(ix.vectorPath(5)); !os.IsNotExist(err) {
		t.Fatal("expected vector snapshot to be deleted")
	}
	if _, err := os.Stat(ix.metaPath(5)); !os.IsNotExist(err) {
		t.Fatal("expected meta snapshot to be deleted")
	}
}

func TestIndex_StalenessUntilRebuild(t *testing.T) {
	emb := embedding.NewLexical(128)
	src := &stubSource{chunks: map[int64][]domain.Chunk{
		9: makeChunks(t, emb, 9, "doc-d", "old entry about sleep quality"),
	}}
	ix := newTestIndex(t, src)

	if _, err := ix.Build(context.Background(), 9); err != nil {
		t.Fatalf("build: %v", err)
	}

	// Ingest a new chunk without rebuilding.
	fresh := makeChunks(t, emb, 9, "doc-e", "new entry about migraine triggers")
	fresh[0].ID = 99
	src.chunks[9] = append(src.chunks[9], fresh[0])

	hits, err := ix.Search(context.Background(), 9, "migraine triggers", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, h := range hits {
		if h.ChunkID == 99 {
			t.Fatal("chunk ingested after build must not be searchable before rebuild")
		}
	}

	if _, err := ix.Build(context.Background(), 9); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	hits, err = ix.Search(context.Background(), 9, "migraine triggers", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.ChunkID == 99 {
			found = true
		}
	}
	if !found {
		t.Fatal("chunk should be searchable after rebuild")
	}
}
