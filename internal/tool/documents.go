package tool

import (
	"context"
	"fmt"
	"strings"

	"quantia/internal/domain"
)

const documentSearchTopK = 5

// DocumentSearcher is the slice of the retriever the document tool needs.
type DocumentSearcher interface {
	Search(ctx context.Context, ownerID int64, query string, topK int) ([]domain.Reference, error)
}

// DocumentsTool runs semantic search over the owner's indexed documents and
// formats the hits for the model.
type DocumentsTool struct {
	searcher DocumentSearcher
}

func NewDocumentsTool(searcher DocumentSearcher) *DocumentsTool {
	return &DocumentsTool{searcher: searcher}
}

func (t *DocumentsTool) Name() string { return "search_medical_documents" }

func (t *DocumentsTool) Description() string {
	return "Semantic search over medical documents (notes, reports, PDFs) for qualitative details, doctor opinions or symptom descriptions."
}

func (t *DocumentsTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"query": {Type: "string", Description: "What to look for in the documents."},
		"year":  {Type: "integer", Description: "Optional year to focus the search on."},
	}, []string{"query"})
}

func (t *DocumentsTool) Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error) {
	query := ArgsString(args, "query")
	if query == "" {
		return "Error: 'query' argument is required.", nil
	}
	if year, ok := ArgsInt(args, "year"); ok && year > 0 {
		query = fmt.Sprintf("%s %d", query, year)
	}

	refs, err := t.searcher.Search(ctx, ownerID, query, documentSearchTopK)
	if err != nil {
		return fmt.Sprintf("Error searching documents: %s", err.Error()), nil
	}
	if len(refs) == 0 {
		return "No relevant information found in documents.", nil
	}

	blocks := make([]string, 0, len(refs))
	for _, ref := range refs {
		title := ref.Title
		if title == "" {
			title = "Untitled"
		}
		source := ref.Source
		if source == "" {
			source = "Unknown"
		}
		blocks = append(blocks, fmt.Sprintf("Document: %s\nSource: %s\nContent: %s", title, source, ref.Snippet))
	}
	return strings.Join(blocks, "\n---\n"), nil
}
