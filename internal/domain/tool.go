package domain

import "context"

// Tool is the interface for data-retrieval capabilities the completion
// service can invoke (biometric series, clinical events, document search,
// risk scores, etc). Every tool is scoped to a single owner's data at
// execution time: the orchestrator supplies the owner id, the model only
// supplies the named arguments.
//
// Execute must contain its own failures: invalid arguments, missing data,
// and downstream errors come back as a textual result the model can reason
// over. A returned error is reserved for conditions the dispatcher should
// wrap (and is still never allowed to abort an orchestration round).
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error)
}
