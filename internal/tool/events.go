package tool

import (
	"context"
	"fmt"
	"strings"

	"quantia/internal/domain"
)

// EventsTool lists the owner's clinical timeline (diagnoses, procedures,
// treatment starts and stops) in chronological order.
type EventsTool struct {
	store domain.HealthStore
}

func NewEventsTool(store domain.HealthStore) *EventsTool {
	return &EventsTool{store: store}
}

func (t *EventsTool) Name() string { return "get_clinical_events" }

func (t *EventsTool) Description() string {
	return "Get clinical timeline events like diagnoses, treatments or surgeries, useful for dating medical history."
}

func (t *EventsTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"category": {Type: "string", Description: "Optional filter: medication/treatment, diagnosis, or surgery."},
	}, nil)
}

func (t *EventsTool) Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error) {
	f := eventCategoryFilter(ArgsString(args, "category"))

	events, err := t.store.Events(ctx, ownerID, f)
	if err != nil {
		return fmt.Sprintf("Error retrieving events: %s", err.Error()), nil
	}
	if len(events) == 0 {
		return "No clinical events found.", nil
	}

	type entry struct {
		OccurredAt  string `json:"occurred_at"`
		Kind        string `json:"kind"`
		Category    string `json:"category"`
		Payload     string `json:"payload"`
		DataSummary string `json:"data_summary,omitempty"`
	}
	out := make([]entry, 0, len(events))
	for _, e := range events {
		out = append(out, entry{
			OccurredAt:  e.OccurredAt.Format("2006-01-02 15:04:05"),
			Kind:        e.Kind,
			Category:    e.Category,
			Payload:     e.Payload,
			DataSummary: e.DataSummary,
		})
	}
	return jsonDump(out), nil
}

// eventCategoryFilter maps loose category words (English and Spanish stems)
// onto event kinds or categories. Unrecognized input means no filter.
func eventCategoryFilter(category string) domain.EventFilter {
	c := strings.ToLower(category)
	switch {
	case c == "":
		return domain.EventFilter{}
	case strings.Contains(c, "medic") || strings.Contains(c, "trat") || strings.Contains(c, "drug"):
		return domain.EventFilter{Kinds: []string{"treatment_start", "treatment_end", "medication"}}
	case strings.Contains(c, "diag"):
		return domain.EventFilter{Kinds: []string{"diagnosis"}}
	case strings.Contains(c, "surg") || strings.Contains(c, "ciru") || strings.Contains(c, "oper"):
		return domain.EventFilter{Category: "procedure"}
	default:
		return domain.EventFilter{}
	}
}
