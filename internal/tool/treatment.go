package tool

import (
	"context"
	"fmt"

	"quantia/internal/domain"
)

const treatmentWindowDays = 90

// TreatmentTool contrasts a metric's average before and after the owner
// started a treatment, using a 90-day window on each side of the start date.
type TreatmentTool struct {
	store domain.HealthStore
}

func NewTreatmentTool(store domain.HealthStore) *TreatmentTool {
	return &TreatmentTool{store: store}
}

func (t *TreatmentTool) Name() string { return "analyze_treatment_impact" }

func (t *TreatmentTool) Description() string {
	return "Analyze how a biometric metric changed before and after starting a treatment."
}

func (t *TreatmentTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"treatment_query": {Type: "string", Description: "Name (or part of the name) of the treatment."},
		"target_metric":   {Type: "string", Description: "Metric to evaluate (e.g. 'cholesterol')."},
	}, []string{"treatment_query", "target_metric"})
}

func (t *TreatmentTool) Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error) {
	query := ArgsString(args, "treatment_query")
	metric := ArgsString(args, "target_metric")
	if query == "" || metric == "" {
		return "Error: 'treatment_query' and 'target_metric' arguments are required.", nil
	}

	treatment, err := t.store.FirstTreatment(ctx, ownerID, query)
	if err != nil {
		return fmt.Sprintf("Error analyzing impact: %s", err.Error()), nil
	}
	if treatment == nil {
		return fmt.Sprintf("Treatment '%s' not found.", query), nil
	}

	start := treatment.StartDate
	beforeStart := start.AddDate(0, 0, -treatmentWindowDays)
	afterEnd := start.AddDate(0, 0, treatmentWindowDays)

	before, err := t.store.ObservationStats(ctx, ownerID, domain.ObservationFilter{
		CodeLike: metric,
		Start:    &beforeStart,
		End:      &start,
	})
	if err != nil {
		return fmt.Sprintf("Error analyzing impact: %s", err.Error()), nil
	}
	after, err := t.store.ObservationStats(ctx, ownerID, domain.ObservationFilter{
		CodeLike: metric,
		Start:    &start,
		End:      &afterEnd,
	})
	if err != nil {
		return fmt.Sprintf("Error analyzing impact: %s", err.Error()), nil
	}

	if before.Count == 0 || after.Count == 0 {
		return fmt.Sprintf("Insufficient biometric data around the treatment start date (%s).", start.Format("2006-01-02")), nil
	}

	diff := after.Avg - before.Avg
	conclusion := "Changed"
	if diff < 0 && lowerIsBetter(metric) {
		conclusion = "Improved"
	}

	return jsonDump(map[string]any{
		"treatment":           treatment.Name,
		"start_date":          start.Format("2006-01-02"),
		"metric":              metric,
		"avg_3_months_before": round2(before.Avg),
		"avg_3_months_after":  round2(after.Avg),
		"change":              round2(diff),
		"conclusion":          conclusion,
	}), nil
}

// lowerIsBetter marks the metrics where a drop after treatment start reads
// as improvement.
func lowerIsBetter(metric string) bool {
	switch metric {
	case "glucose", "weight", "bp":
		return true
	}
	return false
}
