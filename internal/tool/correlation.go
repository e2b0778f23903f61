package tool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quantia/internal/domain"
)

const correlationMinMonths = 3

// CorrelationTool looks for parallel or divergent movement between two
// metrics over the trailing year. It compares the direction of each monthly
// series between its first and last overlapping month. Deliberately not a
// statistical correlation: the output is a pattern hint for the model to
// phrase cautiously, not a coefficient.
type CorrelationTool struct {
	store domain.HealthStore
	now   func() time.Time
}

func NewCorrelationTool(store domain.HealthStore) *CorrelationTool {
	return &CorrelationTool{store: store, now: time.Now}
}

func (t *CorrelationTool) Name() string { return "analyze_correlation" }

func (t *CorrelationTool) Description() string {
	return "Analyze correlation trends between two metrics (e.g. 'Do my steps affect my weight?')."
}

func (t *CorrelationTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"metric_a": {Type: "string", Description: "First metric."},
		"metric_b": {Type: "string", Description: "Second metric."},
	}, []string{"metric_a", "metric_b"})
}

func (t *CorrelationTool) Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error) {
	metricA := ArgsString(args, "metric_a")
	metricB := ArgsString(args, "metric_b")
	if metricA == "" || metricB == "" {
		return "Error: 'metric_a' and 'metric_b' arguments are required.", nil
	}

	since := t.now().AddDate(0, 0, -365)

	monthlyA, err := t.store.MonthlyAverages(ctx, ownerID, metricA, since)
	if err != nil {
		return fmt.Sprintf("Error analyzing correlation: %s", err.Error()), nil
	}
	monthlyB, err := t.store.MonthlyAverages(ctx, ownerID, metricB, since)
	if err != nil {
		return fmt.Sprintf("Error analyzing correlation: %s", err.Error()), nil
	}

	byMonthA := monthMap(monthlyA)
	byMonthB := monthMap(monthlyB)

	var common []string
	for month := range byMonthA {
		if _, ok := byMonthB[month]; ok {
			common = append(common, month)
		}
	}
	sort.Strings(common)

	if len(common) < correlationMinMonths {
		return "Not enough overlapping data points to calculate correlation.", nil
	}

	trendA := byMonthA[common[len(common)-1]] - byMonthA[common[0]]
	trendB := byMonthB[common[len(common)-1]] - byMonthB[common[0]]

	relationship := "divergent"
	if (trendA > 0 && trendB > 0) || (trendA < 0 && trendB < 0) {
		relationship = "parallel"
	}

	return jsonDump(map[string]any{
		"analysis_period":       "Last 12 months",
		"data_points":           len(common),
		"metric_a_trend":        trendWord(trendA),
		"metric_b_trend":        trendWord(trendB),
		"observed_relationship": relationship,
		"details":               "Correlation is based on monthly averages.",
	}), nil
}

func monthMap(averages []domain.MonthlyAverage) map[string]float64 {
	m := make(map[string]float64, len(averages))
	for _, a := range averages {
		m[a.Month] = a.Avg
	}
	return m
}

func trendWord(delta float64) string {
	if delta > 0 {
		return "up"
	}
	return "down"
}
