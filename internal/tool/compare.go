package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quantia/internal/domain"
)

// CompareTool compares a metric's yearly averages between two years.
type CompareTool struct {
	store domain.HealthStore
}

func NewCompareTool(store domain.HealthStore) *CompareTool {
	return &CompareTool{store: store}
}

func (t *CompareTool) Name() string { return "compare_health_periods" }

func (t *CompareTool) Description() string {
	return "Compare a specific metric between two different years (e.g. weight in 2020 vs 2023)."
}

func (t *CompareTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"metric": {Type: "string", Description: "The metric code (e.g. 'weight', 'glucose')."},
		"year1":  {Type: "integer", Description: "The baseline year."},
		"year2":  {Type: "integer", Description: "The year to compare against the baseline."},
	}, []string{"metric", "year1", "year2"})
}

func (t *CompareTool) Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error) {
	metric := ArgsString(args, "metric")
	year1, ok1 := ArgsInt(args, "year1")
	year2, ok2 := ArgsInt(args, "year2")
	if metric == "" || !ok1 || !ok2 {
		return "Error: 'metric', 'year1' and 'year2' arguments are required.", nil
	}

	avg1, n1, err := t.yearlyAverage(ctx, ownerID, metric, year1)
	if err != nil {
		return fmt.Sprintf("Error comparing periods: %s", err.Error()), nil
	}
	avg2, n2, err := t.yearlyAverage(ctx, ownerID, metric, year2)
	if err != nil {
		return fmt.Sprintf("Error comparing periods: %s", err.Error()), nil
	}

	// A zero baseline average would make the percent change undefined; treat
	// it the same as having no data for that year.
	if n1 == 0 || n2 == 0 || avg1 == 0 {
		return fmt.Sprintf("Insufficient data for comparison. %d: %d observations, %d: %d observations.", year1, n1, year2, n2), nil
	}

	diff := avg2 - avg1
	pct := diff / avg1 * 100
	trend := "decreased"
	if diff > 0 {
		trend = "increased"
	}

	out := map[string]any{
		"metric":          metric,
		"absolute_change": round2(diff),
		"percent_change":  round1(pct),
		"trend":           trend,
	}
	out[fmt.Sprintf("average_%d", year1)] = round2(avg1)
	out[fmt.Sprintf("average_%d", year2)] = round2(avg2)
	return jsonDump(out), nil
}

func (t *CompareTool) yearlyAverage(ctx context.Context, ownerID int64, metric string, year int) (float64, int, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)

	f := compareMetricFilter(metric)
	f.Start = &start
	f.End = &end

	stats, err := t.store.ObservationStats(ctx, ownerID, f)
	if err != nil {
		return 0, 0, err
	}
	return stats.Avg, stats.Count, nil
}

// compareMetricFilter maps the comparison metrics onto codes; pressure in
// any spelling means the systolic series.
func compareMetricFilter(metric string) domain.ObservationFilter {
	m := strings.ToLower(metric)
	switch {
	case m == "weight":
		return domain.ObservationFilter{Codes: []string{"weight"}}
	case m == "glucose":
		return domain.ObservationFilter{Codes: []string{"glucose"}}
	case strings.Contains(m, "pressure") || strings.Contains(m, "bp"):
		return domain.ObservationFilter{Codes: []string{"systolic_bp"}}
	default:
		return domain.ObservationFilter{CodeLike: m}
	}
}
