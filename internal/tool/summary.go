package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"quantia/internal/domain"
)

const summaryKeyEvents = 15

var summaryVitalCodes = []string{"glucose", "weight", "systolic_bp"}

// SummaryTool aggregates events, vitals and treatments into one compact
// overview. It answers the broad questions ("summary of the last 5 years",
// "history of my diabetes") where a single series tool would not suffice.
type SummaryTool struct {
	store domain.HealthStore
	now   func() time.Time
}

func NewSummaryTool(store domain.HealthStore) *SummaryTool {
	return &SummaryTool{store: store, now: time.Now}
}

func (t *SummaryTool) Name() string { return "get_medical_summary_data" }

func (t *SummaryTool) Description() string {
	return "Aggregate a comprehensive medical summary (events, vitals, treatments) for a time range or condition."
}

func (t *SummaryTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"time_range": {Type: "string", Description: "One of '1y', '2y', '3y', '5y' or a specific year like '2022'. Defaults to '1y'."},
		"category":   {Type: "string", Description: "Optional focus: consultations, labs or treatments."},
		"condition":  {Type: "string", Description: "Optional condition to filter events by (e.g. 'diabetes')."},
	}, nil)
}

func (t *SummaryTool) Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error) {
	timeRange := ArgsString(args, "time_range")
	if timeRange == "" {
		timeRange = "1y"
	}
	category := strings.ToLower(ArgsString(args, "category"))
	condition := ArgsString(args, "condition")

	since := rangeStart(t.now(), timeRange)

	f := domain.EventFilter{ConditionLike: condition}
	if since != nil {
		f.Since = since
	}
	switch {
	case strings.Contains(category, "consult"):
		f.Category = "consultation"
	case strings.Contains(category, "lab"):
		f.Category = "lab"
	case strings.Contains(category, "treat"):
		f.Category = "treatment"
	}

	summary := make(map[string]any)

	count, err := t.store.CountEvents(ctx, ownerID, f)
	if err != nil {
		return fmt.Sprintf("Error generating summary: %s", err.Error()), nil
	}
	summary["events_count"] = count

	keyFilter := f
	keyFilter.Newest = true
	keyFilter.Limit = summaryKeyEvents
	events, err := t.store.Events(ctx, ownerID, keyFilter)
	if err != nil {
		return fmt.Sprintf("Error generating summary: %s", err.Error()), nil
	}
	type keyEvent struct {
		OccurredAt string `json:"occurred_at"`
		Kind       string `json:"kind"`
		Payload    string `json:"payload"`
	}
	key := make([]keyEvent, 0, len(events))
	for _, e := range events {
		key = append(key, keyEvent{
			OccurredAt: e.OccurredAt.Format("2006-01-02 15:04:05"),
			Kind:       e.Kind,
			Payload:    e.Payload,
		})
	}
	summary["key_events"] = key

	vitals := make(map[string]any)
	for _, code := range summaryVitalCodes {
		of := domain.ObservationFilter{Codes: []string{code}, Start: since}
		stats, err := t.store.ObservationStats(ctx, ownerID, of)
		if err != nil {
			return fmt.Sprintf("Error generating summary: %s", err.Error()), nil
		}
		if stats.Count == 0 {
			continue
		}
		vitals[code] = map[string]float64{
			"avg": round1(stats.Avg),
			"min": round1(stats.Min),
			"max": round1(stats.Max),
		}
	}
	summary["vitals_summary"] = vitals

	if category == "" || strings.Contains(category, "treat") {
		tf := domain.TreatmentFilter{Since: since}
		treatments, err := t.store.Treatments(ctx, ownerID, tf)
		if err != nil {
			return fmt.Sprintf("Error generating summary: %s", err.Error()), nil
		}
		type treatmentEntry struct {
			Name      string `json:"name"`
			Status    string `json:"status"`
			StartDate string `json:"start_date"`
		}
		out := make([]treatmentEntry, 0, len(treatments))
		for _, tr := range treatments {
			out = append(out, treatmentEntry{
				Name:      tr.Name,
				Status:    tr.Status,
				StartDate: tr.StartDate.Format("2006-01-02"),
			})
		}
		summary["treatments"] = out
	}

	return jsonDump(summary), nil
}

// rangeStart resolves a time range keyword to a start instant. '1y'..'5y'
// count back from now; a four-digit year means January 1st of that year.
// Anything else means no lower bound.
func rangeStart(now time.Time, timeRange string) *time.Time {
	var start time.Time
	switch timeRange {
	case "1y":
		start = now.AddDate(0, 0, -365)
	case "2y":
		start = now.AddDate(0, 0, -365*2)
	case "3y":
		start = now.AddDate(0, 0, -365*3)
	case "5y":
		start = now.AddDate(0, 0, -365*5)
	default:
		if len(timeRange) == 4 {
			if year, err := strconv.Atoi(timeRange); err == nil {
				start = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			}
		}
	}
	if start.IsZero() {
		return nil
	}
	return &start
}
