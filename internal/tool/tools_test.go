package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"quantia/internal/domain"
)

// stubHealthStore returns canned answers and records the filters it saw.
type stubHealthStore struct {
	observations []domain.Observation
	stats        map[string]domain.ObservationStats // keyed by first code or CodeLike
	monthly      map[string][]domain.MonthlyAverage
	latest       map[string]*domain.Observation
	events       []domain.TimelineEvent
	eventCount   int
	treatments   []domain.Treatment
	first        *domain.Treatment
	err          error

	lastObsFilter   domain.ObservationFilter
	lastEventFilter domain.EventFilter
}

func statsKey(f domain.ObservationFilter) string {
	if len(f.Codes) > 0 {
		return f.Codes[0]
	}
	return f.CodeLike
}

func (s *stubHealthStore) Observations(ctx context.Context, ownerID int64, f domain.ObservationFilter) ([]domain.Observation, error) {
	s.lastObsFilter = f
	return s.observations, s.err
}

func (s *stubHealthStore) ObservationStats(ctx context.Context, ownerID int64, f domain.ObservationFilter) (domain.ObservationStats, error) {
	s.lastObsFilter = f
	if s.err != nil {
		return domain.ObservationStats{}, s.err
	}
	return s.stats[statsKey(f)], nil
}

func (s *stubHealthStore) MonthlyAverages(ctx context.Context, ownerID int64, codeLike string, since time.Time) ([]domain.MonthlyAverage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.monthly[codeLike], nil
}

func (s *stubHealthStore) LatestObservation(ctx context.Context, ownerID int64, code string) (*domain.Observation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.latest[code], nil
}

func (s *stubHealthStore) Events(ctx context.Context, ownerID int64, f domain.EventFilter) ([]domain.TimelineEvent, error) {
	s.lastEventFilter = f
	return s.events, s.err
}

func (s *stubHealthStore) CountEvents(ctx context.Context, ownerID int64, f domain.EventFilter) (int, error) {
	return s.eventCount, s.err
}

func (s *stubHealthStore) Treatments(ctx context.Context, ownerID int64, f domain.TreatmentFilter) ([]domain.Treatment, error) {
	return s.treatments, s.err
}

func (s *stubHealthStore) FirstTreatment(ctx context.Context, ownerID int64, nameLike string) (*domain.Treatment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.first, nil
}

var _ domain.HealthStore = (*stubHealthStore)(nil)

func obsSeries(n int) []domain.Observation {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Observation, n)
	for i := range out {
		out[i] = domain.Observation{
			Code:    "weight",
			Value:   float64(i),
			Unit:    "kg",
			TakenAt: base.AddDate(0, 0, i),
		}
	}
	return out
}

func TestBiometricTool_MetricMapping(t *testing.T) {
	store := &stubHealthStore{observations: obsSeries(3)}
	tool := NewBiometricTool(store)

	res, err := tool.Execute(context.Background(), 1, map[string]any{"metric": "presion"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(store.lastObsFilter.Codes) != 2 || store.lastObsFilter.Codes[0] != "systolic_bp" {
		t.Fatalf("expected bp to map to both pressure codes, got %v", store.lastObsFilter.Codes)
	}
	if !strings.Contains(res, `"code":"weight"`) {
		t.Fatalf("expected JSON series, got %q", res)
	}

	if _, err := tool.Execute(context.Background(), 1, map[string]any{"metric": "hdl"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if store.lastObsFilter.CodeLike != "hdl" {
		t.Fatalf("expected unknown metric to fall back to substring match, got %+v", store.lastObsFilter)
	}
}

func TestBiometricTool_DateRangeAndEmpty(t *testing.T) {
	store := &stubHealthStore{}
	tool := NewBiometricTool(store)

	res, err := tool.Execute(context.Background(), 1, map[string]any{
		"metric":     "weight",
		"start_date": "2024-01-01",
		"end_date":   "2024-06-30",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res != "No biometric data found for the specified criteria." {
		t.Fatalf("expected empty-data message, got %q", res)
	}
	if store.lastObsFilter.Start == nil || store.lastObsFilter.End == nil {
		t.Fatal("expected date bounds to be applied")
	}
	if store.lastObsFilter.Start.Month() != time.January || store.lastObsFilter.End.Month() != time.June {
		t.Fatalf("date bounds wrong: %v .. %v", store.lastObsFilter.Start, store.lastObsFilter.End)
	}
}

func TestBiometricTool_Downsample(t *testing.T) {
	store := &stubHealthStore{observations: obsSeries(365)}
	tool := NewBiometricTool(store)

	res, err := tool.Execute(context.Background(), 1, map[string]any{"metric": "weight"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var points []map[string]any
	if err := json.Unmarshal([]byte(res), &points); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(points) != maxSeriesPoints {
		t.Fatalf("expected %d points, got %d", maxSeriesPoints, len(points))
	}
	if points[0]["value"].(float64) != 0 {
		t.Fatalf("first point lost: %v", points[0])
	}
	if points[len(points)-1]["value"].(float64) != 364 {
		t.Fatalf("last point lost: %v", points[len(points)-1])
	}
}

func TestDownsample_ShortSeriesUntouched(t *testing.T) {
	obs := obsSeries(100)
	got := downsample(obs, maxSeriesPoints)
	if len(got) != 100 {
		t.Fatalf("expected series at the limit to pass through, got %d", len(got))
	}
}

func TestBiometricTool_ErrorIsContained(t *testing.T) {
	store := &stubHealthStore{err: errors.New("disk gone")}
	tool := NewBiometricTool(store)

	res, err := tool.Execute(context.Background(), 1, map[string]any{"metric": "weight"})
	if err != nil {
		t.Fatalf("store failure must not escape as error: %v", err)
	}
	if !strings.Contains(res, "Error retrieving biometrics") {
		t.Fatalf("expected contained error text, got %q", res)
	}
}

func TestEventsTool_CategoryMapping(t *testing.T) {
	store := &stubHealthStore{}
	tool := NewEventsTool(store)

	cases := []struct {
		category string
		kinds    []string
		cat      string
	}{
		{"medication", []string{"treatment_start", "treatment_end", "medication"}, ""},
		{"tratamiento", []string{"treatment_start", "treatment_end", "medication"}, ""},
		{"diagnosis", []string{"diagnosis"}, ""},
		{"cirugia", nil, "procedure"},
		{"something else", nil, ""},
		{"", nil, ""},
	}
	for _, tc := range cases {
		if _, err := tool.Execute(context.Background(), 1, map[string]any{"category": tc.category}); err != nil {
			t.Fatalf("%q: %v", tc.category, err)
		}
		got := store.lastEventFilter
		if len(got.Kinds) != len(tc.kinds) || got.Category != tc.cat {
			t.Fatalf("%q: got filter %+v", tc.category, got)
		}
	}
}

func TestEventsTool_Output(t *testing.T) {
	store := &stubHealthStore{events: []domain.TimelineEvent{
		{Kind: "diagnosis", Category: "condition", Payload: "Type 2 diabetes", OccurredAt: time.Date(2021, 3, 2, 0, 0, 0, 0, time.UTC)},
	}}
	tool := NewEventsTool(store)

	res, err := tool.Execute(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res, "Type 2 diabetes") || !strings.Contains(res, "2021-03-02") {
		t.Fatalf("unexpected output: %q", res)
	}

	store.events = nil
	res, _ = tool.Execute(context.Background(), 1, nil)
	if res != "No clinical events found." {
		t.Fatalf("expected no-events message, got %q", res)
	}
}

type stubSearcher struct {
	refs []domain.Reference
	err  error
	got  string
}

func (s *stubSearcher) Search(ctx context.Context, ownerID int64, query string, topK int) ([]domain.Reference, error) {
	s.got = query
	return s.refs, s.err
}

func TestDocumentsTool_Formatting(t *testing.T) {
	searcher := &stubSearcher{refs: []domain.Reference{
		{Title: "Cardiology report", Source: "upload", Snippet: "mild hypertension noted"},
		{Title: "", Source: "", Snippet: "second"},
	}}
	tool := NewDocumentsTool(searcher)

	res, err := tool.Execute(context.Background(), 1, map[string]any{"query": "blood pressure", "year": float64(2023)})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(searcher.got, "2023") {
		t.Fatalf("year should fold into the query, got %q", searcher.got)
	}
	blocks := strings.Split(res, "\n---\n")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %q", len(blocks), res)
	}
	if !strings.Contains(blocks[0], "Document: Cardiology report") || !strings.Contains(blocks[0], "Content: mild hypertension noted") {
		t.Fatalf("block format wrong: %q", blocks[0])
	}
	if !strings.Contains(blocks[1], "Document: Untitled") || !strings.Contains(blocks[1], "Source: Unknown") {
		t.Fatalf("empty fields should get placeholders: %q", blocks[1])
	}
}

func TestDocumentsTool_Empty(t *testing.T) {
	tool := NewDocumentsTool(&stubSearcher{})
	res, err := tool.Execute(context.Background(), 1, map[string]any{"query": "anything"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res != "No relevant information found in documents." {
		t.Fatalf("expected no-hits message, got %q", res)
	}
}

func TestSummaryTool(t *testing.T) {
	store := &stubHealthStore{
		eventCount: 4,
		events: []domain.TimelineEvent{
			{Kind: "diagnosis", Payload: "diabetes", OccurredAt: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		},
		stats: map[string]domain.ObservationStats{
			"glucose": {Avg: 110.04, Min: 90, Max: 150, Count: 20},
			"weight":  {Avg: 80.55, Min: 78, Max: 84, Count: 12},
		},
		treatments: []domain.Treatment{
			{Name: "Metformin", Status: "active", StartDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
	tool := NewSummaryTool(store)
	tool.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	res, err := tool.Execute(context.Background(), 1, map[string]any{"time_range": "2y"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var summary map[string]any
	if err := json.Unmarshal([]byte(res), &summary); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if summary["events_count"].(float64) != 4 {
		t.Fatalf("events_count: %v", summary["events_count"])
	}
	vitals := summary["vitals_summary"].(map[string]any)
	if _, ok := vitals["systolic_bp"]; ok {
		t.Fatal("codes with no data must be omitted")
	}
	if vitals["glucose"].(map[string]any)["avg"].(float64) != 110.0 {
		t.Fatalf("glucose avg should be rounded: %v", vitals["glucose"])
	}
	if len(summary["treatments"].([]any)) != 1 {
		t.Fatalf("treatments: %v", summary["treatments"])
	}
	if !store.lastEventFilter.Newest || store.lastEventFilter.Limit != summaryKeyEvents {
		t.Fatalf("key events should query newest-first limited: %+v", store.lastEventFilter)
	}
}

func TestSummaryTool_SpecificYearAndCategory(t *testing.T) {
	store := &stubHealthStore{stats: map[string]domain.ObservationStats{}}
	tool := NewSummaryTool(store)
	tool.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	res, err := tool.Execute(context.Background(), 1, map[string]any{"time_range": "2022", "category": "labs"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if store.lastEventFilter.Since == nil || store.lastEventFilter.Since.Year() != 2022 {
		t.Fatalf("expected since Jan 2022, got %v", store.lastEventFilter.Since)
	}
	if store.lastEventFilter.Category != "lab" {
		t.Fatalf("category mapping: %+v", store.lastEventFilter)
	}
	if strings.Contains(res, "treatments") {
		t.Fatalf("lab category must skip treatments: %q", res)
	}
}

func TestCompareTool(t *testing.T) {
	store := &stubHealthStore{stats: map[string]domain.ObservationStats{
		"weight": {Avg: 80, Count: 10},
	}}
	// Same canned stats for both years would give a flat comparison; hand
	// out a different value per call instead.
	calls := 0
	tool := NewCompareTool(&compareStatsStore{
		stub: store,
		perCall: []domain.ObservationStats{
			{Avg: 80, Count: 10},
			{Avg: 88, Count: 12},
		},
		calls: &calls,
	})

	res, err := tool.Execute(context.Background(), 1, map[string]any{
		"metric": "weight", "year1": float64(2020), "year2": float64(2024),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(res), &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if out["average_2020"].(float64) != 80 || out["average_2024"].(float64) != 88 {
		t.Fatalf("averages wrong: %v", out)
	}
	if out["absolute_change"].(float64) != 8 {
		t.Fatalf("absolute_change: %v", out["absolute_change"])
	}
	if out["percent_change"].(float64) != 10.0 {
		t.Fatalf("percent_change: %v", out["percent_change"])
	}
	if out["trend"] != "increased" {
		t.Fatalf("trend: %v", out["trend"])
	}
}

// compareStatsStore hands out a different stats value per ObservationStats
// call so the two compared years differ.
type compareStatsStore struct {
	stub    *stubHealthStore
	perCall []domain.ObservationStats
	calls   *int
}

func (c *compareStatsStore) ObservationStats(ctx context.Context, ownerID int64, f domain.ObservationFilter) (domain.ObservationStats, error) {
	i := *c.calls
	*c.calls++
	if i < len(c.perCall) {
		return c.perCall[i], nil
	}
	return domain.ObservationStats{}, nil
}

func (c *compareStatsStore) Observations(ctx context.Context, ownerID int64, f domain.ObservationFilter) ([]domain.Observation, error) {
	return c.stub.Observations(ctx, ownerID, f)
}
func (c *compareStatsStore) MonthlyAverages(ctx context.Context, ownerID int64, codeLike string, since time.Time) ([]domain.MonthlyAverage, error) {
	return c.stub.MonthlyAverages(ctx, ownerID, codeLike, since)
}
func (c *compareStatsStore) LatestObservation(ctx context.Context, ownerID int64, code string) (*domain.Observation, error) {
	return c.stub.LatestObservation(ctx, ownerID, code)
}
func (c *compareStatsStore) Events(ctx context.Context, ownerID int64, f domain.EventFilter) ([]domain.TimelineEvent, error) {
	return c.stub.Events(ctx, ownerID, f)
}
func (c *compareStatsStore) CountEvents(ctx context.Context, ownerID int64, f domain.EventFilter) (int, error) {
	return c.stub.CountEvents(ctx, ownerID, f)
}
func (c *compareStatsStore) Treatments(ctx context.Context, ownerID int64, f domain.TreatmentFilter) ([]domain.Treatment, error) {
	return c.stub.Treatments(ctx, ownerID, f)
}
func (c *compareStatsStore) FirstTreatment(ctx context.Context, ownerID int64, nameLike string) (*domain.Treatment, error) {
	return c.stub.FirstTreatment(ctx, ownerID, nameLike)
}

func TestCompareTool_InsufficientData(t *testing.T) {
	store := &stubHealthStore{stats: map[string]domain.ObservationStats{}}
	tool := NewCompareTool(store)

	res, err := tool.Execute(context.Background(), 1, map[string]any{
		"metric": "glucose", "year1": float64(2019), "year2": float64(2020),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res, "Insufficient data for comparison") {
		t.Fatalf("expected insufficient-data message, got %q", res)
	}
}

func TestCompareTool_ZeroBaselineNeverDivides(t *testing.T) {
	calls := 0
	tool := NewCompareTool(&compareStatsStore{
		stub: &stubHealthStore{},
		perCall: []domain.ObservationStats{
			{Avg: 0, Count: 5}, // zero average with data present
			{Avg: 10, Count: 5},
		},
		calls: &calls,
	})

	res, err := tool.Execute(context.Background(), 1, map[string]any{
		"metric": "steps", "year1": float64(2020), "year2": float64(2021),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res, "Insufficient data for comparison") {
		t.Fatalf("zero baseline must be reported as insufficient, got %q", res)
	}
}

func TestCorrelationTool(t *testing.T) {
	store := &stubHealthStore{monthly: map[string][]domain.MonthlyAverage{
		"steps": {
			{Month: "2024-01", Avg: 4000},
			{Month: "2024-02", Avg: 6000},
			{Month: "2024-03", Avg: 8000},
		},
		"weight": {
			{Month: "2024-01", Avg: 84},
			{Month: "2024-02", Avg: 82},
			{Month: "2024-03", Avg: 81},
		},
	}}
	tool := NewCorrelationTool(store)
	tool.now = func() time.Time { return time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC) }

	res, err := tool.Execute(context.Background(), 1, map[string]any{"metric_a": "steps", "metric_b": "weight"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(res), &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if out["data_points"].(float64) != 3 {
		t.Fatalf("data_points: %v", out["data_points"])
	}
	if out["metric_a_trend"] != "up" || out["metric_b_trend"] != "down" {
		t.Fatalf("trends: %v", out)
	}
	if out["observed_relationship"] != "divergent" {
		t.Fatalf("relationship: %v", out["observed_relationship"])
	}
}

func TestCorrelationTool_NeedsThreeOverlappingMonths(t *testing.T) {
	store := &stubHealthStore{monthly: map[string][]domain.MonthlyAverage{
		"steps":  {{Month: "2024-01", Avg: 4000}, {Month: "2024-02", Avg: 5000}},
		"weight": {{Month: "2024-01", Avg: 84}, {Month: "2024-02", Avg: 83}},
	}}
	tool := NewCorrelationTool(store)

	res, err := tool.Execute(context.Background(), 1, map[string]any{"metric_a": "steps", "metric_b": "weight"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res != "Not enough overlapping data points to calculate correlation." {
		t.Fatalf("expected overlap guard, got %q", res)
	}
}

func TestTreatmentTool(t *testing.T) {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	tool := NewTreatmentTool(&compareStatsStore{
		stub: &stubHealthStore{first: &domain.Treatment{Name: "Metformin", StartDate: start}},
		perCall: []domain.ObservationStats{
			{Avg: 140, Count: 8}, // before
			{Avg: 118, Count: 9}, // after
		},
		calls: &calls,
	})

	res, err := tool.Execute(context.Background(), 1, map[string]any{
		"treatment_query": "metformin", "target_metric": "glucose",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(res), &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if out["treatment"] != "Metformin" || out["start_date"] != "2023-06-01" {
		t.Fatalf("treatment header: %v", out)
	}
	if out["change"].(float64) != -22 {
		t.Fatalf("change: %v", out["change"])
	}
	if out["conclusion"] != "Improved" {
		t.Fatalf("conclusion: %v", out["conclusion"])
	}
}

func TestTreatmentTool_NotFoundAndInsufficient(t *testing.T) {
	tool := NewTreatmentTool(&stubHealthStore{})
	res, err := tool.Execute(context.Background(), 1, map[string]any{
		"treatment_query": "statins", "target_metric": "cholesterol",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res != "Treatment 'statins' not found." {
		t.Fatalf("expected not-found, got %q", res)
	}

	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	tool = NewTreatmentTool(&stubHealthStore{
		first: &domain.Treatment{Name: "Statins", StartDate: start},
		stats: map[string]domain.ObservationStats{},
	})
	res, _ = tool.Execute(context.Background(), 1, map[string]any{
		"treatment_query": "statins", "target_metric": "cholesterol",
	})
	if !strings.Contains(res, "Insufficient biometric data around the treatment start date (2023-06-01)") {
		t.Fatalf("expected insufficient-data message, got %q", res)
	}
}

func TestScoreTool_BMI(t *testing.T) {
	store := &stubHealthStore{latest: map[string]*domain.Observation{
		"weight": {Code: "weight", Value: 82},
		"height": {Code: "height", Value: 180}, // centimeters
	}}
	tool := NewScoreTool(store)

	res, err := tool.Execute(context.Background(), 1, map[string]any{"score_type": "BMI"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(res), &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if out["value"].(float64) != 25.3 {
		t.Fatalf("bmi: %v", out["value"])
	}
	if out["category"] != "Overweight" {
		t.Fatalf("category: %v", out["category"])
	}
}

func TestScoreTool_MetersAndMissingData(t *testing.T) {
	store := &stubHealthStore{latest: map[string]*domain.Observation{
		"weight": {Code: "weight", Value: 100},
		"height": {Code: "height", Value: 1.8}, // already meters
	}}
	tool := NewScoreTool(store)

	res, _ := tool.Execute(context.Background(), 1, map[string]any{"score_type": "bmi"})
	var out map[string]any
	if err := json.Unmarshal([]byte(res), &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if out["category"] != "Obese" {
		t.Fatalf("category for bmi %.1f: %v", out["value"], out["category"])
	}

	tool = NewScoreTool(&stubHealthStore{latest: map[string]*domain.Observation{}})
	res, _ = tool.Execute(context.Background(), 1, map[string]any{"score_type": "bmi"})
	if res != "Need recent weight and height data." {
		t.Fatalf("expected missing-data message, got %q", res)
	}

	res, _ = tool.Execute(context.Background(), 1, map[string]any{"score_type": "cardio"})
	if res != "Score type not supported yet." {
		t.Fatalf("expected unsupported message, got %q", res)
	}
}

type stubGraphStore struct {
	nodes []domain.GraphNode
	err   error
}

func (s *stubGraphStore) Connect(ctx context.Context) error { return nil }
func (s *stubGraphStore) Close(ctx context.Context) error   { return nil }
func (s *stubGraphStore) Neighborhood(ctx context.Context, ownerID int64, maxHops int) ([]domain.GraphNode, error) {
	return s.nodes, s.err
}

var _ domain.GraphStore = (*stubGraphStore)(nil)

func TestGraphTool(t *testing.T) {
	store := &stubGraphStore{nodes: []domain.GraphNode{
		{Labels: []string{"Condition"}, Props: map[string]any{"name": "Lupus"}},
		{Labels: []string{"Finding"}, Props: map[string]any{"name": "Proteinuria", "description": "related to lupus nephritis"}},
		{Labels: []string{"Treatment"}, Props: map[string]any{"name": "Hydroxychloroquine"}},
	}}
	tool := NewGraphTool(store)

	res, err := tool.Execute(context.Background(), 1, map[string]any{"entities": []any{"lupus", "warfarin"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res, `Entity "lupus" is connected to:`) {
		t.Fatalf("expected lupus matches, got %q", res)
	}
	if !strings.Contains(res, "Lupus (Condition)") || !strings.Contains(res, "Proteinuria (Finding)") {
		t.Fatalf("expected both lupus-mentioning nodes, got %q", res)
	}
	if !strings.Contains(res, `Entity "warfarin": no related nodes found.`) {
		t.Fatalf("expected unmatched entity note, got %q", res)
	}
	if !strings.Contains(res, "Neighborhood composition (3 nodes)") {
		t.Fatalf("expected composition tally, got %q", res)
	}
}

func TestGraphTool_UnavailableBackend(t *testing.T) {
	tool := NewGraphTool(nil)
	res, err := tool.Execute(context.Background(), 1, map[string]any{"entities": []any{"lupus"}})
	if err != nil {
		t.Fatalf("nil store must be contained: %v", err)
	}
	if !strings.Contains(res, "knowledge graph is unavailable") {
		t.Fatalf("expected unavailable message, got %q", res)
	}

	tool = NewGraphTool(&stubGraphStore{err: errors.New("connection refused")})
	res, _ = tool.Execute(context.Background(), 1, map[string]any{"entities": []any{"lupus"}})
	if !strings.Contains(res, "knowledge graph is unavailable") || !strings.Contains(res, "connection refused") {
		t.Fatalf("expected contained backend error, got %q", res)
	}
}
