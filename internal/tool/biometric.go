package tool

import (
	"context"
	"fmt"
	"math"

	"quantia/internal/domain"
)

const maxSeriesPoints = 100

// BiometricTool returns a time-ordered series of measurements for one
// metric, downsampled so a long history never floods the model context.
type BiometricTool struct {
	store domain.HealthStore
}

func NewBiometricTool(store domain.HealthStore) *BiometricTool {
	return &BiometricTool{store: store}
}

func (t *BiometricTool) Name() string { return "get_biometric_data" }

func (t *BiometricTool) Description() string {
	return "Get structured biometric data (vital signs, lab values) for a specific metric over a time range."
}

func (t *BiometricTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"metric":     {Type: "string", Description: "Metric name (e.g., 'weight', 'glucose', 'bp')."},
		"start_date": {Type: "string", Description: "Start date YYYY-MM-DD (optional)."},
		"end_date":   {Type: "string", Description: "End date YYYY-MM-DD (optional)."},
	}, []string{"metric"})
}

func (t *BiometricTool) Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error) {
	metric := ArgsString(args, "metric")
	if metric == "" {
		return "Error: 'metric' argument is required.", nil
	}

	f := metricFilter(metric)
	if start, ok := parseDate(ArgsString(args, "start_date")); ok {
		f.Start = &start
	}
	if end, ok := parseDate(ArgsString(args, "end_date")); ok {
		f.End = &end
	}

	obs, err := t.store.Observations(ctx, ownerID, f)
	if err != nil {
		return fmt.Sprintf("Error retrieving biometrics: %s", err.Error()), nil
	}
	if len(obs) == 0 {
		return "No biometric data found for the specified criteria.", nil
	}

	type point struct {
		TakenAt string  `json:"taken_at"`
		Code    string  `json:"code"`
		Value   float64 `json:"value"`
		Unit    string  `json:"unit"`
	}
	sampled := downsample(obs, maxSeriesPoints)
	out := make([]point, 0, len(sampled))
	for _, o := range sampled {
		out = append(out, point{
			TakenAt: o.TakenAt.Format("2006-01-02 15:04:05"),
			Code:    o.Code,
			Value:   o.Value,
			Unit:    o.Unit,
		})
	}
	return jsonDump(out), nil
}

// downsample thins a series to at most max points with a uniform stride,
// always keeping the first and last measurement so range and endpoints
// survive the cut.
func downsample(obs []domain.Observation, max int) []domain.Observation {
	if max < 2 || len(obs) <= max {
		return obs
	}
	out := make([]domain.Observation, 0, max)
	step := float64(len(obs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(float64(i) * step))
		if idx > len(obs)-1 {
			idx = len(obs) - 1
		}
		out = append(out, obs[idx])
	}
	return out
}
