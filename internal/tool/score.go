package tool

import (
	"context"
	"fmt"
	"strings"

	"quantia/internal/domain"
)

// ScoreTool computes simple derived health scores. Only BMI is supported;
// unknown score types come back as a contained message rather than an error.
type ScoreTool struct {
	store domain.HealthStore
}

func NewScoreTool(store domain.HealthStore) *ScoreTool {
	return &ScoreTool{store: store}
}

func (t *ScoreTool) Name() string { return "calculate_health_score" }

func (t *ScoreTool) Description() string {
	return "Calculate simple health scores like BMI from the latest measurements."
}

func (t *ScoreTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"score_type": {Type: "string", Description: "The score to compute; currently only 'bmi'."},
	}, []string{"score_type"})
}

func (t *ScoreTool) Execute(ctx context.Context, ownerID int64, args map[string]any) (string, error) {
	scoreType := strings.ToLower(ArgsString(args, "score_type"))
	if scoreType != "bmi" {
		return "Score type not supported yet.", nil
	}

	weight, err := t.store.LatestObservation(ctx, ownerID, "weight")
	if err != nil {
		return fmt.Sprintf("Error calculating score: %s", err.Error()), nil
	}
	height, err := t.store.LatestObservation(ctx, ownerID, "height")
	if err != nil {
		return fmt.Sprintf("Error calculating score: %s", err.Error()), nil
	}
	if weight == nil || height == nil {
		return "Need recent weight and height data.", nil
	}

	// Height records arrive in either centimeters or meters; anything over
	// 3 cannot be meters.
	h := height.Value
	if h > 3 {
		h = h / 100
	}
	if h <= 0 {
		return "Need recent weight and height data.", nil
	}

	bmi := weight.Value / (h * h)
	category := "Normal"
	if bmi >= 25 {
		category = "Overweight"
	}
	if bmi >= 30 {
		category = "Obese"
	}

	return jsonDump(map[string]any{
		"score":    "BMI",
		"value":    round1(bmi),
		"category": category,
	}), nil
}
