package tool

import (
	"encoding/json"
	"strings"
	"time"

	"quantia/internal/domain"
)

// metricFilter maps a free-form metric name from the model onto observation
// codes. Spanish synonyms are kept because the assistant answers Spanish
// speakers; anything unrecognized falls back to a substring match.
func metricFilter(metric string) domain.ObservationFilter {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "weight", "peso":
		return domain.ObservationFilter{Codes: []string{"weight"}}
	case "glucose", "glucosa", "sugar":
		return domain.ObservationFilter{Codes: []string{"glucose"}}
	case "bp", "blood pressure", "presion", "presion arterial":
		return domain.ObservationFilter{Codes: []string{"systolic_bp", "diastolic_bp"}}
	case "steps", "pasos", "caminata":
		return domain.ObservationFilter{Codes: []string{"steps"}}
	default:
		return domain.ObservationFilter{CodeLike: strings.ToLower(strings.TrimSpace(metric))}
	}
}

// parseDate accepts the formats the model tends to emit for date arguments.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func jsonDump(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// round1 and round2 keep tool output compact; the model does not need more
// precision than a clinician would report.
func round1(f float64) float64 { return float64(int64(f*10+sign(f)*0.5)) / 10 }

func round2(f float64) float64 { return float64(int64(f*100+sign(f)*0.5)) / 100 }

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
