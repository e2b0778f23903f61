package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"quantia/internal/domain"
)

const (
	// proactiveRecentDays is the lookback for "something changed lately"
	// checks; proactiveQuietDays is how long a conversation gap must be
	// before the assistant reaches out on its own.
	proactiveRecentDays = 14
	proactiveQuietDays  = 7

	// Outlier scan defaults: trailing window, minimum sample size for a
	// meaningful mean, and the z-score past which a reading counts as an
	// outlier.
	scanDefaultDays  = 30
	scanMinSamples   = 3
	outlierThreshold = 2.0

	// glucoseAlertMgdl is the elevated-glucose cutoff for the proactive
	// check-in question.
	glucoseAlertMgdl = 180
)

// AlertEventKind tags timeline events produced by the outlier scan.
const AlertEventKind = "proactivity.alert"

// ActivityStore is what the proactive checker needs beyond the clinical
// data source: conversational recency and a place to log alerts.
type ActivityStore interface {
	LastEpisodeAt(ctx context.Context, ownerID int64) (*time.Time, error)
	AddEvent(ctx context.Context, ev domain.TimelineEvent) error
}

// OutlierAlert is one flagged metric from an outlier scan.
type OutlierAlert struct {
	Code  string `json:"code"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// Proactive generates check-in questions from a user's recent clinical
// state and scans observation series for statistical outliers. Both paths
// are rule-based; no completion call is involved.
type Proactive struct {
	health domain.HealthStore
	store  ActivityStore
	logger *slog.Logger
	now    func() time.Time
}

func NewProactive(health domain.HealthStore, store ActivityStore, logger *slog.Logger) *Proactive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proactive{
		health: health,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Question picks the first matching rule, in priority order: elevated
// glucose, a recent treatment change, a recent lab result, a quiet
// conversation, then a general check-in.
func (p *Proactive) Question(ctx context.Context, ownerID int64) (string, error) {
	recent := p.now().AddDate(0, 0, -proactiveRecentDays)

	obs, err := p.health.Observations(ctx, ownerID, domain.ObservationFilter{
		Codes: []string{"glucose"},
		Start: &recent,
	})
	if err != nil {
		return "", fmt.Errorf("glucose lookup: %w", err)
	}
	if n := len(obs); n > 0 && obs[n-1].Value > glucoseAlertMgdl {
		return "He notado que tu glucosa estuvo elevada recientemente. ¿Cómo te has sentido estos días?", nil
	}

	hasTreatment, err := p.recentEvent(ctx, ownerID, "treatment", recent)
	if err != nil {
		return "", err
	}
	if hasTreatment {
		return "Veo que hubo un ajuste reciente en tu tratamiento. ¿Has notado algún efecto o cambio desde entonces?", nil
	}

	hasLab, err := p.recentEvent(ctx, ownerID, "lab", recent)
	if err != nil {
		return "", err
	}
	if hasLab {
		return "Recientemente registraste un análisis de laboratorio. ¿Te gustaría que revisemos juntos los resultados?", nil
	}

	lastChat, err := p.store.LastEpisodeAt(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("episode recency: %w", err)
	}
	quiet := p.now().AddDate(0, 0, -proactiveQuietDays)
	if lastChat == nil || lastChat.Before(quiet) {
		return "Hace días que no conversamos. ¿Cómo te has sentido en términos de estado de ánimo, actividad y adherencia?", nil
	}

	return "¿Cómo has estado últimamente en actividad física, sueño y estado de ánimo?", nil
}

func (p *Proactive) recentEvent(ctx context.Context, ownerID int64, kindPrefix string, since time.Time) (bool, error) {
	events, err := p.health.Events(ctx, ownerID, domain.EventFilter{
		KindPrefix: kindPrefix,
		Since:      &since,
		Limit:      1,
		Newest:     true,
	})
	if err != nil {
		return false, fmt.Errorf("%s events: %w", kindPrefix, err)
	}
	return len(events) > 0, nil
}

// ScanOutliers examines each code's observation series over the trailing
// window and flags readings more than outlierThreshold standard deviations
// from the series mean. Series shorter than scanMinSamples are skipped.
// When anything is flagged one timeline alert event is recorded for the
// owner and the alerts are returned.
func (p *Proactive) ScanOutliers(ctx context.Context, ownerID int64, days int, codes []string) ([]OutlierAlert, error) {
	if days <= 0 {
		days = scanDefaultDays
	}
	if len(codes) == 0 {
		codes = []string{"glucose"}
	}
	since := p.now().AddDate(0, 0, -days)

	var alerts []OutlierAlert
	for _, code := range codes {
		obs, err := p.health.Observations(ctx, ownerID, domain.ObservationFilter{
			Codes: []string{code},
			Start: &since,
		})
		if err != nil {
			return nil, fmt.Errorf("observations for %s: %w", code, err)
		}
		if len(obs) < scanMinSamples {
			continue
		}

		var sum float64
		for _, o := range obs {
			sum += o.Value
		}
		mean := sum / float64(len(obs))
		var varSum float64
		for _, o := range obs {
			d := o.Value - mean
			varSum += d * d
		}
		std := math.Sqrt(varSum / float64(len(obs)))
		if std == 0 {
			continue
		}

		outliers := 0
		for _, o := range obs {
			if math.Abs((o.Value-mean)/std) > outlierThreshold {
				outliers++
			}
		}
		if outliers > 0 {
			alerts = append(alerts, OutlierAlert{Code: code, Kind: "outliers", Count: outliers})
		}
	}

	if len(alerts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(map[string]any{"alerts": alerts})
	if err != nil {
		return nil, fmt.Errorf("marshal alerts: %w", err)
	}
	if err := p.store.AddEvent(ctx, domain.TimelineEvent{
		OwnerID:    ownerID,
		Kind:       AlertEventKind,
		Payload:    string(payload),
		OccurredAt: p.now(),
	}); err != nil {
		return nil, fmt.Errorf("record alert: %w", err)
	}
	p.logger.Info("proactivity alerts recorded", "owner", ownerID, "alerts", len(alerts))
	return alerts, nil
}
