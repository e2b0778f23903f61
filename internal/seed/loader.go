// Package seed loads synthetic clinical fixtures from a YAML file into the
// store and the document index, for demos and local development.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quantia/internal/domain"
)

// HealthWriter is the slice of the store the loader writes through.
type HealthWriter interface {
	AddObservation(ctx context.Context, obs domain.Observation) error
	AddEvent(ctx context.Context, ev domain.TimelineEvent) error
	AddTreatment(ctx context.Context, tr domain.Treatment) error
}

// Ingester indexes fixture documents; satisfied by the retriever.
type Ingester interface {
	Ingest(ctx context.Context, doc domain.Document) (*domain.Document, error)
}

// Fixture is the YAML schema of a seed file.
type Fixture struct {
	Observations []struct {
		Code    string  `yaml:"code"`
		Value   float64 `yaml:"value"`
		Unit    string  `yaml:"unit"`
		TakenAt string  `yaml:"taken_at"`
	} `yaml:"observations"`
	Events []struct {
		Kind        string `yaml:"kind"`
		Category    string `yaml:"category"`
		Payload     string `yaml:"payload"`
		DataSummary string `yaml:"data_summary"`
		OccurredAt  string `yaml:"occurred_at"`
	} `yaml:"events"`
	Treatments []struct {
		Name      string `yaml:"name"`
		Status    string `yaml:"status"`
		StartDate string `yaml:"start_date"`
		EndDate   string `yaml:"end_date"`
	} `yaml:"treatments"`
	Documents []struct {
		ID     string `yaml:"id"`
		Title  string `yaml:"title"`
		Source string `yaml:"source"`
		Body   string `yaml:"body"`
	} `yaml:"documents"`
}

// Counts reports what a load inserted.
type Counts struct {
	Observations int
	Events       int
	Treatments   int
	Documents    int
}

type Loader struct {
	store    HealthWriter
	ingester Ingester
	logger   *slog.Logger
}

func NewLoader(store HealthWriter, ingester Ingester, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, ingester: ingester, logger: logger}
}

// LoadFile parses the YAML fixture at path and inserts everything for the
// given owner. The first bad record aborts the load with a positioned error.
func (l *Loader) LoadFile(ctx context.Context, path string, ownerID int64) (Counts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Counts{}, fmt.Errorf("read fixture: %w", err)
	}

	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return Counts{}, fmt.Errorf("parse fixture: %w", err)
	}
	return l.Load(ctx, fx, ownerID)
}

func (l *Loader) Load(ctx context.Context, fx Fixture, ownerID int64) (Counts, error) {
	var counts Counts

	for i, o := range fx.Observations {
		takenAt, err := parseTime(o.TakenAt)
		if err != nil {
			return counts, fmt.Errorf("observations[%d]: %w", i, err)
		}
		err = l.store.AddObservation(ctx, domain.Observation{
			OwnerID: ownerID,
			Code:    o.Code,
			Value:   o.Value,
			Unit:    o.Unit,
			TakenAt: takenAt,
		})
		if err != nil {
			return counts, fmt.Errorf("observations[%d]: %w", i, err)
		}
		counts.Observations++
	}

	for i, e := range fx.Events {
		occurredAt, err := parseTime(e.OccurredAt)
		if err != nil {
			return counts, fmt.Errorf("events[%d]: %w", i, err)
		}
		err = l.store.AddEvent(ctx, domain.TimelineEvent{
			OwnerID:     ownerID,
			Kind:        e.Kind,
			Category:    e.Category,
			Payload:     e.Payload,
			DataSummary: e.DataSummary,
			OccurredAt:  occurredAt,
		})
		if err != nil {
			return counts, fmt.Errorf("events[%d]: %w", i, err)
		}
		counts.Events++
	}

	for i, tr := range fx.Treatments {
		startDate, err := parseTime(tr.StartDate)
		if err != nil {
			return counts, fmt.Errorf("treatments[%d]: %w", i, err)
		}
		rec := domain.Treatment{
			OwnerID:   ownerID,
			Name:      tr.Name,
			Status:    tr.Status,
			StartDate: startDate,
		}
		if tr.EndDate != "" {
			endDate, err := parseTime(tr.EndDate)
			if err != nil {
				return counts, fmt.Errorf("treatments[%d]: %w", i, err)
			}
			rec.EndDate = &endDate
		}
		if err := l.store.AddTreatment(ctx, rec); err != nil {
			return counts, fmt.Errorf("treatments[%d]: %w", i, err)
		}
		counts.Treatments++
	}

	for i, d := range fx.Documents {
		_, err := l.ingester.Ingest(ctx, domain.Document{
			ID:      d.ID,
			OwnerID: ownerID,
			Title:   d.Title,
			Source:  d.Source,
			Body:    d.Body,
		})
		if err != nil {
			return counts, fmt.Errorf("documents[%d]: %w", i, err)
		}
		counts.Documents++
	}

	l.logger.Info("fixture loaded",
		"owner", ownerID,
		"observations", counts.Observations,
		"events", counts.Events,
		"treatments", counts.Treatments,
		"documents", counts.Documents,
	)
	return counts, nil
}

// parseTime accepts dates with or without a time component.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
