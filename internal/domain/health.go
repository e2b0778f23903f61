package domain

import (
	"context"
	"time"
)

// Observation is a single biometric or lab measurement.
type Observation struct {
	ID      int64     `json:"id"`
	OwnerID int64     `json:"owner_id"`
	Code    string    `json:"code"` // weight | glucose | systolic_bp | diastolic_bp | steps | height | ...
	Value   float64   `json:"value"`
	Unit    string    `json:"unit"`
	TakenAt time.Time `json:"taken_at"`
}

// TimelineEvent is a clinical history entry (diagnosis, procedure, treatment
// start/end, consultation, lab).
type TimelineEvent struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Kind        string    `json:"kind"`
	Category    string    `json:"category"`
	Payload     string    `json:"payload"`
	DataSummary string    `json:"data_summary,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Treatment is an ongoing or past medication/therapy.
type Treatment struct {
	ID        int64      `json:"id"`
	OwnerID   int64      `json:"owner_id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"` // active | completed | suspended
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// ObservationFilter narrows observation queries. Codes and CodeLike are
// mutually exclusive; when both are empty all codes match.
type ObservationFilter struct {
	Codes    []string
	CodeLike string
	Start    *time.Time
	End      *time.Time
}

// ObservationStats aggregates a set of observations.
type ObservationStats struct {
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// MonthlyAverage is one bucket of a month-by-month aggregation.
type MonthlyAverage struct {
	Month string  `json:"month"` // YYYY-MM
	Avg   float64 `json:"avg"`
}

// EventFilter narrows timeline event queries.
type EventFilter struct {
	Kinds         []string
	KindPrefix    string // matches kinds sharing a dotted prefix, e.g. "treatment"
	Category      string
	ConditionLike string // matched against kind and payload
	Since         *time.Time
	Limit         int
	Newest        bool // order newest first when set
}

// TreatmentFilter narrows treatment queries.
type TreatmentFilter struct {
	NameLike string
	Since    *time.Time
}

// HealthStore is the structured clinical data source the built-in tools
// query. Persistence and access control of these records belong to the
// ingestion side; the engine only reads.
type HealthStore interface {
	Observations(ctx context.Context, ownerID int64, f ObservationFilter) ([]Observation, error)
	ObservationStats(ctx context.Context, ownerID int64, f ObservationFilter) (ObservationStats, error)
	MonthlyAverages(ctx context.Context, ownerID int64, codeLike string, since time.Time) ([]MonthlyAverage, error)
	LatestObservation(ctx context.Context, ownerID int64, code string) (*Observation, error)

	Events(ctx context.Context, ownerID int64, f EventFilter) ([]TimelineEvent, error)
	CountEvents(ctx context.Context, ownerID int64, f EventFilter) (int, error)

	Treatments(ctx context.Context, ownerID int64, f TreatmentFilter) ([]Treatment, error)
	FirstTreatment(ctx context.Context, ownerID int64, nameLike string) (*Treatment, error)
}
