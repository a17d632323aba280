package domain

import (
	"context"
	"slices"
	"strings"
	"time"
)

// RunStatus describes the lifecycle stage of a group run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// StageOutcome records how one pipeline stage of a run ended.
type StageOutcome struct {
	Stage      Stage     `json:"stage"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	Artifacts  []string  `json:"artifacts,omitempty"`
	EndedAt    time.Time `json:"ended_at"`
}

// RunRecord tracks one pipeline instance for one reflectance group.
type RunRecord struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"`
	Group        string         `json:"group"`
	Status       RunStatus      `json:"status"`
	Samples      int            `json:"samples"`
	ConfigDigest string         `json:"config_digest,omitempty"`
	Stages       []StageOutcome `json:"stages,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Clone returns a deep copy.
func (r RunRecord) Clone() RunRecord {
	out := r
	out.Stages = make([]StageOutcome, len(r.Stages))
	for i, s := range r.Stages {
		s.Artifacts = slices.Clone(s.Artifacts)
		out.Stages[i] = s
	}
	if len(r.Stages) == 0 {
		out.Stages = nil
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Artifacts lists every artifact key written by the run, in stage order.
func (r RunRecord) Artifacts() []string {
	var out []string
	for _, s := range r.Stages {
		out = append(out, s.Artifacts...)
	}
	return out
}

// RunStore is the minimal abstraction over durable run-record backends.
type RunStore interface {
	// Save inserts or replaces the record with the same ID.
	Save(ctx context.Context, rec RunRecord) error
	Get(ctx context.Context, id string) (RunRecord, error)
	// List returns records of the given run (all runs when runID is empty),
	// ordered by creation time then ID.
	List(ctx context.Context, runID string) ([]RunRecord, error)
	Close() error
}

// SortRunRecords orders records by creation time, then ID.
func SortRunRecords(recs []RunRecord) {
	slices.SortFunc(recs, func(a, b RunRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
