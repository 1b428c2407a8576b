// Package store persists prioritization runs and their ranked sectors.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/machado-saude/sector-priority/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for prioritization runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, sources model.RunSources) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult, sectors []model.RankedSector) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	// LatestRun returns the most recently completed run.
	LatestRun(ctx context.Context) (*model.Run, error)

	// Sectors
	RunSectors(ctx context.Context, runID string) ([]model.RankedSector, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(f RunFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
