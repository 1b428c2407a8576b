package model

import "time"

// RunStatus represents the current state of a prioritization run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunSources records the source handles a run was computed from.
type RunSources struct {
	Sectors    string `json:"sectors" yaml:"sectors"`
	Cases      string `json:"cases,omitempty" yaml:"cases,omitempty"`
	Coverage   string `json:"coverage" yaml:"coverage"`
	Population string `json:"population,omitempty" yaml:"population,omitempty"`
}

// Run is one load-rank pass over a set of sources.
type Run struct {
	ID        string     `json:"id" yaml:"id"`
	Sources   RunSources `json:"sources" yaml:"sources"`
	Status    RunStatus  `json:"status" yaml:"status"`
	Result    *RunResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error     string     `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
}

// RunResult holds the constants and totals of a completed run. Coverage is
// the normalized fraction; CoverageRaw is the value as read.
type RunResult struct {
	MeanIncidence float64   `json:"mean_incidence" yaml:"mean_incidence"`
	Coverage      float64   `json:"coverage" yaml:"coverage"`
	CoverageRaw   float64   `json:"coverage_raw" yaml:"coverage_raw"`
	Ranked        int       `json:"ranked" yaml:"ranked"`
	Unranked      int       `json:"unranked" yaml:"unranked"`
	Dropped       int       `json:"dropped" yaml:"dropped"`
	MaxScore      float64   `json:"max_score" yaml:"max_score"`
	ComputedAt    time.Time `json:"computed_at" yaml:"computed_at"`
}
