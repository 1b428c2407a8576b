// Package model defines the domain types shared by ingestion, prioritization and export.
package model

import "github.com/twpayne/go-geom"

// Sector is a census sector as loaded from the geospatial source.
type Sector struct {
	ID             string  `json:"sector_id"`
	RiskPopulation float64 `json:"risk_population"`
	// Resolved is false when D_Pop_Risco was missing, non-numeric, non-finite or negative.
	// An unresolved sector is kept for geometry-only display and never scored.
	Resolved bool   `json:"resolved"`
	Issue    string `json:"issue,omitempty"`
	Geometry geom.T `json:"-"`
}

// RankedSector is one row of the prioritization output. Nil pointers mean
// "data unavailable" and serialize as JSON null, never as zero.
type RankedSector struct {
	ID             string   `json:"sector_id" yaml:"sector_id"`
	RiskPopulation *float64 `json:"risk_population" yaml:"risk_population"`
	Score          *float64 `json:"score" yaml:"score"`
	Rank           *int     `json:"rank" yaml:"rank"`
	Geometry       geom.T   `json:"-" yaml:"-"`
}

// IsRanked reports whether the sector received a score and rank.
func (r RankedSector) IsRanked() bool {
	return r.Rank != nil && r.Score != nil
}
