package pipeline

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/machado-saude/sector-priority/internal/config"
	"github.com/machado-saude/sector-priority/internal/fetcher"
	"github.com/machado-saude/sector-priority/internal/ingest"
)

// FetchOptions maps the fetch section onto fetcher options.
func FetchOptions(cfg config.FetchConfig) fetcher.Options {
	return fetcher.Options{
		UserAgent:     cfg.UserAgent,
		Timeout:       time.Duration(cfg.TimeoutSecs) * time.Second,
		MaxRetries:    cfg.MaxRetries,
		RatePerSecond: cfg.RatePerSecond,
		TempDir:       cfg.TempDir,
	}
}

// TableOptions maps a table section onto reader options. An empty delimiter
// leaves ';'/',' detection to the reader.
func TableOptions(tc config.TableConfig) (fetcher.TableOptions, error) {
	d, err := config.ParseDelimiter(tc.Delimiter)
	if err != nil {
		return fetcher.TableOptions{}, eris.Wrap(err, "pipeline: delimiter")
	}
	return fetcher.TableOptions{
		CSV: fetcher.CSVOptions{
			Delimiter: d,
			Charset:   tc.Charset,
		},
		XLSX: fetcher.XLSXOptions{SheetName: tc.Sheet},
	}, nil
}

// SectorOptions builds the sector loader options, including the optional
// population table.
func SectorOptions(cfg *config.Config) (ingest.SectorOptions, error) {
	tbl, err := TableOptions(cfg.Sectors.PopulationTable)
	if err != nil {
		return ingest.SectorOptions{}, eris.Wrap(err, "pipeline: sectors.population_table")
	}
	return ingest.SectorOptions{
		IDField:            cfg.Sectors.IDField,
		PopulationField:    cfg.Sectors.PopulationField,
		IDWidth:            cfg.Sectors.IDWidth,
		SRID:               cfg.Sectors.SRID,
		Population:         fetcher.Source(cfg.Sources.Population),
		PopulationIDColumn: cfg.Sectors.PopulationIDColumn,
		PopulationColumn:   cfg.Sectors.PopulationColumn,
		Table:              tbl,
	}, nil
}

// CaseOptions builds the case loader options.
func CaseOptions(cfg *config.Config) (ingest.CaseOptions, error) {
	tbl, err := TableOptions(cfg.Cases.Table)
	if err != nil {
		return ingest.CaseOptions{}, eris.Wrap(err, "pipeline: cases.table")
	}
	return ingest.CaseOptions{
		DateColumn:       cfg.Cases.DateColumn,
		AgeColumn:        cfg.Cases.AgeColumn,
		SexColumn:        cfg.Cases.SexColumn,
		PregnancyColumn:  cfg.Cases.PregnancyColumn,
		RiskFactorColumn: cfg.Cases.RiskFactorColumn,
		DateFormats:      cfg.Cases.DateFormats,
		Table:            tbl,
	}, nil
}

// CoverageOptions builds the coverage loader options.
func CoverageOptions(cfg *config.Config) (ingest.CoverageOptions, error) {
	tbl, err := TableOptions(cfg.Coverage.Table)
	if err != nil {
		return ingest.CoverageOptions{}, eris.Wrap(err, "pipeline: coverage.table")
	}
	return ingest.CoverageOptions{Column: cfg.Coverage.Column, Table: tbl}, nil
}

// WeekOptions maps the incidence section onto aggregation options.
func WeekOptions(cfg config.IncidenceConfig) ingest.WeekOptions {
	return ingest.WeekOptions{
		StartSunday: strings.EqualFold(cfg.WeekStart, "sunday"),
		ZeroFill:    cfg.ZeroFill,
	}
}
