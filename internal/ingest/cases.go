package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/machado-saude/sector-priority/internal/fetcher"
	"github.com/machado-saude/sector-priority/internal/model"
)

// SIVEP-Gripe column names.
const (
	DefaultDateColumn       = "DT_SIN_PRI"
	DefaultAgeColumn        = "NU_IDADE_N"
	DefaultSexColumn        = "CS_SEXO"
	DefaultPregnancyColumn  = "CS_GESTANT"
	DefaultRiskFactorColumn = "FATOR_RISC"
)

// DefaultDateFormats are tried in order when parsing onset dates.
var DefaultDateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
}

// CaseOptions configures LoadCaseRecords.
type CaseOptions struct {
	DateColumn       string
	AgeColumn        string
	SexColumn        string
	PregnancyColumn  string
	RiskFactorColumn string
	DateFormats      []string
	Table            fetcher.TableOptions
}

func (o CaseOptions) withDefaults() CaseOptions {
	if o.DateColumn == "" {
		o.DateColumn = DefaultDateColumn
	}
	if o.AgeColumn == "" {
		o.AgeColumn = DefaultAgeColumn
	}
	if o.SexColumn == "" {
		o.SexColumn = DefaultSexColumn
	}
	if o.PregnancyColumn == "" {
		o.PregnancyColumn = DefaultPregnancyColumn
	}
	if o.RiskFactorColumn == "" {
		o.RiskFactorColumn = DefaultRiskFactorColumn
	}
	if len(o.DateFormats) == 0 {
		o.DateFormats = DefaultDateFormats
	}
	return o
}

// CaseSet is the clean result of loading case records.
type CaseSet struct {
	Records []model.CaseRecord
	Drops   model.DropReport
}

// LoadCaseRecords reads SRAG case notifications. Rows whose onset date is
// blank or unparseable are dropped and counted. The demographic columns are
// optional.
func (l *Loader) LoadCaseRecords(ctx context.Context, src fetcher.Source, opts CaseOptions) (*CaseSet, error) {
	opts = opts.withDefaults()

	tbl, err := l.readTable(ctx, src, opts.Table)
	if err != nil {
		return nil, err
	}

	dateCol := tbl.Column(opts.DateColumn)
	if dateCol < 0 {
		return nil, malformed(src.String(), eris.Errorf("missing date column %q", opts.DateColumn))
	}
	if len(tbl.Rows) == 0 {
		return nil, empty(src.String(), "no case rows")
	}

	ageCol := tbl.Column(opts.AgeColumn)
	sexCol := tbl.Column(opts.SexColumn)
	pregCol := tbl.Column(opts.PregnancyColumn)
	riskCol := tbl.Column(opts.RiskFactorColumn)

	set := &CaseSet{Records: make([]model.CaseRecord, 0, len(tbl.Rows))}
	for i, row := range tbl.Rows {
		rowNum := i + 1
		raw := fetcher.Cell(row, dateCol)
		onset, ok := ParseDate(raw, opts.DateFormats)
		if !ok {
			detail := "blank onset date"
			if raw != "" {
				detail = fmt.Sprintf("unparseable onset date %q", raw)
			}
			set.Drops.Add(model.Rejection{Row: rowNum, Reason: model.ReasonInvalidDate, Detail: detail})
			continue
		}

		set.Records = append(set.Records, model.CaseRecord{
			Row:        rowNum,
			OnsetDate:  onset,
			Age:        fetcher.Cell(row, ageCol),
			Sex:        fetcher.Cell(row, sexCol),
			Pregnancy:  fetcher.Cell(row, pregCol),
			RiskFactor: fetcher.Cell(row, riskCol),
		})
	}

	l.log.Debug("ingest: case records loaded",
		zap.String("source", src.String()),
		zap.Int("rows", len(tbl.Rows)),
		zap.Int("records", len(set.Records)),
		zap.Int("dropped", set.Drops.Total),
	)
	return set, nil
}

// ParseDate tries each layout in order and returns the calendar date in UTC.
func ParseDate(raw string, layouts []string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
