package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/machado-saude/sector-priority/internal/fetcher"
)

// DefaultCoverageColumn holds the consolidated municipal coverage.
const DefaultCoverageColumn = "C_Vacinal"

// CoverageOptions configures LoadCoverage.
type CoverageOptions struct {
	Column string
	Table  fetcher.TableOptions
}

// LoadCoverage returns the first data row of the coverage column, in the
// source's own unit. Normalization to a fraction happens in the priority package.
func (l *Loader) LoadCoverage(ctx context.Context, src fetcher.Source, opts CoverageOptions) (float64, error) {
	if opts.Column == "" {
		opts.Column = DefaultCoverageColumn
	}

	tbl, err := l.readTable(ctx, src, opts.Table)
	if err != nil {
		return 0, err
	}

	col := tbl.Column(opts.Column)
	if col < 0 {
		return 0, malformed(src.String(), eris.Errorf("missing coverage column %q", opts.Column))
	}
	if len(tbl.Rows) == 0 {
		return 0, empty(src.String(), "no coverage rows")
	}

	row := tbl.Rows[0]
	if w := fetcher.RowWidth(row); w > len(tbl.Header) {
		return 0, malformed(src.String(),
			eris.Errorf("coverage row has %d fields but the header has %d: check the delimiter", w, len(tbl.Header)))
	}

	raw := fetcher.Cell(row, col)
	v, ok := ParseNumber(raw)
	if !ok {
		return 0, malformed(src.String(), eris.Errorf("coverage value %q is not numeric", raw))
	}

	l.log.Debug("ingest: coverage loaded", zap.String("source", src.String()), zap.Float64("value", v))
	return v, nil
}
