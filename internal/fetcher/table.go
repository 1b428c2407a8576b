package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a header row plus data rows read from a CSV or XLSX source.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the first header matching any of names,
// case-insensitively, or -1.
func (t *Table) Column(names ...string) int {
	for _, name := range names {
		name = strings.TrimSpace(name)
		for i, h := range t.Header {
			if strings.EqualFold(h, name) {
				return i
			}
		}
	}
	return -1
}

// Cell returns row[i] trimmed, or "" when the row is short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// RowWidth is the number of cells up to the last non-blank one.
func RowWidth(row []string) int {
	for i := len(row) - 1; i >= 0; i-- {
		if strings.TrimSpace(row[i]) != "" {
			return i + 1
		}
	}
	return 0
}

// TableOptions configures ReadTable.
type TableOptions struct {
	CSV  CSVOptions
	XLSX XLSXOptions
}

// ReadTable reads a staged file as a table, choosing the parser by extension:
// .xlsx uses the XLSX reader, anything else is treated as delimited text.
func ReadTable(ctx context.Context, path string, opts TableOptions) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSX(path, opts.XLSX)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return ReadCSV(ctx, f, opts.CSV)
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
