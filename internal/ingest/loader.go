// Package ingest loads the three run sources (sector mesh, case records and
// vaccine coverage) into type-clean sets. Row-level problems are counted in a
// model.DropReport; source-level problems are returned as *SourceError.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/machado-saude/sector-priority/internal/fetcher"
)

// Loader stages sources through a fetcher.Opener and parses them.
type Loader struct {
	opener *fetcher.Opener
	log    *zap.Logger
}

// NewLoader creates a Loader. A nil opener uses fetcher defaults.
func NewLoader(opener *fetcher.Opener) *Loader {
	if opener == nil {
		opener = fetcher.NewOpener(fetcher.Options{})
	}
	return &Loader{
		opener: opener,
		log:    zap.L().With(zap.String("component", "ingest")),
	}
}

// stage resolves src to a local file, classifying failure as SourceUnavailable.
func (l *Loader) stage(ctx context.Context, src fetcher.Source) (*fetcher.Staged, error) {
	st, err := l.opener.Stage(ctx, src)
	if err != nil {
		return nil, unavailable(src.String(), err)
	}
	return st, nil
}

// readTable stages src and reads it as a table.
func (l *Loader) readTable(ctx context.Context, src fetcher.Source, opts fetcher.TableOptions) (*fetcher.Table, error) {
	st, err := l.stage(ctx, src)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	tbl, err := fetcher.ReadTable(ctx, st.Path, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, malformed(src.String(), err)
	}
	if len(tbl.Header) == 0 {
		return nil, empty(src.String(), "no header row")
	}
	return tbl, nil
}
