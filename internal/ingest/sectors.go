package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/machado-saude/sector-priority/internal/fetcher"
	"github.com/machado-saude/sector-priority/internal/model"
)

// Default sector attribute names.
const (
	DefaultIDField         = "CD_SETOR"
	DefaultPopulationField = "D_Pop_Risco"
	DefaultSRID            = 4326
)

// SectorOptions configures LoadSectors.
type SectorOptions struct {
	IDField         string
	PopulationField string
	IDWidth         int
	SRID            int

	// Population is an optional CSV/XLSX table joined by canonical sector id.
	// Its values override the mesh attribute when present.
	Population         fetcher.Source
	PopulationIDColumn string
	PopulationColumn   string
	Table              fetcher.TableOptions
}

func (o SectorOptions) withDefaults() SectorOptions {
	if o.IDField == "" {
		o.IDField = DefaultIDField
	}
	if o.PopulationField == "" {
		o.PopulationField = DefaultPopulationField
	}
	if o.IDWidth == 0 {
		o.IDWidth = DefaultIDWidth
	}
	if o.SRID == 0 {
		o.SRID = DefaultSRID
	}
	if o.PopulationIDColumn == "" {
		o.PopulationIDColumn = o.IDField
	}
	if o.PopulationColumn == "" {
		o.PopulationColumn = o.PopulationField
	}
	return o
}

// SectorSet is the clean result of loading a sector mesh.
type SectorSet struct {
	Sectors []model.Sector
	Drops   model.DropReport
}

// Resolved counts sectors with a usable risk population.
func (s *SectorSet) Resolved() int {
	n := 0
	for _, sec := range s.Sectors {
		if sec.Resolved {
			n++
		}
	}
	return n
}

// rawFeature is one decoded feature before normalization.
type rawFeature struct {
	Row      int
	ID       any
	Props    map[string]any
	Geometry geom.T
	GeomErr  string
}

// LoadSectors reads a sector mesh (.geojson, .json, .shp or a .zip holding a
// shapefile). Features without an identifier, duplicates and features whose
// geometry cannot be decoded are dropped. A null geometry is kept as nil, and
// sectors whose risk population cannot be resolved are kept with Resolved=false.
func (l *Loader) LoadSectors(ctx context.Context, src fetcher.Source, opts SectorOptions) (*SectorSet, error) {
	opts = opts.withDefaults()

	st, err := l.stage(ctx, src)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	features, err := l.readFeatures(st)
	if err != nil {
		return nil, malformed(src.String(), err)
	}
	if len(features) == 0 {
		return nil, empty(src.String(), "no features")
	}

	var override map[string]string
	if opts.Population != "" {
		override, err = l.loadPopulationTable(ctx, opts)
		if err != nil {
			return nil, err
		}
	}

	set := buildSectors(features, opts, override)
	if len(set.Sectors) == 0 {
		return nil, empty(src.String(), "no feature carries a usable identifier")
	}

	l.log.Debug("ingest: sectors loaded",
		zap.String("source", src.String()),
		zap.Int("features", len(features)),
		zap.Int("sectors", len(set.Sectors)),
		zap.Int("resolved", set.Resolved()),
		zap.Int("dropped", set.Drops.Total),
	)
	return set, nil
}

func (l *Loader) readFeatures(st *fetcher.Staged) ([]rawFeature, error) {
	switch st.Ext {
	case ".geojson", ".json":
		return readGeoJSON(st.Path)
	case ".shp":
		return readShapefile(st.Path)
	case ".zip":
		dir, err := os.MkdirTemp("", "sectors-*")
		if err != nil {
			return nil, eris.Wrap(err, "sectors: create extract dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		if _, err := fetcher.ExtractZIP(st.Path, dir); err != nil {
			return nil, err
		}
		shpPath, err := fetcher.FindByExt(dir, ".shp")
		if err != nil {
			return nil, err
		}
		return readShapefile(shpPath)
	default:
		return nil, eris.Errorf("sectors: unsupported format %q", st.Ext)
	}
}

// buildSectors normalizes decoded features. The first occurrence of an id wins.
func buildSectors(features []rawFeature, opts SectorOptions, override map[string]string) *SectorSet {
	set := &SectorSet{Sectors: make([]model.Sector, 0, len(features))}
	seen := make(map[string]int, len(features))

	for _, f := range features {
		raw, ok := lookup(f.Props, opts.IDField)
		if !ok || idString(raw) == "" {
			raw = f.ID
		}
		id := CanonicalID(idString(raw), opts.IDWidth)
		if id == "" {
			set.Drops.Add(model.Rejection{Row: f.Row, Reason: model.ReasonMissingID, Detail: opts.IDField + " is empty"})
			continue
		}
		if first, dup := seen[id]; dup {
			set.Drops.Add(model.Rejection{Row: f.Row, Reason: model.ReasonDuplicateID, Detail: fmt.Sprintf("%s first seen at feature %d", id, first)})
			continue
		}
		if f.GeomErr != "" {
			set.Drops.Add(model.Rejection{Row: f.Row, Reason: model.ReasonInvalidGeometry, Detail: id + ": " + f.GeomErr})
			continue
		}
		seen[id] = f.Row

		var popRaw any
		if v, ok := override[id]; ok {
			popRaw = v
		} else {
			popRaw, _ = lookup(f.Props, opts.PopulationField)
		}
		value, issue := population(popRaw)

		// a null geometry is kept: the sector is ranked but has no map shape
		sec := model.Sector{ID: id, Geometry: withSRID(f.Geometry, opts.SRID)}
		if issue == "" {
			sec.RiskPopulation = value
			sec.Resolved = true
		} else {
			sec.Issue = opts.PopulationField + " " + issue
		}
		set.Sectors = append(set.Sectors, sec)
	}
	return set
}

func (l *Loader) loadPopulationTable(ctx context.Context, opts SectorOptions) (map[string]string, error) {
	tbl, err := l.readTable(ctx, opts.Population, opts.Table)
	if err != nil {
		return nil, err
	}
	idCol := tbl.Column(opts.PopulationIDColumn)
	popCol := tbl.Column(opts.PopulationColumn)
	if idCol < 0 || popCol < 0 {
		return nil, malformed(opts.Population.String(),
			eris.Errorf("population table needs columns %q and %q", opts.PopulationIDColumn, opts.PopulationColumn))
	}

	out := make(map[string]string, len(tbl.Rows))
	for _, row := range tbl.Rows {
		id := CanonicalID(fetcher.Cell(row, idCol), opts.IDWidth)
		if id == "" {
			continue
		}
		if _, dup := out[id]; !dup {
			out[id] = fetcher.Cell(row, popCol)
		}
	}
	return out, nil
}

// dbfNameLen is the longest field name a DBF header stores.
const dbfNameLen = 10

// lookup finds a property by name, falling back to a case-insensitive match
// and then to the name truncated the way DBF writers do ("D_Pop_Risco" is
// stored as "D_Pop_Risc").
func lookup(props map[string]any, name string) (any, bool) {
	if v, ok := props[name]; ok {
		return v, true
	}
	for k, v := range props {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	if len(name) > dbfNameLen {
		return lookup(props, name[:dbfNameLen])
	}
	return nil, false
}

func withSRID(g geom.T, srid int) geom.T {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.SetSRID(srid)
	case *geom.MultiPolygon:
		return t.SetSRID(srid)
	}
	return g
}
