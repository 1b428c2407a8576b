package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/machado-saude/sector-priority/internal/model"
)

// encodeGeometry returns the EWKB form of g, which PostGIS reads with
// ST_GeomFromEWKB. A nil geometry encodes as nil.
func encodeGeometry(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	b, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode geometry")
	}
	return b, nil
}

func decodeGeometry(b []byte) (geom.T, error) {
	if len(b) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode geometry")
	}
	return g, nil
}

// sectorRow flattens a ranked sector into run_sectors column order.
func sectorRow(runID string, position int, r model.RankedSector) ([]any, error) {
	g, err := encodeGeometry(r.Geometry)
	if err != nil {
		return nil, eris.Wrapf(err, "store: sector %s", r.ID)
	}
	return []any{runID, position, r.ID, r.RiskPopulation, r.Score, r.Rank, g}, nil
}

var sectorColumns = []string{"run_id", "position", "sector_id", "risk_population", "score", "sector_rank", "geom"}
