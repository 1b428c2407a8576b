package ingest

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

type featureCollection struct {
	Type     string        `json:"type"`
	Features []featureJSON `json:"features"`
}

type featureJSON struct {
	ID         any             `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// readGeoJSON decodes a FeatureCollection. Numbers are kept as json.Number so
// long sector codes survive without float rounding.
func readGeoJSON(path string) ([]rawFeature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "geojson: open")
	}
	defer f.Close() //nolint:errcheck

	dec := json.NewDecoder(f)
	dec.UseNumber()

	var fc featureCollection
	if err := dec.Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "geojson: decode")
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("geojson: expected FeatureCollection, got %q", fc.Type)
	}

	out := make([]rawFeature, 0, len(fc.Features))
	for i, ft := range fc.Features {
		rf := rawFeature{Row: i + 1, ID: ft.ID, Props: ft.Properties}
		if rf.Props == nil {
			rf.Props = map[string]any{}
		}

		raw := bytes.TrimSpace(ft.Geometry)
		if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			var g geom.T
			if err := geojson.Unmarshal(raw, &g); err != nil {
				rf.GeomErr = err.Error()
			} else {
				rf.Geometry = g
			}
		}
		out = append(out, rf)
	}
	return out, nil
}
