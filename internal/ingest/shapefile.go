package ingest

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// readShapefile reads polygons and their DBF attributes. The .dbf must sit
// next to the .shp.
func readShapefile(path string) ([]rawFeature, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "shapefile: open")
	}
	defer r.Close() //nolint:errcheck

	fields := r.Fields()
	if len(fields) == 0 {
		return nil, eris.New("shapefile: missing or empty attribute table (.dbf)")
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimSpace(f.String())
	}

	var out []rawFeature
	for r.Next() {
		n, shape := r.Shape()
		props := make(map[string]any, len(names))
		for i, name := range names {
			props[name] = strings.Trim(r.ReadAttribute(n, i), " \x00")
		}

		rf := rawFeature{Row: n + 1, Props: props}
		g, err := shapeToGeom(shape)
		if err != nil {
			rf.GeomErr = err.Error()
		} else {
			rf.Geometry = g
		}
		out = append(out, rf)
	}
	if err := r.Err(); err != nil {
		return nil, eris.Wrap(err, "shapefile: read")
	}
	return out, nil
}

// shapeToGeom converts a shapefile polygon into a MultiPolygon. Null shapes
// yield a nil geometry.
func shapeToGeom(s shp.Shape) (geom.T, error) {
	switch p := s.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Polygon:
		return ringsToMultiPolygon(p.Parts, p.Points)
	case *shp.PolygonZ:
		return ringsToMultiPolygon(p.Parts, p.Points)
	case *shp.PolygonM:
		return ringsToMultiPolygon(p.Parts, p.Points)
	default:
		return nil, eris.Errorf("shapefile: unsupported shape %T", s)
	}
}

// ringsToMultiPolygon groups shapefile rings into polygons. Clockwise rings
// are outer boundaries; counter-clockwise rings are holes of the preceding
// outer ring.
func ringsToMultiPolygon(parts []int32, points []shp.Point) (*geom.MultiPolygon, error) {
	if len(parts) == 0 || len(points) == 0 {
		return nil, eris.New("shapefile: polygon has no rings")
	}

	var (
		flat  []float64
		endss [][]int
	)
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			return nil, eris.Errorf("shapefile: invalid ring bounds [%d,%d)", start, end)
		}
		ring := points[start:end]
		if len(ring) < 4 {
			return nil, eris.Errorf("shapefile: ring %d has %d points", i, len(ring))
		}

		for _, pt := range ring {
			flat = append(flat, pt.X, pt.Y)
		}
		if signedArea(ring) < 0 || len(endss) == 0 {
			endss = append(endss, []int{len(flat)})
		} else {
			last := len(endss) - 1
			endss[last] = append(endss[last], len(flat))
		}
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss), nil
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []shp.Point) float64 {
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return sum / 2
}
