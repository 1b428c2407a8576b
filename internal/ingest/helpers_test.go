package ingest

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/machado-saude/sector-priority/internal/fetcher"
)

func writeFile(t *testing.T, name, content string) fetcher.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return fetcher.Source(path)
}

func createTestXLSX(t *testing.T, rows [][]string) fetcher.Source {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return fetcher.Source(path)
}

// square returns a closed clockwise ring, the shapefile orientation for outer boundaries.
func square(x0, y0, size float64) []shp.Point {
	return []shp.Point{
		{X: x0, Y: y0},
		{X: x0, Y: y0 + size},
		{X: x0 + size, Y: y0 + size},
		{X: x0 + size, Y: y0},
		{X: x0, Y: y0},
	}
}

// reverse returns the ring with opposite orientation.
func reverse(ring []shp.Point) []shp.Point {
	out := make([]shp.Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

type testShape struct {
	id    string
	pop   string
	parts [][]shp.Point
}

// createTestShapefile writes a polygon shapefile with CD_SETOR and a
// DBF-truncated D_Pop_Risc attribute. An empty pop leaves the cell blank.
func createTestShapefile(t *testing.T, dir string, shapes []testShape) string {
	t.Helper()
	path := filepath.Join(dir, "setores.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("CD_SETOR", 20),
		shp.StringField("D_Pop_Risc", 12),
	}))

	for _, s := range shapes {
		poly := shp.Polygon(*shp.NewPolyLine(s.parts))
		row := int(w.Write(&poly))
		require.NoError(t, w.WriteAttribute(row, 0, s.id))
		if s.pop != "" {
			require.NoError(t, w.WriteAttribute(row, 1, s.pop))
		}
	}
	w.Close()

	// The writer names the table "<base>dbf"; readers expect "<base>.dbf".
	base := path[:len(path)-len(".shp")]
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return path
}

// zipShapefile packs the .shp/.shx/.dbf triple under a folder, as IBGE ships meshes.
func zipShapefile(t *testing.T, shpPath string) fetcher.Source {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "malha.zip")
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)

	base := shpPath[:len(shpPath)-len(".shp")]
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		in, err := os.Open(base + ext)
		require.NoError(t, err)
		fw, err := zw.Create("MG_setores/" + filepath.Base(base) + ext)
		require.NoError(t, err)
		_, err = io.Copy(fw, in)
		require.NoError(t, err)
		require.NoError(t, in.Close())
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
	return fetcher.Source(zipPath)
}

func removeFile(path string) error {
	return os.Remove(path)
}
