package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/machado-saude/sector-priority/internal/config"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const squareGeometry = `{"type":"Polygon","coordinates":[[[-46.5,-21.6],[-46.4,-21.6],[-46.4,-21.5],[-46.5,-21.5],[-46.5,-21.6]]]}`

func sectorFeature(id, pop string) string {
	return `{"type":"Feature","properties":{"CD_SETOR":"` + id + `","D_Pop_Risco":` + pop + `},"geometry":` + squareGeometry + `}`
}

func featureCollection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + "]}"
}

// useTestConfig points the global config at fresh fixtures for the duration
// of the test: sectors 001 (pop 200), 002 (pop 100) and 003 (pop unknown),
// three dated cases in two weeks plus one undated, and 30% coverage.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	sectors := writeFixture(t, dir, "setores.geojson", featureCollection(
		sectorFeature("002", "100"),
		sectorFeature("003", "null"),
		sectorFeature("001", "200"),
	))
	cases := writeFixture(t, dir, "casos.csv",
		"DT_SIN_PRI;NU_IDADE_N;CS_SEXO;CS_GESTANT;FATOR_RISC\n"+
			"2024-01-01;34;F;1;1\n"+
			"2024-01-03;61;M;6;2\n"+
			"2024-01-10;8;F;5;1\n"+
			";40;M;6;2\n")
	coverage := writeFixture(t, dir, "cobertura.csv", "C_Vacinal\n30\n")

	mean := 2.0
	c := &config.Config{
		Sources:   config.SourcesConfig{Sectors: sectors, Cases: cases, Coverage: coverage},
		Sectors:   config.SectorsConfig{IDField: "CD_SETOR", PopulationField: "D_Pop_Risco", IDWidth: 3, SRID: 4326},
		Cases:     config.CasesConfig{DateColumn: "DT_SIN_PRI"},
		Coverage:  config.CoverageConfig{Column: "C_Vacinal", Unit: "percent"},
		Incidence: config.IncidenceConfig{WeekStart: "monday"},
		Priority:  config.PriorityConfig{MeanIncidence: &mean, IncidenceSource: config.IncidenceConstant},
		Store:     config.StoreConfig{Driver: "none"},
		Server:    config.ServerConfig{Port: 8080},
		Log:       config.LogConfig{Level: "info"},
	}

	old := cfg
	cfg = c
	t.Cleanup(func() { cfg = old })
	return c
}

// useSQLiteStore switches the test config to a temporary SQLite store.
func useSQLiteStore(t *testing.T, c *config.Config) {
	t.Helper()
	c.Store = config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "runs.db")}
}
