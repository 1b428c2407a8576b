package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func float(v float64) *float64 { return &v }

func validConfig() *Config {
	return &Config{
		Sources:   SourcesConfig{Sectors: "setores.geojson", Cases: "srag.csv", Coverage: "cobertura.csv"},
		Sectors:   SectorsConfig{IDWidth: 15},
		Coverage:  CoverageConfig{Unit: "percent"},
		Incidence: IncidenceConfig{WeekStart: "monday"},
		Priority:  PriorityConfig{MeanIncidence: float(2.0), IncidenceSource: IncidenceConstant},
		Store:     StoreConfig{Driver: "sqlite"},
		Server:    ServerConfig{Port: 8080},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "CD_SETOR", cfg.Sectors.IDField)
	assert.Equal(t, "D_Pop_Risco", cfg.Sectors.PopulationField)
	assert.Equal(t, 15, cfg.Sectors.IDWidth)
	assert.Equal(t, 4326, cfg.Sectors.SRID)
	assert.Equal(t, "DT_SIN_PRI", cfg.Cases.DateColumn)
	assert.Equal(t, "FATOR_RISC", cfg.Cases.RiskFactorColumn)
	assert.Equal(t, "C_Vacinal", cfg.Coverage.Column)
	assert.Equal(t, "percent", cfg.Coverage.Unit)
	assert.Equal(t, "monday", cfg.Incidence.WeekStart)
	assert.False(t, cfg.Incidence.ZeroFill)
	assert.Equal(t, IncidenceConstant, cfg.Priority.IncidenceSource)
	assert.Nil(t, cfg.Priority.MeanIncidence, "mean incidence has no default")
	assert.Equal(t, 60, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.InDelta(t, 5.0, cfg.Fetch.RatePerSecond, 0.001)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
sources:
  sectors: dados/machado_setores.geojson
  cases: ftp://ftp.datasus.gov.br/srag/INFLUD24.csv
  coverage: dados/cobertura.csv
cases:
  table:
    delimiter: ";"
    charset: iso-8859-1
coverage:
  unit: fraction
incidence:
  week_start: sunday
  zero_fill: true
priority:
  mean_incidence: 2.5
store:
  driver: postgres
  database_url: postgres://localhost/priority
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dados/machado_setores.geojson", cfg.Sources.Sectors)
	assert.Equal(t, "ftp://ftp.datasus.gov.br/srag/INFLUD24.csv", cfg.Sources.Cases)
	assert.Equal(t, ";", cfg.Cases.Table.Delimiter)
	assert.Equal(t, "iso-8859-1", cfg.Cases.Table.Charset)
	assert.Equal(t, "fraction", cfg.Coverage.Unit)
	assert.Equal(t, "sunday", cfg.Incidence.WeekStart)
	assert.True(t, cfg.Incidence.ZeroFill)
	require.NotNil(t, cfg.Priority.MeanIncidence)
	assert.InDelta(t, 2.5, *cfg.Priority.MeanIncidence, 1e-9)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, "C_Vacinal", cfg.Coverage.Column)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("PRIORITY_STORE_DRIVER", "sqlite")
	t.Setenv("PRIORITY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvWithoutDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PRIORITY_SOURCES_SECTORS", "/data/setores.shp")
	t.Setenv("PRIORITY_PRIORITY_MEAN_INCIDENCE", "1.75")
	t.Setenv("PRIORITY_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/setores.shp", cfg.Sources.Sectors)
	require.NotNil(t, cfg.Priority.MeanIncidence)
	assert.InDelta(t, 1.75, *cfg.Priority.MeanIncidence, 1e-9)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("sources: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing sectors", func(c *Config) { c.Sources.Sectors = "" }, "sources.sectors is required"},
		{"missing coverage", func(c *Config) { c.Sources.Coverage = " " }, "sources.coverage is required"},
		{"missing mean incidence", func(c *Config) { c.Priority.MeanIncidence = nil }, "priority.mean_incidence is required"},
		{"weekly mean needs no constant", func(c *Config) {
			c.Priority.MeanIncidence = nil
			c.Priority.IncidenceSource = IncidenceWeeklyMean
		}, ""},
		{"weekly mean needs cases", func(c *Config) {
			c.Priority.IncidenceSource = IncidenceWeeklyMean
			c.Sources.Cases = ""
		}, "sources.cases is required"},
		{"unknown incidence source", func(c *Config) { c.Priority.IncidenceSource = "median" }, "incidence_source"},
		{"negative mean incidence", func(c *Config) { c.Priority.MeanIncidence = float(-1) }, "finite number >= 0"},
		{"bad unit", func(c *Config) { c.Coverage.Unit = "ratio" }, "coverage.unit"},
		{"bad week start", func(c *Config) { c.Incidence.WeekStart = "friday" }, "incidence.week_start"},
		{"bad delimiter", func(c *Config) { c.Cases.Table.Delimiter = ";;" }, "cases.table.delimiter"},
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres needs url", func(c *Config) { c.Store.Driver = "postgres" }, "store.database_url"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Sources.Sectors = ""
	cfg.Priority.MeanIncidence = nil
	cfg.Coverage.Unit = "ratio"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources.sectors")
	assert.Contains(t, err.Error(), "priority.mean_incidence")
	assert.Contains(t, err.Error(), "coverage.unit")
}

func TestValidateShape_IgnoresSources(t *testing.T) {
	cfg := validConfig()
	cfg.Sources = SourcesConfig{}
	cfg.Priority.MeanIncidence = nil
	assert.NoError(t, cfg.ValidateShape())

	cfg.Store.Driver = "mysql"
	assert.Error(t, cfg.ValidateShape())
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", 0, false},
		{";", ';', false},
		{",", ',', false},
		{"tab", '\t', false},
		{`\t`, '\t', false},
		{"|", '|', false},
		{";;", 0, true},
		{`"`, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDelimiter(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "verbose"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
