package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machado-saude/sector-priority/internal/config"
)

func TestTableOptions(t *testing.T) {
	opts, err := TableOptions(config.TableConfig{})
	require.NoError(t, err)
	assert.Zero(t, opts.CSV.Delimiter)

	opts, err = TableOptions(config.TableConfig{Delimiter: ";", Charset: "iso-8859-1", Sheet: "Dados"})
	require.NoError(t, err)
	assert.Equal(t, ';', opts.CSV.Delimiter)
	assert.Equal(t, "iso-8859-1", opts.CSV.Charset)
	assert.Equal(t, "Dados", opts.XLSX.SheetName)

	opts, err = TableOptions(config.TableConfig{Delimiter: "tab"})
	require.NoError(t, err)
	assert.Equal(t, '\t', opts.CSV.Delimiter)

	_, err = TableOptions(config.TableConfig{Delimiter: ";;"})
	assert.Error(t, err)
}

func TestSectorOptions(t *testing.T) {
	cfg := &config.Config{
		Sources: config.SourcesConfig{Population: "pop.xlsx"},
		Sectors: config.SectorsConfig{
			IDField:            "CD_SETOR",
			PopulationField:    "D_Pop_Risco",
			IDWidth:            15,
			SRID:               4674,
			PopulationIDColumn: "setor",
			PopulationColumn:   "pop_risco",
		},
	}
	opts, err := SectorOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "pop.xlsx", string(opts.Population))
	assert.Equal(t, 4674, opts.SRID)
	assert.Equal(t, "setor", opts.PopulationIDColumn)

	cfg.Sectors.PopulationTable.Delimiter = "ab"
	_, err = SectorOptions(cfg)
	assert.ErrorContains(t, err, "sectors.population_table")
}

func TestCaseAndCoverageOptions(t *testing.T) {
	cfg := &config.Config{
		Cases:    config.CasesConfig{DateColumn: "DT_NOTIFIC", DateFormats: []string{"02/01/2006"}},
		Coverage: config.CoverageConfig{Column: "cobertura", Table: config.TableConfig{Delimiter: ","}},
	}
	co, err := CaseOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "DT_NOTIFIC", co.DateColumn)
	assert.Equal(t, []string{"02/01/2006"}, co.DateFormats)

	cv, err := CoverageOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "cobertura", cv.Column)
	assert.Equal(t, ',', cv.Table.CSV.Delimiter)
}

func TestWeekOptions(t *testing.T) {
	assert.False(t, WeekOptions(config.IncidenceConfig{WeekStart: "monday"}).StartSunday)
	assert.True(t, WeekOptions(config.IncidenceConfig{WeekStart: "Sunday", ZeroFill: true}).StartSunday)
	assert.True(t, WeekOptions(config.IncidenceConfig{ZeroFill: true}).ZeroFill)
}

func TestFetchOptions(t *testing.T) {
	opts := FetchOptions(config.FetchConfig{TimeoutSecs: 30, MaxRetries: 2, RatePerSecond: 1.5, UserAgent: "ua", TempDir: "/tmp/x"})
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 2, opts.MaxRetries)
	assert.InDelta(t, 1.5, opts.RatePerSecond, 1e-12)
	assert.Equal(t, "ua", opts.UserAgent)
	assert.Equal(t, "/tmp/x", opts.TempDir)
}
