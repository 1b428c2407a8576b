package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/machado-saude/sector-priority/internal/model"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func polygon() *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8})
}

func sampleRanking() []model.RankedSector {
	return []model.RankedSector{
		{ID: "310620005000002", RiskPopulation: fptr(200), Score: fptr(280), Rank: iptr(1), Geometry: polygon()},
		{ID: "310620005000001", RiskPopulation: fptr(87.5), Score: fptr(122.5), Rank: iptr(2), Geometry: polygon()},
		{ID: "310620005000003", Geometry: polygon()},
	}
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, sampleRanking()))

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fc))
	require.Len(t, fc.Features, 3)

	first := fc.Features[0]
	assert.Equal(t, "310620005000002", first.ID)
	assert.Equal(t, "310620005000002", first.Properties[PropSectorID])
	assert.InDelta(t, 280.0, first.Properties[PropScore], 1e-9)
	assert.InDelta(t, 1.0, first.Properties[PropRank], 1e-9)
	assert.IsType(t, &geom.Polygon{}, first.Geometry)

	last := fc.Features[2]
	for _, prop := range []string{PropRiskPopulation, PropScore, PropRank} {
		v, ok := last.Properties[prop]
		assert.True(t, ok, "%s present", prop)
		assert.Nil(t, v, "%s is null", prop)
	}
}

func TestWriteGeoJSON_NullsAreLiteral(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, []model.RankedSector{{ID: "001"}}))

	var raw struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry   json.RawMessage            `json:"geometry"`
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, "FeatureCollection", raw.Type)
	require.Len(t, raw.Features, 1)
	assert.Equal(t, "null", string(raw.Features[0].Properties[PropScore]))
	assert.Equal(t, "null", string(raw.Features[0].Properties[PropRank]))
	assert.Equal(t, "null", string(raw.Features[0].Geometry))
}

func TestWriteGeoJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, nil))
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, buf.String())
}

func TestWriteRankingCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRankingCSV(&buf, sampleRanking()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"CD_SETOR", "D_Pop_Risco", "Pontuacao_Prioridade", "Ranking"}, rows[0])
	assert.Equal(t, []string{"310620005000002", "200", "280", "1"}, rows[1])
	assert.Equal(t, []string{"310620005000001", "87.5", "122.5", "2"}, rows[2])
	assert.Equal(t, []string{"310620005000003", "", "", ""}, rows[3])
}

func TestWriteWeeklyCSV(t *testing.T) {
	series := model.WeeklySeries{
		{WeekStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Cases: 2},
		{WeekStart: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), Cases: 1},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteWeeklyCSV(&buf, series))
	assert.Equal(t, "Data_Semanal,Casos\n2024-01-01,2\n2024-01-08,1\n", buf.String())
}

func TestWriteCasesCSV(t *testing.T) {
	records := []model.CaseRecord{
		{OnsetDate: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Age: "34", Sex: "F", Pregnancy: "1.0", RiskFactor: "1"},
		{OnsetDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Age: "61", Sex: "M", Pregnancy: "6", RiskFactor: "2"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCasesCSV(&buf, records))
	assert.Equal(t,
		"DT_SIN_PRI,NU_IDADE_N,CS_SEXO,Gestante,Fator_Risco\n"+
			"2024-01-03,34,F,Sim,Sim\n"+
			"2024-01-10,61,M,Ignorado,Não\n",
		buf.String())
}
