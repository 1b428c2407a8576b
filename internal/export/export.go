// Package export writes prioritization results in the formats the map and
// table consumers read: GeoJSON feature collections and CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/machado-saude/sector-priority/internal/model"
)

// Output property and column names read by the map tooltip.
const (
	PropSectorID       = "CD_SETOR"
	PropRiskPopulation = "D_Pop_Risco"
	PropScore          = "Pontuacao_Prioridade"
	PropRank           = "Ranking"
)

var rankingColumns = []string{PropSectorID, PropRiskPopulation, PropScore, PropRank}

// FeatureCollection builds a GeoJSON feature collection of the ranked
// sectors. Unranked sectors carry null score, rank and population.
func FeatureCollection(ranked []model.RankedSector) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(ranked))}
	for _, r := range ranked {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.ID,
			Geometry: r.Geometry,
			Properties: map[string]any{
				PropSectorID:       r.ID,
				PropRiskPopulation: floatOrNil(r.RiskPopulation),
				PropScore:          floatOrNil(r.Score),
				PropRank:           intOrNil(r.Rank),
			},
		})
	}
	return fc
}

// WriteGeoJSON writes the ranked sectors as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, ranked []model.RankedSector) error {
	data, err := json.Marshal(FeatureCollection(ranked))
	if err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}

// WriteRankingCSV writes one row per sector in ranking order. Unavailable
// values are left empty.
func WriteRankingCSV(w io.Writer, ranked []model.RankedSector) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rankingColumns); err != nil {
		return eris.Wrap(err, "export: write ranking header")
	}
	for _, r := range ranked {
		row := []string{r.ID, formatFloat(r.RiskPopulation), formatFloat(r.Score), formatInt(r.Rank)}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write ranking row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush ranking")
}

// WriteWeeklyCSV writes the incidence curve as Data_Semanal,Casos.
func WriteWeeklyCSV(w io.Writer, series model.WeeklySeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Data_Semanal", "Casos"}); err != nil {
		return eris.Wrap(err, "export: write weekly header")
	}
	for _, wk := range series {
		if err := cw.Write([]string{wk.WeekStart.Format("2006-01-02"), strconv.Itoa(wk.Cases)}); err != nil {
			return eris.Wrap(err, "export: write weekly row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush weekly")
}

// WriteCasesCSV writes case records with display labels for the coded
// pregnancy and risk factor columns.
func WriteCasesCSV(w io.Writer, records []model.CaseRecord) error {
	cw := csv.NewWriter(w)
	header := []string{"DT_SIN_PRI", "NU_IDADE_N", "CS_SEXO", "Gestante", "Fator_Risco"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write cases header")
	}
	for _, c := range records {
		row := []string{c.OnsetDate.Format("2006-01-02"), c.Age, c.Sex, c.PregnancyLabel(), c.RiskFactorLabel()}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write cases row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush cases")
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
