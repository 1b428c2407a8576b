package priority

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/machado-saude/sector-priority/internal/model"
)

// RankSectors scores every resolved sector and orders the result by score
// descending, breaking ties by ascending sector ID. Ranks are the 1-based
// positions in that order. Unresolved sectors follow the ranked ones, ordered
// by ID, with nil score and rank.
//
// The output depends only on the set of inputs, not on their order.
func RankSectors(sectors []model.Sector, meanIncidence, coverage float64) ([]model.RankedSector, error) {
	if err := validateConstants(meanIncidence, coverage); err != nil {
		return nil, err
	}

	ranked := make([]model.RankedSector, 0, len(sectors))
	var unranked []model.RankedSector

	for _, s := range sectors {
		if !s.Resolved {
			unranked = append(unranked, model.RankedSector{ID: s.ID, Geometry: s.Geometry})
			continue
		}

		score, err := ComputeScore(s.RiskPopulation, meanIncidence, coverage)
		if err != nil {
			return nil, eris.Wrapf(err, "priority: score sector %s", s.ID)
		}

		pop := s.RiskPopulation
		ranked = append(ranked, model.RankedSector{
			ID:             s.ID,
			RiskPopulation: &pop,
			Score:          &score,
			Geometry:       s.Geometry,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if *a.Score != *b.Score {
			return *a.Score > *b.Score
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return *a.RiskPopulation > *b.RiskPopulation
	})
	for i := range ranked {
		rank := i + 1
		ranked[i].Rank = &rank
	}

	sort.SliceStable(unranked, func(i, j int) bool { return unranked[i].ID < unranked[j].ID })

	return append(ranked, unranked...), nil
}
