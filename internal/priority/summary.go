package priority

import "github.com/machado-saude/sector-priority/internal/model"

// Summary describes the score distribution of a ranking.
type Summary struct {
	Ranked    int     `json:"ranked" yaml:"ranked"`
	Unranked  int     `json:"unranked" yaml:"unranked"`
	MinScore  float64 `json:"min_score" yaml:"min_score"`
	MaxScore  float64 `json:"max_score" yaml:"max_score"`
	MeanScore float64 `json:"mean_score" yaml:"mean_score"`
	// Uniform is true when every ranked sector has the same score, so a
	// display binning the range would get a single, zero-width bin.
	Uniform bool `json:"uniform" yaml:"uniform"`
}

// Summarize computes a Summary over the output of RankSectors.
func Summarize(ranked []model.RankedSector) Summary {
	var s Summary
	var sum float64
	for _, r := range ranked {
		if !r.IsRanked() {
			s.Unranked++
			continue
		}
		v := *r.Score
		if s.Ranked == 0 || v < s.MinScore {
			s.MinScore = v
		}
		if s.Ranked == 0 || v > s.MaxScore {
			s.MaxScore = v
		}
		sum += v
		s.Ranked++
	}
	if s.Ranked > 0 {
		s.MeanScore = sum / float64(s.Ranked)
		s.Uniform = s.MinScore == s.MaxScore
	}
	return s
}
