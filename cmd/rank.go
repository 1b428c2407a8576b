package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/machado-saude/sector-priority/internal/export"
	"github.com/machado-saude/sector-priority/internal/model"
	"github.com/machado-saude/sector-priority/internal/pipeline"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Score and rank census sectors for vaccination priority",
	Long: "Loads the sector mesh, case records and vaccine coverage, computes " +
		"score = risk population x mean incidence x (1 - coverage) for each sector and " +
		"prints them by descending score. Sectors without a usable risk population are listed last, unranked.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applySourceFlags(cmd); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		top, _ := cmd.Flags().GetInt("top")
		if err := checkFormat(format, formatTable, formatCSV, formatJSON, formatYAML, formatGeoJSON); err != nil {
			return err
		}

		w, closeFn, err := openOutput(out)
		if err != nil {
			return err
		}
		if err := runRank(cmd.Context(), w, format, top); err != nil {
			_ = closeFn()
			return err
		}
		return closeFn()
	},
}

func init() {
	addSourceFlags(rankCmd)
	rankCmd.Flags().Float64("mean-incidence", 0, "mean incidence constant I (overrides priority.mean_incidence)")
	rankCmd.Flags().String("incidence-source", "", "constant or weekly_mean (overrides priority.incidence_source)")
	rankCmd.Flags().StringP("format", "f", formatTable, "output format: table, csv, json, yaml, geojson")
	rankCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	rankCmd.Flags().Int("top", 0, "only print the first N sectors (0 prints all)")
	rootCmd.AddCommand(rankCmd)
}

// addSourceFlags registers the source handle overrides shared by commands.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("sectors", "", "sector mesh: GeoJSON, shapefile or zip (overrides sources.sectors)")
	cmd.Flags().String("cases", "", "SRAG case table: CSV or XLSX (overrides sources.cases)")
	cmd.Flags().String("coverage", "", "vaccine coverage table (overrides sources.coverage)")
	cmd.Flags().String("population", "", "risk population table joined by sector ID (overrides sources.population)")
}

// applySourceFlags copies explicitly set flags over the loaded config.
func applySourceFlags(cmd *cobra.Command) error {
	for name, dest := range map[string]*string{
		"sectors":          &cfg.Sources.Sectors,
		"cases":            &cfg.Sources.Cases,
		"coverage":         &cfg.Sources.Coverage,
		"population":       &cfg.Sources.Population,
		"incidence-source": &cfg.Priority.IncidenceSource,
	} {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		*dest = f.Value.String()
	}
	if f := cmd.Flags().Lookup("mean-incidence"); f != nil && f.Changed {
		v, err := cmd.Flags().GetFloat64("mean-incidence")
		if err != nil {
			return eris.Wrap(err, "mean-incidence")
		}
		cfg.Priority.MeanIncidence = &v
	}
	return nil
}

// runRank runs the pipeline once and writes the ranking to w.
func runRank(ctx context.Context, w io.Writer, format string, top int) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	res, err := pipeline.New(cfg, nil, st, nil).Run(ctx)
	if err != nil {
		return eris.Wrap(err, "rank")
	}

	ranked := res.Ranked
	if top > 0 && top < len(ranked) {
		ranked = ranked[:top]
	}

	switch format {
	case formatCSV:
		return export.WriteRankingCSV(w, ranked)
	case formatGeoJSON:
		return export.WriteGeoJSON(w, ranked)
	case formatJSON, formatYAML:
		view := *res
		view.Ranked = ranked
		if format == formatJSON {
			return writeJSON(w, &view)
		}
		return writeYAML(w, &view)
	default:
		formatRanking(w, res, ranked)
		return nil
	}
}

// formatRanking writes the ranked table followed by a short run summary.
func formatRanking(out io.Writer, res *pipeline.Result, ranked []model.RankedSector) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(w, "RANK\tSECTOR\tRISK_POP\tSCORE\t")
	for _, r := range ranked {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			cellInt(r.Rank),
			r.ID,
			cellFloat(r.RiskPopulation, 0),
			cellFloat(r.Score, 2),
		)
	}
	_ = w.Flush()

	s := res.Summary
	_, _ = fmt.Fprintf(out, "\n%s ranked, %s unranked\n", plural(s.Ranked, "sector"), plural(s.Unranked, "sector"))
	_, _ = fmt.Fprintf(out, "mean incidence %.4g (%s), coverage %.1f%%\n",
		res.MeanIncidence, res.IncidenceSource, res.CoveragePercent())
	if s.Ranked > 0 {
		_, _ = fmt.Fprintf(out, "scores %.2f to %.2f, mean %.2f\n", s.MinScore, s.MaxScore, s.MeanScore)
	}
	if s.Uniform && s.Ranked > 1 {
		_, _ = fmt.Fprintln(out, "every ranked sector has the same score")
	}
	if n := res.Dropped(); n > 0 {
		_, _ = fmt.Fprintf(out, "%s dropped during ingestion\n", plural(n, "row"))
	}
	if res.RunID != "" {
		_, _ = fmt.Fprintf(out, "run %s\n", res.RunID)
	}
}
