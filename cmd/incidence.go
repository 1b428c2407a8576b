package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/machado-saude/sector-priority/internal/export"
	"github.com/machado-saude/sector-priority/internal/fetcher"
	"github.com/machado-saude/sector-priority/internal/ingest"
	"github.com/machado-saude/sector-priority/internal/model"
	"github.com/machado-saude/sector-priority/internal/pipeline"
)

var incidenceCmd = &cobra.Command{
	Use:   "incidence",
	Short: "Aggregate SRAG cases into weekly counts",
	Long:  "Counts case notifications per week of symptom onset (DT_SIN_PRI) and prints the series with its mean.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applySourceFlags(cmd); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		if err := checkFormat(format, formatTable, formatCSV, formatJSON, formatYAML); err != nil {
			return err
		}
		if zeroFill, _ := cmd.Flags().GetBool("zero-fill"); cmd.Flags().Changed("zero-fill") {
			cfg.Incidence.ZeroFill = zeroFill
		}

		w, closeFn, err := openOutput(out)
		if err != nil {
			return err
		}
		if err := runIncidence(cmd.Context(), w, format); err != nil {
			_ = closeFn()
			return err
		}
		return closeFn()
	},
}

func init() {
	incidenceCmd.Flags().String("cases", "", "SRAG case table: CSV or XLSX (overrides sources.cases)")
	incidenceCmd.Flags().Bool("zero-fill", false, "emit weeks without cases as zero counts")
	incidenceCmd.Flags().StringP("format", "f", formatTable, "output format: table, csv, json, yaml")
	incidenceCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(incidenceCmd)
}

// incidenceReport is the json/yaml shape of the incidence command.
type incidenceReport struct {
	Weekly        model.WeeklySeries `json:"weekly" yaml:"weekly"`
	TotalCases    int                `json:"total_cases" yaml:"total_cases"`
	MeanIncidence *float64           `json:"mean_incidence" yaml:"mean_incidence"`
	Drops         model.DropReport   `json:"drops" yaml:"drops"`
}

func newIncidenceReport(set *ingest.CaseSet) incidenceReport {
	series := ingest.AggregateWeekly(set.Records, pipeline.WeekOptions(cfg.Incidence))
	rep := incidenceReport{Weekly: series, TotalCases: series.Total(), Drops: set.Drops}
	if len(series) > 0 {
		mean := ingest.MeanWeeklyIncidence(series)
		rep.MeanIncidence = &mean
	}
	return rep
}

func runIncidence(ctx context.Context, w io.Writer, format string) error {
	set, err := loadCases(ctx)
	if err != nil {
		return err
	}
	rep := newIncidenceReport(set)

	switch format {
	case formatCSV:
		return export.WriteWeeklyCSV(w, rep.Weekly)
	case formatJSON:
		return writeJSON(w, rep)
	case formatYAML:
		return writeYAML(w, rep)
	default:
		formatIncidence(w, rep)
		return nil
	}
}

func formatIncidence(out io.Writer, rep incidenceReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WEEK\tCASES")
	for _, wk := range rep.Weekly {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", wk.WeekStart.Format("2006-01-02"), wk.Cases)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%s in %s\n", plural(rep.TotalCases, "case"), plural(len(rep.Weekly), "week"))
	if rep.MeanIncidence != nil {
		_, _ = fmt.Fprintf(out, "mean weekly incidence %.4g\n", *rep.MeanIncidence)
	} else {
		_, _ = fmt.Fprintln(out, "mean weekly incidence undefined: no dated cases")
	}
	if rep.Drops.Total > 0 {
		_, _ = fmt.Fprintf(out, "%s dropped\n", plural(rep.Drops.Total, "row"))
	}
}

// newLoader builds a source loader from the fetch settings.
func newLoader() *ingest.Loader {
	return ingest.NewLoader(fetcher.NewOpener(pipeline.FetchOptions(cfg.Fetch)))
}

// loadCases reads the configured case table and logs dropped rows.
func loadCases(ctx context.Context) (*ingest.CaseSet, error) {
	if cfg.Sources.Cases == "" {
		return nil, eris.New("no case source: set sources.cases or pass --cases")
	}
	opts, err := pipeline.CaseOptions(cfg)
	if err != nil {
		return nil, err
	}
	set, err := newLoader().LoadCaseRecords(ctx, fetcher.Source(cfg.Sources.Cases), opts)
	if err != nil {
		return nil, eris.Wrap(err, "load cases")
	}
	if set.Drops.Total > 0 {
		zap.L().Warn("case rows dropped",
			zap.String("source", cfg.Sources.Cases),
			zap.Int("total", set.Drops.Total),
			zap.Int(string(model.ReasonInvalidDate), set.Drops.ByReason[model.ReasonInvalidDate]),
		)
	}
	return set, nil
}
