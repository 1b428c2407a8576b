package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/machado-saude/sector-priority/internal/fetcher"
	"github.com/machado-saude/sector-priority/internal/pipeline"
	"github.com/machado-saude/sector-priority/internal/priority"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Read and normalize the vaccine coverage value",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applySourceFlags(cmd); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format, formatTable, formatJSON, formatYAML); err != nil {
			return err
		}
		if unit, _ := cmd.Flags().GetString("unit"); unit != "" {
			cfg.Coverage.Unit = unit
		}
		return runCoverage(cmd.Context(), cmd.OutOrStdout(), format)
	},
}

func init() {
	coverageCmd.Flags().String("coverage", "", "vaccine coverage table (overrides sources.coverage)")
	coverageCmd.Flags().String("unit", "", "percent or fraction (overrides coverage.unit)")
	coverageCmd.Flags().StringP("format", "f", formatTable, "output format: table, json, yaml")
	rootCmd.AddCommand(coverageCmd)
}

// coverageReport is the coverage value on every scale it is displayed in.
type coverageReport struct {
	Raw      float64       `json:"raw" yaml:"raw"`
	Unit     priority.Unit `json:"unit" yaml:"unit"`
	Fraction float64       `json:"fraction" yaml:"fraction"`
	Percent  float64       `json:"percent" yaml:"percent"`
}

func loadCoverage(ctx context.Context) (coverageReport, error) {
	if cfg.Sources.Coverage == "" {
		return coverageReport{}, eris.New("no coverage source: set sources.coverage or pass --coverage")
	}
	unit, err := priority.ParseUnit(cfg.Coverage.Unit)
	if err != nil {
		return coverageReport{}, err
	}
	opts, err := pipeline.CoverageOptions(cfg)
	if err != nil {
		return coverageReport{}, err
	}
	raw, err := newLoader().LoadCoverage(ctx, fetcher.Source(cfg.Sources.Coverage), opts)
	if err != nil {
		return coverageReport{}, eris.Wrap(err, "load coverage")
	}
	frac, err := priority.NormalizeCoverage(raw, unit)
	if err != nil {
		return coverageReport{}, eris.Wrapf(err, "coverage %v", raw)
	}
	return coverageReport{Raw: raw, Unit: unit, Fraction: frac, Percent: frac * 100}, nil
}

func runCoverage(ctx context.Context, w io.Writer, format string) error {
	rep, err := loadCoverage(ctx)
	if err != nil {
		return err
	}
	switch format {
	case formatJSON:
		return writeJSON(w, rep)
	case formatYAML:
		return writeYAML(w, rep)
	default:
		_, _ = fmt.Fprintf(w, "coverage %.1f%% (fraction %.4f, read %v as %s)\n", rep.Percent, rep.Fraction, rep.Raw, rep.Unit)
		return nil
	}
}
