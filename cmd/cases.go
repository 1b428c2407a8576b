package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/machado-saude/sector-priority/internal/export"
	"github.com/machado-saude/sector-priority/internal/model"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Print the cleaned SRAG case table",
	Long:  "Prints the case notifications that survived date parsing, with pregnancy and risk factor codes mapped to labels.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applySourceFlags(cmd); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")
		if err := checkFormat(format, formatTable, formatCSV, formatJSON, formatYAML); err != nil {
			return err
		}

		w, closeFn, err := openOutput(out)
		if err != nil {
			return err
		}
		if err := runCases(cmd.Context(), w, format, limit); err != nil {
			_ = closeFn()
			return err
		}
		return closeFn()
	},
}

func init() {
	casesCmd.Flags().String("cases", "", "SRAG case table: CSV or XLSX (overrides sources.cases)")
	casesCmd.Flags().StringP("format", "f", formatTable, "output format: table, csv, json, yaml")
	casesCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	casesCmd.Flags().Int("limit", 0, "only print the first N cases (0 prints all)")
	rootCmd.AddCommand(casesCmd)
}

// caseView is a case record with its display labels.
type caseView struct {
	OnsetDate  string `json:"onset_date" yaml:"onset_date"`
	Age        string `json:"age" yaml:"age"`
	Sex        string `json:"sex" yaml:"sex"`
	Pregnancy  string `json:"pregnancy" yaml:"pregnancy"`
	RiskFactor string `json:"risk_factor" yaml:"risk_factor"`
}

func viewCases(records []model.CaseRecord) []caseView {
	out := make([]caseView, len(records))
	for i, c := range records {
		out[i] = caseView{
			OnsetDate:  c.OnsetDate.Format("2006-01-02"),
			Age:        c.Age,
			Sex:        c.Sex,
			Pregnancy:  c.PregnancyLabel(),
			RiskFactor: c.RiskFactorLabel(),
		}
	}
	return out
}

func runCases(ctx context.Context, w io.Writer, format string, limit int) error {
	set, err := loadCases(ctx)
	if err != nil {
		return err
	}
	records := set.Records
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	switch format {
	case formatCSV:
		return export.WriteCasesCSV(w, records)
	case formatJSON:
		return writeJSON(w, viewCases(records))
	case formatYAML:
		return writeYAML(w, viewCases(records))
	default:
		formatCases(w, viewCases(records))
		_, _ = fmt.Fprintf(w, "\n%s of %s\n", plural(len(records), "case"), plural(len(set.Records), "valid case"))
		return nil
	}
}

func formatCases(out io.Writer, cases []caseView) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ONSET\tAGE\tSEX\tPREGNANCY\tRISK_FACTOR")
	for _, c := range cases {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.OnsetDate, c.Age, c.Sex, c.Pregnancy, c.RiskFactor)
	}
	_ = w.Flush()
}
