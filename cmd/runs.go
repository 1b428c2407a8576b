package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/machado-saude/sector-priority/internal/export"
	"github.com/machado-saude/sector-priority/internal/model"
	"github.com/machado-saude/sector-priority/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect prioritization run history",
	Long:  "Commands for listing runs and viewing the ranking a run produced.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prioritization runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
			Offset: offset,
		}
		return listRuns(cmd.Context(), cmd.OutOrStdout(), filter)
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a run; the latest complete run when no ID is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format, formatJSON, formatYAML); err != nil {
			return err
		}
		var id string
		if len(args) == 1 {
			id = args[0]
		}
		return showRun(cmd.Context(), cmd.OutOrStdout(), id, format)
	},
}

// -- runs sectors --

var runsSectorsCmd = &cobra.Command{
	Use:   "sectors <run-id>",
	Short: "Print the ranking stored for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format, formatTable, formatCSV, formatJSON, formatGeoJSON); err != nil {
			return err
		}
		return runSectors(cmd.Context(), cmd.OutOrStdout(), args[0], format)
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "skip this many runs")

	runsShowCmd.Flags().StringP("format", "f", formatJSON, "output format: json, yaml")
	runsSectorsCmd.Flags().StringP("format", "f", formatTable, "output format: table, csv, json, geojson")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsSectorsCmd)
	rootCmd.AddCommand(runsCmd)
}

func listRuns(ctx context.Context, w io.Writer, filter store.RunFilter) error {
	st, err := requireStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(ctx, filter)
	if err != nil {
		return eris.Wrap(err, "runs list")
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs found.")
		return nil
	}
	formatRunsList(w, runs)
	return nil
}

func showRun(ctx context.Context, w io.Writer, id, format string) error {
	st, err := requireStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	var run *model.Run
	if id == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.GetRun(ctx, id)
	}
	if err != nil {
		return eris.Wrap(err, "runs show")
	}
	if format == formatYAML {
		return writeYAML(w, run)
	}
	return writeJSON(w, run)
}

func runSectors(ctx context.Context, w io.Writer, id, format string) error {
	st, err := requireStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	sectors, err := st.RunSectors(ctx, id)
	if err != nil {
		return eris.Wrap(err, "runs sectors")
	}

	switch format {
	case formatCSV:
		return export.WriteRankingCSV(w, sectors)
	case formatGeoJSON:
		return export.WriteGeoJSON(w, sectors)
	case formatJSON:
		if sectors == nil {
			sectors = []model.RankedSector{}
		}
		return writeJSON(w, sectors)
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		_, _ = fmt.Fprintln(tw, "RANK\tSECTOR\tRISK_POP\tSCORE\t")
		for _, r := range sectors {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", cellInt(r.Rank), r.ID, cellFloat(r.RiskPopulation, 0), cellFloat(r.Score, 2))
		}
		return tw.Flush()
	}
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tRANKED\tUNRANKED\tDROPPED\tMAX_SCORE\tCREATED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t--------\t-------\t---------\t-------\t--------\t-----")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		ranked, unranked, dropped, maxScore := "-", "-", "-", "-"
		if r.Result != nil {
			ranked = fmt.Sprint(r.Result.Ranked)
			unranked = fmt.Sprint(r.Result.Unranked)
			dropped = fmt.Sprint(r.Result.Dropped)
			maxScore = fmt.Sprintf("%.2f", r.Result.MaxScore)
		}

		errMsg := r.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			ranked,
			unranked,
			dropped,
			maxScore,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
			errMsg,
		)
	}
	_ = w.Flush()
}
