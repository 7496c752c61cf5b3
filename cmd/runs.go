package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pickup-cli/internal/pipeline"
	"github.com/sells-group/pickup-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect fetch run history",
	Long:  "Read the run store: list past fetch runs, show one in full, or break a run down per region.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("runs")
	},
}

// withStore opens the configured store around a subcommand body.
func withStore(name string, body func(cmd *cobra.Command, st store.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		return eris.Wrap(body(cmd, st, args), name)
	}
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fetch runs, newest first",
	RunE: withStore("runs list", func(cmd *cobra.Command, st store.Store, _ []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(cmd.Context(), store.RunFilter{Status: store.RunStatus(status), Limit: limit})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	}),
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print one run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withStore("runs show", func(cmd *cobra.Command, st store.Store, args []string) error {
		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}),
}

var runsRegionsCmd = &cobra.Command{
	Use:   "regions <run-id>",
	Short: "List the region outcomes of a run",
	Args:  cobra.ExactArgs(1),
	RunE: withStore("runs regions", func(cmd *cobra.Command, st store.Store, args []string) error {
		// GetRun first so an unknown id reports not found instead of an empty table.
		if _, err := st.GetRun(cmd.Context(), args[0]); err != nil {
			return err
		}
		regions, err := st.ListRegions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		formatRegionsList(os.Stdout, regions)
		return nil
	}),
}

func init() {
	runsListCmd.Flags().String("status", "", "only runs with this status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsRegionsCmd)
	rootCmd.AddCommand(runsCmd)
}

// table is a tab-aligned writer with a header row.
type table struct{ w *tabwriter.Writer }

func newTable(out io.Writer, header ...string) *table {
	t := &table{w: tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)}
	t.row(header...)
	return t
}

func (t *table) row(cells ...string) {
	_, _ = fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *table) flush() { _ = t.w.Flush() }

func formatRunsList(out io.Writer, runs []store.Run) {
	t := newTable(out, "ID", "STATUS", "REGIONS", "OK", "DEGRADED", "SKIPPED", "FAILED", "RECORDS", "STARTED", "DURATION")
	for _, r := range runs {
		took := "-"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.row(
			truncateID(r.ID),
			string(r.Status),
			fmt.Sprint(r.Regions),
			fmt.Sprint(r.Counts[pipeline.StatusOK]),
			fmt.Sprint(r.Counts[pipeline.StatusDegraded]),
			fmt.Sprint(r.Counts[pipeline.StatusSkipped]),
			fmt.Sprint(r.Counts[pipeline.StatusFailed]),
			fmt.Sprint(r.Records),
			r.StartedAt.Format("2006-01-02 15:04"),
			took,
		)
	}
	t.flush()
}

func formatRegionsList(out io.Writer, regions []store.RegionRecord) {
	t := newTable(out, "SLUG", "STATUS", "STRATEGY", "BOUNDS", "RECORDS", "REASONS", "ERROR")
	for _, r := range regions {
		res := r.Result
		msg := res.Error
		if len(msg) > 40 {
			msg = msg[:37] + "..."
		}
		t.row(r.Slug, string(r.Status), dash(res.Strategy), dash(res.BoundsKind),
			fmt.Sprint(res.Records), joinReasons(res.Reasons), msg)
	}
	t.flush()
}

func joinReasons(reasons []pipeline.Reason) string {
	if len(reasons) == 0 {
		return "-"
	}
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateID shortens a run UUID to its first block.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
