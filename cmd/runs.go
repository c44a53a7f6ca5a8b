package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect research run history",
	Long:  "Commands for listing, viewing, and summarizing research runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List research runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		workflow, _ := cmd.Flags().GetString("workflow")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := store.RunFilter{
			Workflow: model.Workflow(workflow),
			Limit:    limit,
			Offset:   offset,
		}
		if failed, _ := cmd.Flags().GetBool("failed"); failed {
			success := false
			filter.Success = &success
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs report --

var runsReportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Print the stored markdown report for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		md, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs report")
		}

		fmt.Fprintln(os.Stdout, md)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		filter := store.RunFilter{Limit: 10000} // high limit for stats

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		stats := computeRunStats(runs)
		formatRunStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("workflow", "", "filter by workflow (direct, exploratory, synthesis)")
	runsListCmd.Flags().Bool("failed", false, "show only unsuccessful runs")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsReportCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Succeeded  int
	Failed     int
	ByWorkflow map[model.Workflow]int
	AvgDurSecs float64
	AvgSources float64
	TotalCited int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.ResearchRun) runStats {
	s := runStats{ByWorkflow: make(map[model.Workflow]int)}
	s.Total = len(runs)

	var totalDur time.Duration
	var totalSources int

	for _, r := range runs {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.ByWorkflow[r.Workflow]++
		totalDur += r.Duration()
		totalSources += r.SourceCount
		s.TotalCited += len(r.URLsDiscovered)
	}

	if s.Total > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(s.Total)
		s.AvgSources = float64(totalSources) / float64(s.Total)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.ResearchRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tQUERY\tWORKFLOW\tSOURCES\tOK\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t--------\t-------\t--\t-------\t--------")

	for _, r := range runs {
		query := r.Query
		if len(query) > 40 {
			query = query[:37] + "..."
		}

		ok := "no"
		if r.Success {
			ok = "yes"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			query,
			r.Workflow,
			r.SuccessfulSources,
			r.SourceCount,
			ok,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Duration().Round(time.Second).String(),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Succeeded:\t%d\n", s.Succeeded)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	for _, wf := range []model.Workflow{model.WorkflowDirect, model.WorkflowExploratory, model.WorkflowSynthesis} {
		if n := s.ByWorkflow[wf]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", wf, n)
		}
	}
	_, _ = fmt.Fprintf(w, "URLs cited:\t%d\n", s.TotalCited)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	if s.AvgSources > 0 {
		_, _ = fmt.Fprintf(w, "Avg sources:\t%.1f\n", s.AvgSources)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
