package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/report"
)

var (
	researchQuery      string
	researchWorkflow   string
	researchMaxSources int
	researchSynthesize bool
	researchMarkdown   bool
	researchTier       string
	researchNoSave     bool
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Run a research query through its workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("research"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		exec, err := initExecutor()
		if err != nil {
			return err
		}

		maxSources := researchMaxSources
		if maxSources == 0 {
			maxSources = cfg.Research.MaxSources
		}

		run, err := exec.Run(ctx, model.Input{
			Query:        researchQuery,
			WorkflowType: researchWorkflow,
			MaxSources:   maxSources,
			Synthesize:   researchSynthesize,
		})
		if err != nil {
			return eris.Wrap(err, "research run")
		}

		fee := initCalculator().Fee(run.Workflow, cost.Tier(researchTier))

		markdown := report.Markdown(run, fee)
		if !researchNoSave {
			if err := st.SaveRun(ctx, run); err != nil {
				return eris.Wrap(err, "save run")
			}
			if err := st.SaveReport(ctx, run.ID, markdown); err != nil {
				return eris.Wrap(err, "save report")
			}
		}

		zap.L().Info("research complete",
			zap.String("run_id", run.ID),
			zap.String("workflow", string(run.Workflow)),
			zap.Bool("success", run.Success),
			zap.Int("sources", run.SourceCount),
			zap.Float64("fee", fee),
		)

		if researchMarkdown {
			fmt.Fprintln(os.Stdout, markdown)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report.Build(run, fee))
	},
}

func init() {
	researchCmd.Flags().StringVar(&researchQuery, "query", "", "research query (required)")
	researchCmd.Flags().StringVar(&researchWorkflow, "workflow", "auto", "workflow override (auto, direct, exploratory, synthesis)")
	researchCmd.Flags().IntVar(&researchMaxSources, "max-sources", 0, "max sources to consult (3-25, default from config)")
	researchCmd.Flags().BoolVar(&researchSynthesize, "synthesize", false, "produce a synthesis narrative for exploratory runs")
	researchCmd.Flags().BoolVar(&researchMarkdown, "markdown", false, "print the markdown report instead of JSON")
	researchCmd.Flags().StringVar(&researchTier, "tier", "free", "pricing tier (free, pro, enterprise)")
	researchCmd.Flags().BoolVar(&researchNoSave, "no-save", false, "skip persisting the run and report")
	_ = researchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(researchCmd)
}
