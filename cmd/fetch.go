package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pickup-cli/internal/config"
	"github.com/sells-group/pickup-cli/internal/pipeline"
	"github.com/sells-group/pickup-cli/internal/store"
)

var (
	fetchRegionsFile string
	fetchConcurrency int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [region...]",
	Short: "Collect pickup points for a batch of regions",
	Long:  "Resolves each region's boundary, collects every enabled provider over it, and writes one clipped, deduplicated dataset per region.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(cmd.Name()); err != nil {
			return err
		}

		regions, err := selectRegions(args, fetchRegionsFile, cfg.Batch.RegionsFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		concurrency := fetchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		summary, runID, err := runFetch(ctx, cfg, st, regions, concurrency)
		if summary != nil {
			formatSummary(os.Stdout, runID, summary)
		}
		return err
	},
}

// selectRegions takes regions from the command line, else from the flag's
// file, else from the configured file.
func selectRegions(args []string, flagFile, cfgFile string) ([]pipeline.Region, error) {
	if len(args) > 0 {
		regions := pipeline.RegionsFromNames(args)
		if len(regions) == 0 {
			return nil, eris.New("fetch: no region names given")
		}
		return regions, nil
	}

	path := flagFile
	if path == "" {
		path = cfgFile
	}
	if path == "" {
		return nil, eris.New("fetch: give region names or --regions-file")
	}
	regions, err := pipeline.LoadRegions(path)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, eris.Errorf("fetch: %s lists no regions", path)
	}
	return regions, nil
}

// runFetch records a run around the batch when st is non-nil. The summary
// is returned even when the batch was interrupted.
func runFetch(ctx context.Context, c *config.Config, st store.Store, regions []pipeline.Region, concurrency int) (*pipeline.RunSummary, string, error) {
	log := zap.L().With(zap.String("component", "cmd.fetch"))

	runID := uuid.New().String()
	if st != nil {
		run, err := st.CreateRun(ctx, len(regions))
		if err != nil {
			return nil, "", eris.Wrap(err, "fetch: create run")
		}
		runID = run.ID
	}

	sinks := initSinks(c, st, runID)
	runner, err := initRunner(c, sinks)
	if err != nil {
		if st != nil {
			_ = st.CompleteRun(ctx, runID, nil, err)
		}
		return nil, runID, err
	}

	opts := pipeline.BatchOptions{Concurrency: concurrency}
	if st != nil {
		opts.OnRegion = store.NewSink(st, runID).OnRegion
	}

	log.Info("fetch starting", zap.String("run_id", runID), zap.Int("regions", len(regions)))
	summary, runErr := runner.RunBatch(ctx, regions, opts)

	if st != nil {
		// The batch context may be done; record completion regardless.
		if err := st.CompleteRun(context.WithoutCancel(ctx), runID, summary, runErr); err != nil {
			log.Error("complete run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
	if runErr != nil {
		return summary, runID, eris.Wrap(runErr, "fetch: batch interrupted")
	}
	return summary, runID, nil
}

// formatSummary writes one line per region followed by the status counts.
func formatSummary(out io.Writer, runID string, s *pipeline.RunSummary) {
	t := newTable(out, "REGION", "STATUS", "STRATEGY", "RECORDS", "API_CALLS", "REASONS")
	for _, r := range s.Regions {
		t.row(r.Region.Name, string(r.Status), dash(r.Strategy),
			fmt.Sprint(r.Records), fmt.Sprint(r.Stats.TotalAPICalls), joinReasons(r.Reasons))
	}
	t.flush()

	_, _ = fmt.Fprintf(out, "\nrun %s: %d ok, %d degraded, %d skipped, %d failed, %d records in %s\n",
		truncateID(runID),
		s.Counts[pipeline.StatusOK],
		s.Counts[pipeline.StatusDegraded],
		s.Counts[pipeline.StatusSkipped],
		s.Counts[pipeline.StatusFailed],
		s.Records,
		s.Elapsed().Round(time.Millisecond),
	)
}

func init() {
	fetchCmd.Flags().StringVar(&fetchRegionsFile, "regions-file", "", "YAML list of regions ({name, slug, code})")
	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 0, "regions processed at once (default from config)")
	rootCmd.AddCommand(fetchCmd)
}
