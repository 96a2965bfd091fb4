package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inkshelf/enricher/internal/model"
)

var (
	enrichAll         bool
	enrichNoResearch  bool
	enrichNoContent   bool
	enrichNoAnalysis  bool
	enrichConcurrency int
	enrichLimit       int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich saved bookmarks in a batch run",
	Long:  "Selects unenriched bookmarks (or all with --all), runs research, content extraction, and classification over a worker pool, and writes results back in batches. Ctrl-C aborts cooperatively: in-flight records finish and are persisted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(sigCtx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(sigCtx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		records, err := st.FetchAll(sigCtx)
		if err != nil {
			return eris.Wrap(err, "fetch bookmarks")
		}

		jobs := selectJobs(records)
		if len(jobs) == 0 {
			fmt.Println("nothing to enrich")
			return nil
		}

		sched, err := newScheduler(st, enrichConcurrency)
		if err != nil {
			return err
		}

		// The run context is deliberately not the signal context: a
		// signal requests an abort, it does not cancel in-flight work.
		runCtx := context.Background()
		go func() {
			<-sigCtx.Done()
			sched.Abort()
		}()

		zap.L().Info("enrich: starting", zap.Int("records", len(jobs)))
		progress, err := sched.StartBatch(runCtx, jobs)
		if err != nil {
			return err
		}

		fmt.Printf("processed %d/%d: %d succeeded, %d failed\n",
			progress.Processed, progress.Total, progress.Succeeded, progress.Failed)

		failures := sched.Failures()
		if len(failures) > 0 {
			urls := make([]string, 0, len(failures))
			for u := range failures {
				urls = append(urls, u)
			}
			sort.Strings(urls)
			fmt.Println("\nfailures:")
			for _, u := range urls {
				fmt.Printf("  %s: %s\n", u, failures[u])
			}
		}
		return nil
	},
}

// selectJobs turns the candidate records into enrichment jobs: unenriched
// records by default, everything with --all, honoring step flags and
// capping at --limit. Skipped fetch steps reuse previously stored text.
func selectJobs(records []model.Record) []model.EnrichmentJob {
	flags := model.StepFlags{
		RunResearch: !enrichNoResearch,
		RunContent:  !enrichNoContent,
		RunAnalysis: !enrichNoAnalysis,
	}

	var jobs []model.EnrichmentJob
	for _, rec := range records {
		if !enrichAll && rec.Enriched() {
			continue
		}
		job := model.EnrichmentJob{Record: rec, Flags: flags}
		if !flags.RunResearch {
			job.PriorResearch = rec.ResearchText
		}
		if !flags.RunContent {
			job.PriorContent = rec.ExtractedContent
		}
		jobs = append(jobs, job)
		if enrichLimit > 0 && len(jobs) >= enrichLimit {
			break
		}
	}
	return jobs
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichAll, "all", false, "re-enrich already classified bookmarks too")
	enrichCmd.Flags().BoolVar(&enrichNoResearch, "no-research", false, "skip the research step")
	enrichCmd.Flags().BoolVar(&enrichNoContent, "no-content", false, "skip the content-extraction step")
	enrichCmd.Flags().BoolVar(&enrichNoAnalysis, "no-analysis", false, "skip classification (fetch only)")
	enrichCmd.Flags().IntVar(&enrichConcurrency, "concurrency", 0, "worker count (default from config)")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "process at most N records")
	rootCmd.AddCommand(enrichCmd)
}
