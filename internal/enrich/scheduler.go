package enrich

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inkshelf/enricher/internal/model"
	"github.com/inkshelf/enricher/internal/store"
)

// incrementalQueueSize bounds how many saves can wait in incremental mode.
const incrementalQueueSize = 128

// Scheduler runs enrichment jobs through the pipeline. Batch mode fans a
// fixed job set out over a worker pool; incremental mode processes single
// saves FIFO with concurrency one. A batch run pauses incremental
// processing until it completes.
type Scheduler struct {
	pipeline    *Pipeline
	st          store.Store
	writer      *BatchWriter
	concurrency int

	// runMu is held across a whole batch run and per-job by the
	// incremental worker, which is what pauses incremental mode.
	runMu sync.Mutex

	aborted     atomic.Bool
	batchActive atomic.Bool

	mu       sync.Mutex
	progress model.Progress
	failures map[string]string

	events chan Event

	incQueue chan model.EnrichmentJob
	incOnce  sync.Once
}

// NewScheduler wires a scheduler with its own batch writer. concurrency
// and batchSize fall back to sane defaults when non-positive.
func NewScheduler(p *Pipeline, st store.Store, concurrency, batchSize int) *Scheduler {
	if concurrency <= 0 {
		concurrency = 3
	}
	s := &Scheduler{
		pipeline:    p,
		st:          st,
		concurrency: concurrency,
		failures:    make(map[string]string),
		events:      make(chan Event, 64),
		incQueue:    make(chan model.EnrichmentJob, incrementalQueueSize),
	}
	s.writer = NewBatchWriter(st, batchSize, s.onWriteResult)
	return s
}

// Events exposes the scheduler's event stream. Events are dropped rather
// than blocking workers when no one is listening.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Progress returns a point-in-time snapshot of the current run.
func (s *Scheduler) Progress() model.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Failures returns the per-URL failure messages from the current run.
func (s *Scheduler) Failures() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.failures))
	for k, v := range s.failures {
		out[k] = v
	}
	return out
}

// Abort requests a cooperative stop. In-flight jobs finish; queued jobs
// are skipped, in both batch and incremental mode. Already-enriched
// records are still flushed. Incremental enqueues are rejected until
// Resume or the next batch run.
func (s *Scheduler) Abort() {
	if s.aborted.Swap(true) {
		return
	}
	zap.L().Info("scheduler: abort requested")
	s.publish(Event{Type: EventAborted})
}

// Resume clears an abort so incremental saves are accepted again.
func (s *Scheduler) Resume() {
	if s.aborted.Swap(false) {
		zap.L().Info("scheduler: resumed")
	}
}

// BatchActive reports whether a batch run is in progress.
func (s *Scheduler) BatchActive() bool {
	return s.batchActive.Load()
}

// StartBatch processes jobs with min(concurrency, len(jobs)) workers and
// blocks until the run completes. One job's failure never aborts the rest.
// The final flush runs even after an abort so finished work is persisted.
func (s *Scheduler) StartBatch(ctx context.Context, jobs []model.EnrichmentJob) (model.Progress, error) {
	if len(jobs) == 0 {
		return model.Progress{}, nil
	}
	if s.batchActive.Swap(true) {
		return model.Progress{}, eris.New("scheduler: batch already running")
	}
	defer s.batchActive.Store(false)

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.aborted.Store(false)
	s.mu.Lock()
	s.progress = model.Progress{Total: len(jobs)}
	s.failures = make(map[string]string)
	s.mu.Unlock()

	runID := uuid.NewString()
	workers := min(s.concurrency, len(jobs))
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("scheduler: starting batch",
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", workers),
	)

	queue := make(chan model.EnrichmentJob)
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for job := range queue {
				if s.aborted.Load() || ctx.Err() != nil {
					continue
				}
				s.process(ctx, job)
			}
			return nil
		})
	}

	for _, job := range jobs {
		queue <- job
	}
	close(queue)
	_ = g.Wait()

	if err := s.writer.ForceFlush(ctx); err != nil {
		zap.L().Error("scheduler: final flush failed", zap.Error(err))
	} else {
		s.publish(Event{Type: EventFlush})
	}
	s.publish(Event{Type: EventBatchDone})

	final := s.Progress()
	log.Info("scheduler: batch finished",
		zap.Int("processed", final.Processed),
		zap.Int("succeeded", final.Succeeded),
		zap.Int("failed", final.Failed),
	)
	return final, nil
}

// process runs one job and hands the result to the batch writer. Failures
// are recorded and isolated to the record.
func (s *Scheduler) process(ctx context.Context, job model.EnrichmentJob) {
	s.publish(Event{Type: EventJobStarted, URL: job.Record.URL})

	rec, err := s.pipeline.Run(ctx, job)
	if err != nil {
		s.markFailed(job.Record.URL, err.Error())
		s.publish(Event{Type: EventJobFailed, URL: job.Record.URL, Error: err.Error()})
		zap.L().Warn("scheduler: job failed",
			zap.String("url", job.Record.URL),
			zap.Error(err),
		)
		return
	}

	s.publish(Event{Type: EventJobSucceeded, URL: rec.URL})
	if err := s.writer.Add(ctx, *rec); err != nil {
		// Entries were already marked failed by the write callback.
		zap.L().Error("scheduler: flush after add failed", zap.Error(err))
	}
}

// onWriteResult is the writer callback: a record only counts as succeeded
// once its write lands.
func (s *Scheduler) onWriteResult(entry model.BatchEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Processed++
	if entry.Err == "" {
		s.progress.Succeeded++
	} else {
		s.progress.Failed++
		s.failures[entry.Record.URL] = entry.Err
	}
}

func (s *Scheduler) markFailed(url, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Processed++
	s.progress.Failed++
	s.failures[url] = msg
}

// StartIncremental launches the single incremental worker. Jobs enqueued
// with Enqueue run FIFO, one at a time, writing straight to the store.
// The worker stops when ctx is canceled.
func (s *Scheduler) StartIncremental(ctx context.Context) {
	s.incOnce.Do(func() {
		go s.incrementalLoop(ctx)
	})
}

// Enqueue adds a single save for incremental enrichment. It never blocks;
// a full queue or a pending abort is an error for the caller to surface.
func (s *Scheduler) Enqueue(job model.EnrichmentJob) error {
	if s.aborted.Load() {
		return eris.New("scheduler: aborted, not accepting saves")
	}
	select {
	case s.incQueue <- job:
		return nil
	default:
		return eris.Errorf("scheduler: incremental queue full (%d)", incrementalQueueSize)
	}
}

func (s *Scheduler) incrementalLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.incQueue:
			if s.aborted.Load() {
				continue
			}
			s.runIncremental(ctx, job)
		}
	}
}

func (s *Scheduler) runIncremental(ctx context.Context, job model.EnrichmentJob) {
	// Waits here while a batch run holds runMu.
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if ctx.Err() != nil {
		return
	}

	s.publish(Event{Type: EventJobStarted, URL: job.Record.URL})
	rec, err := s.pipeline.Run(ctx, job)
	if err == nil {
		err = s.st.UpsertOne(ctx, *rec)
	}
	if err != nil {
		s.publish(Event{Type: EventJobFailed, URL: job.Record.URL, Error: err.Error()})
		zap.L().Warn("scheduler: incremental job failed",
			zap.String("url", job.Record.URL),
			zap.Error(err),
		)
		return
	}
	s.publish(Event{Type: EventJobSucceeded, URL: job.Record.URL})
}

func (s *Scheduler) publish(e Event) {
	e.At = time.Now().UTC()
	select {
	case s.events <- e:
	default:
	}
}
