// Package enrich orchestrates bookmark enrichment: a per-record step
// pipeline (research and content extraction in parallel, then AI
// classification), a worker-pool scheduler, and a batching writer.
package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inkshelf/enricher/internal/model"
	"github.com/inkshelf/enricher/internal/parse"
)

// Pipeline runs the enrichment steps for a single record.
type Pipeline struct {
	researcher Researcher
	extractor  Extractor
	classifier Classifier
	system     string

	// now is swapped in tests.
	now func() time.Time
}

// NewPipeline assembles the per-record pipeline. The system prompt is built
// once so every classification call shares the cacheable preamble.
func NewPipeline(r Researcher, e Extractor, c Classifier, tax *Taxonomy) *Pipeline {
	return &Pipeline{
		researcher: r,
		extractor:  e,
		classifier: c,
		system:     BuildSystemPrompt(tax),
		now:        time.Now,
	}
}

// Run executes the requested steps for one job and returns the updated
// record. Fetch steps run concurrently; a failure in either is a hard
// failure for the job. Only fields the run produced are set on the result,
// so persistence merges without erasing prior enrichment.
func (p *Pipeline) Run(ctx context.Context, job model.EnrichmentJob) (*model.Record, error) {
	rec := job.Record
	log := zap.L().With(zap.String("url", rec.URL))

	var researchText string
	var extracted *ExtractResult

	g, gCtx := errgroup.WithContext(ctx)
	if job.Flags.RunResearch {
		g.Go(func() error {
			text, err := p.researcher.Research(gCtx, rec)
			if err != nil {
				return err
			}
			researchText = text
			return nil
		})
	}
	if job.Flags.RunContent {
		g.Go(func() error {
			res, err := p.extractor.Extract(gCtx, rec.URL)
			if err != nil {
				return err
			}
			extracted = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "pipeline: fetch %s", rec.URL)
	}

	if job.Flags.RunResearch {
		rec.ResearchText = researchText
		now := p.now().UTC()
		rec.ResearchedAt = &now
	}
	if extracted != nil {
		rec.ExtractedContent = extracted.Markdown
		if rec.Title == "" {
			rec.Title = extracted.Title
		}
		if rec.Description == "" {
			rec.Description = extracted.Description
		}
		// publishedAt is only ever set, never cleared.
		if extracted.PublishedAt != nil {
			rec.PublishedAt = extracted.PublishedAt
		}
	}

	if !job.Flags.RunAnalysis {
		log.Debug("pipeline: analysis skipped")
		return &rec, nil
	}

	research := rec.ResearchText
	if research == "" {
		research = job.PriorResearch
	}
	content := rec.ExtractedContent
	if content == "" {
		content = job.PriorContent
	}

	raw, err := p.classifier.Classify(ctx, p.system, BuildUserPrompt(rec, research, content))
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: classify %s", rec.URL)
	}

	cls, err := parse.Extract(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse result for %s", rec.URL)
	}

	applyClassification(&rec, cls)
	now := p.now().UTC()
	rec.ClassifiedAt = &now

	log.Debug("pipeline: classified",
		zap.Int("rating", rec.Rating),
		zap.Strings("tags", rec.Tags),
	)
	return &rec, nil
}

// applyClassification merges the parsed result into the record. The model's
// value wins whenever it produced one; absent fields keep what the record
// already had. Classified records always end with a persona tag.
func applyClassification(rec *model.Record, cls *parse.Classification) {
	if cls.Title != "" {
		rec.Title = cls.Title
	}
	if cls.Description != "" {
		rec.Description = cls.Description
	}
	rec.Rating = cls.Rating
	if cls.Language != "" {
		rec.Language = cls.Language
	}
	if cls.Icon != "" {
		rec.Icon = cls.Icon
	}
	if len(cls.Tags) > 0 {
		rec.Tags = cls.Tags
	}
	rec.Tags = model.EnsurePersonaTag(model.NormalizeTags(rec.Tags))

	for _, a := range model.Audiences {
		if text := cls.Insights[a]; text != "" {
			rec.SetInsight(a, text)
		}
	}
}
