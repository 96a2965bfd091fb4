package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/inkshelf/enricher/internal/cost"
	"github.com/inkshelf/enricher/internal/model"
	"github.com/inkshelf/enricher/internal/resilience"
	"github.com/inkshelf/enricher/pkg/anthropic"
	"github.com/inkshelf/enricher/pkg/firecrawl"
	"github.com/inkshelf/enricher/pkg/jina"
	"github.com/inkshelf/enricher/pkg/perplexity"
)

// Researcher produces a research summary for a saved link.
type Researcher interface {
	Research(ctx context.Context, rec model.Record) (string, error)
}

// ExtractResult is the content-extraction output for one URL.
type ExtractResult struct {
	Markdown    string
	Title       string
	Description string
	PublishedAt *time.Time
}

// Extractor renders a URL into markdown plus page metadata.
type Extractor interface {
	Extract(ctx context.Context, url string) (*ExtractResult, error)
}

// Classifier runs the analysis model over assembled inputs and returns the
// raw model text. Parsing happens downstream.
type Classifier interface {
	Classify(ctx context.Context, system string, prompt string) (string, error)
}

// transientAPIError classifies provider errors for the retry policy: HTTP
// errors retry only on rate-limit and server statuses, everything else goes
// through the generic network check.
func transientAPIError(err error) bool {
	var pe *perplexity.APIError
	if errors.As(err, &pe) {
		return resilience.IsTransientHTTPStatus(pe.StatusCode)
	}
	var je *jina.APIError
	if errors.As(err, &je) {
		return resilience.IsTransientHTTPStatus(je.StatusCode)
	}
	var fe *firecrawl.APIError
	if errors.As(err, &fe) {
		return resilience.IsTransientHTTPStatus(fe.StatusCode)
	}
	return resilience.IsTransient(err)
}

// PerplexityResearcher implements Researcher on the Perplexity API with a
// rate limiter, per-call timeout, and bounded retries.
type PerplexityResearcher struct {
	client  perplexity.Client
	limiter *rate.Limiter
	timeout time.Duration
	retry   resilience.RetryConfig
}

// NewPerplexityResearcher wires the production research adapter. rps <= 0
// disables throttling.
func NewPerplexityResearcher(client perplexity.Client, rps float64, timeout time.Duration, retry resilience.RetryConfig) *PerplexityResearcher {
	retry.Classify = transientAPIError
	retry.OnRetry = resilience.RetryLogger("perplexity", "research")
	return &PerplexityResearcher{
		client:  client,
		limiter: newLimiter(rps),
		timeout: timeout,
		retry:   retry,
	}
}

func (r *PerplexityResearcher) Research(ctx context.Context, rec model.Record) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "research: rate limit wait")
	}

	text, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.client.Ask(callCtx, researchPrompt(rec))
	})
	if err != nil {
		return "", eris.Wrapf(err, "research: %s", rec.URL)
	}
	return text, nil
}

// ReaderExtractor implements Extractor with Jina as the primary reader and
// Firecrawl scrape as the per-URL fallback when Jina fails permanently.
type ReaderExtractor struct {
	jina      jina.Client
	firecrawl firecrawl.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	retry     resilience.RetryConfig
}

// NewReaderExtractor wires the production content-extraction adapter.
// fcClient may be nil to disable the fallback.
func NewReaderExtractor(jinaClient jina.Client, fcClient firecrawl.Client, rps float64, timeout time.Duration, retry resilience.RetryConfig) *ReaderExtractor {
	retry.Classify = transientAPIError
	retry.OnRetry = resilience.RetryLogger("jina", "read")
	return &ReaderExtractor{
		jina:      jinaClient,
		firecrawl: fcClient,
		limiter:   newLimiter(rps),
		timeout:   timeout,
		retry:     retry,
	}
}

func (e *ReaderExtractor) Extract(ctx context.Context, url string) (*ExtractResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: rate limit wait")
	}

	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*jina.ReadResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.jina.Read(callCtx, url)
	})
	if err == nil {
		return &ExtractResult{
			Markdown:    resp.Data.Content,
			Title:       resp.Data.Title,
			Description: resp.Data.Description,
			PublishedAt: parsePublishedTime(resp.Data.PublishedTime),
		}, nil
	}

	if e.firecrawl == nil {
		return nil, eris.Wrapf(err, "extract: %s", url)
	}

	zap.L().Debug("extract: jina failed, trying firecrawl",
		zap.String("url", url),
		zap.Error(err),
	)

	fcRetry := e.retry
	fcRetry.OnRetry = resilience.RetryLogger("firecrawl", "scrape")
	scrape, fcErr := resilience.DoVal(ctx, fcRetry, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.firecrawl.Scrape(callCtx, firecrawl.ScrapeRequest{
			URL:     url,
			Formats: []string{"markdown"},
		})
	})
	if fcErr != nil {
		return nil, eris.Wrapf(fcErr, "extract: %s", url)
	}
	if !scrape.Success {
		return nil, eris.Errorf("extract: firecrawl scrape not successful for %s", url)
	}

	return &ExtractResult{
		Markdown:    scrape.Data.Markdown,
		Title:       scrape.Data.Metadata.Title,
		Description: scrape.Data.Metadata.Description,
		PublishedAt: parsePublishedTime(scrape.Data.Metadata.PublishedTime),
	}, nil
}

// AnthropicClassifier implements Classifier on the Anthropic messages API.
// The system preamble is cached across calls in a run.
type AnthropicClassifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	retry     resilience.RetryConfig
	costs     *cost.Calculator
}

// NewAnthropicClassifier wires the production classification adapter.
func NewAnthropicClassifier(client anthropic.Client, modelName string, maxTokens int64, timeout time.Duration, retry resilience.RetryConfig) *AnthropicClassifier {
	retry.OnRetry = resilience.RetryLogger("anthropic", "classify")
	return &AnthropicClassifier{
		client:    client,
		model:     modelName,
		maxTokens: maxTokens,
		timeout:   timeout,
		retry:     retry,
		costs:     cost.NewCalculator(cost.DefaultRates()),
	}
}

func (c *AnthropicClassifier) Classify(ctx context.Context, system string, prompt string) (string, error) {
	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.client.CreateMessage(callCtx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System:    anthropic.CachedSystemBlocks(system),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return "", eris.Wrap(err, "classify: create message")
	}

	resp.Usage.Log(c.model, "classify")
	zap.L().Debug("classify: cost",
		zap.Float64("call_usd", c.costs.Claude(c.model, resp.Usage)),
		zap.Float64("run_usd", c.costs.Total()),
	)
	return resp.TextContent(), nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// publishedTimeFormats covers the shapes readers report for publish dates.
var publishedTimeFormats = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02",
}

func parsePublishedTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range publishedTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
