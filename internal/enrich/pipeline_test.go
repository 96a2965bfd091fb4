package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/inkshelf/enricher/internal/model"
)

var testTime = time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T) (*Pipeline, *mockResearcher, *mockExtractor, *mockClassifier) {
	t.Helper()
	tax, err := LoadPersonas("")
	require.NoError(t, err)

	r := &mockResearcher{}
	e := &mockExtractor{}
	c := &mockClassifier{}
	p := NewPipeline(r, e, c, tax)
	p.now = func() time.Time { return testTime }
	return p, r, e, c
}

const goodClassification = `{
	"title": "Go Concurrency Patterns",
	"description": "Talk on pipelines and cancellation in Go.",
	"stars": 5,
	"language": "en-US",
	"icon": "🎤",
	"tags": ["persona:engineer", "tech:go", "type:talk"],
	"insight_engineer": ["Shows how to compose channel stages cleanly."]
}`

func TestPipeline_Run_AllSteps(t *testing.T) {
	p, r, e, c := newTestPipeline(t)

	published := time.Date(2013, 7, 2, 0, 0, 0, 0, time.UTC)
	rec := model.Record{URL: "https://go.dev/talks/concurrency"}

	r.On("Research", mock.Anything, rec).Return("research summary", nil)
	e.On("Extract", mock.Anything, rec.URL).Return(&ExtractResult{
		Markdown:    "# Concurrency\nbody",
		Title:       "Concurrency Patterns",
		PublishedAt: &published,
	}, nil)
	c.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(goodClassification, nil)

	out, err := p.Run(context.Background(), model.EnrichmentJob{
		Record: rec,
		Flags:  model.AllSteps(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Go Concurrency Patterns", out.Title)
	assert.Equal(t, "research summary", out.ResearchText)
	assert.Equal(t, "# Concurrency\nbody", out.ExtractedContent)
	assert.Equal(t, 5, out.Rating)
	assert.Equal(t, "en", out.Language)
	assert.Equal(t, "🎤", out.Icon)
	assert.Equal(t, []string{"persona:engineer", "tech:go", "type:talk"}, out.Tags)
	assert.Equal(t, "- Shows how to compose channel stages cleanly.", out.InsightEngineer)
	assert.Empty(t, out.InsightFounder)

	require.NotNil(t, out.ResearchedAt)
	assert.True(t, out.ResearchedAt.Equal(testTime))
	require.NotNil(t, out.ClassifiedAt)
	assert.True(t, out.Enriched())
	require.NotNil(t, out.PublishedAt)
	assert.True(t, out.PublishedAt.Equal(published))
}

func TestPipeline_Run_FetchFailureIsHard(t *testing.T) {
	p, r, e, c := newTestPipeline(t)

	rec := model.Record{URL: "https://broken.example"}
	r.On("Research", mock.Anything, rec).Return("ok", nil).Maybe()
	e.On("Extract", mock.Anything, rec.URL).Return(nil, errors.New("reader unreachable"))

	_, err := p.Run(context.Background(), model.EnrichmentJob{
		Record: rec,
		Flags:  model.AllSteps(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: fetch")
	c.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_Run_NoAnalysisPreservesState(t *testing.T) {
	p, r, e, c := newTestPipeline(t)

	classified := testTime.Add(-24 * time.Hour)
	rec := model.Record{
		URL:          "https://example.com/a",
		Title:        "Existing title",
		Rating:       2,
		Tags:         []string{"persona:creator"},
		ClassifiedAt: &classified,
	}
	r.On("Research", mock.Anything, rec).Return("fresh research", nil)

	out, err := p.Run(context.Background(), model.EnrichmentJob{
		Record: rec,
		Flags:  model.StepFlags{RunResearch: true},
	})
	require.NoError(t, err)

	assert.Equal(t, "fresh research", out.ResearchText)
	assert.Equal(t, "Existing title", out.Title)
	assert.Equal(t, 2, out.Rating)
	assert.Equal(t, []string{"persona:creator"}, out.Tags)
	require.NotNil(t, out.ClassifiedAt)
	assert.True(t, out.ClassifiedAt.Equal(classified))
	e.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	c.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_Run_PersonaDefaultAppended(t *testing.T) {
	p, _, _, c := newTestPipeline(t)

	c.On("Classify", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"title": "x", "stars": 3, "tags": ["tech:rust"]}`, nil)

	out, err := p.Run(context.Background(), model.EnrichmentJob{
		Record: model.Record{URL: "https://example.com/rust"},
		Flags:  model.StepFlags{RunAnalysis: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tech:rust", model.DefaultPersonaTag}, out.Tags)
	assert.True(t, model.HasPersonaTag(out.Tags))
}

func TestPipeline_Run_ParseFailure(t *testing.T) {
	p, _, _, c := newTestPipeline(t)

	c.On("Classify", mock.Anything, mock.Anything, mock.Anything).
		Return("no json here at all", nil)

	_, err := p.Run(context.Background(), model.EnrichmentJob{
		Record: model.Record{URL: "https://example.com/bad"},
		Flags:  model.StepFlags{RunAnalysis: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse result")
}

func TestPipeline_Run_PriorInputsFeedAnalysis(t *testing.T) {
	p, _, _, c := newTestPipeline(t)

	c.On("Classify", mock.Anything, mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "stored research") && strings.Contains(prompt, "stored content")
	})).Return(goodClassification, nil)

	_, err := p.Run(context.Background(), model.EnrichmentJob{
		Record:        model.Record{URL: "https://example.com/cached"},
		Flags:         model.StepFlags{RunAnalysis: true},
		PriorResearch: "stored research",
		PriorContent:  "stored content",
	})
	require.NoError(t, err)
	c.AssertExpectations(t)
}

func TestPipeline_Run_PublishedAtNeverCleared(t *testing.T) {
	p, _, e, _ := newTestPipeline(t)

	prior := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	e.On("Extract", mock.Anything, mock.Anything).Return(&ExtractResult{
		Markdown: "body",
	}, nil)

	out, err := p.Run(context.Background(), model.EnrichmentJob{
		Record: model.Record{URL: "https://example.com/dated", PublishedAt: &prior},
		Flags:  model.StepFlags{RunContent: true},
	})
	require.NoError(t, err)
	require.NotNil(t, out.PublishedAt)
	assert.True(t, out.PublishedAt.Equal(prior))
}

func TestPipeline_Run_ExtractMetadataFillsBlanksOnly(t *testing.T) {
	p, _, e, _ := newTestPipeline(t)

	e.On("Extract", mock.Anything, mock.Anything).Return(&ExtractResult{
		Markdown: "body",
		Title:    "Reader title",
	}, nil)

	out, err := p.Run(context.Background(), model.EnrichmentJob{
		Record: model.Record{URL: "https://example.com/titled", Title: "User title"},
		Flags:  model.StepFlags{RunContent: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "User title", out.Title)
}
