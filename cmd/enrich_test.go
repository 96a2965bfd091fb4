package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/inkshelf/enricher/internal/model"
)

func resetEnrichFlags() {
	enrichAll = false
	enrichNoResearch = false
	enrichNoContent = false
	enrichNoAnalysis = false
	enrichLimit = 0
}

func TestSelectJobs_SkipsEnrichedByDefault(t *testing.T) {
	resetEnrichFlags()
	now := time.Now()
	records := []model.Record{
		{URL: "https://new.example"},
		{URL: "https://done.example", ClassifiedAt: &now},
	}

	jobs := selectJobs(records)
	assert.Len(t, jobs, 1)
	assert.Equal(t, "https://new.example", jobs[0].Record.URL)
	assert.Equal(t, model.AllSteps(), jobs[0].Flags)
}

func TestSelectJobs_AllIncludesEnriched(t *testing.T) {
	resetEnrichFlags()
	enrichAll = true
	now := time.Now()
	records := []model.Record{
		{URL: "https://new.example"},
		{URL: "https://done.example", ClassifiedAt: &now},
	}

	jobs := selectJobs(records)
	assert.Len(t, jobs, 2)
}

func TestSelectJobs_SkippedStepsCarryPriorText(t *testing.T) {
	resetEnrichFlags()
	enrichNoResearch = true
	enrichNoContent = true
	records := []model.Record{
		{URL: "https://a.example", ResearchText: "old research", ExtractedContent: "old content"},
	}

	jobs := selectJobs(records)
	assert.Len(t, jobs, 1)
	assert.Equal(t, "old research", jobs[0].PriorResearch)
	assert.Equal(t, "old content", jobs[0].PriorContent)
	assert.False(t, jobs[0].Flags.Fetches())
	assert.True(t, jobs[0].Flags.RunAnalysis)
}

func TestSelectJobs_Limit(t *testing.T) {
	resetEnrichFlags()
	enrichLimit = 2
	records := []model.Record{
		{URL: "https://a.example"},
		{URL: "https://b.example"},
		{URL: "https://c.example"},
	}

	jobs := selectJobs(records)
	assert.Len(t, jobs, 2)
}

func TestFormatRecord(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "[new] https://a.example", formatRecord(model.Record{URL: "https://a.example"}))

	line := formatRecord(model.Record{
		URL:          "https://b.example",
		Title:        "B",
		Rating:       4,
		Tags:         []string{"persona:engineer"},
		ClassifiedAt: &now,
	})
	assert.Equal(t, "[4/5] https://b.example  B  (persona:engineer)", line)
}
