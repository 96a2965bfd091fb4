package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordEnriched(t *testing.T) {
	t.Parallel()

	var r Record
	assert.False(t, r.Enriched())

	now := time.Now()
	r.ClassifiedAt = &now
	assert.True(t, r.Enriched())
}

func TestInsightRoundTrip(t *testing.T) {
	t.Parallel()

	var r Record
	for _, a := range Audiences {
		r.SetInsight(a, "note for "+string(a))
	}

	assert.Equal(t, "note for engineer", r.Insight(AudienceEngineer))
	assert.Equal(t, "note for founder", r.Insight(AudienceFounder))
	assert.Equal(t, "note for creator", r.Insight(AudienceCreator))
	assert.Empty(t, r.Insight(Audience("unknown")))
}

func TestHasPersonaTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tags []string
		want bool
	}{
		{"empty", nil, false},
		{"no persona", []string{"tech:go", "type:article"}, false},
		{"persona present", []string{"tech:go", "persona:founder"}, true},
		{"persona only", []string{"persona:engineer"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HasPersonaTag(tt.tags))
		})
	}
}

func TestEnsurePersonaTag(t *testing.T) {
	t.Parallel()

	tags := EnsurePersonaTag([]string{"tech:go"})
	assert.Contains(t, tags, DefaultPersonaTag)

	// Existing persona tags are left alone.
	tags = EnsurePersonaTag([]string{"persona:creator"})
	assert.Equal(t, []string{"persona:creator"}, tags)
	assert.NotContains(t, tags, DefaultPersonaTag)
}

func TestNormalizeTags(t *testing.T) {
	t.Parallel()

	got := NormalizeTags([]string{" Tech:Go ", "tech:go", "", "type:article"})
	assert.Equal(t, []string{"tech:go", "type:article"}, got)
}

func TestStepFlags(t *testing.T) {
	t.Parallel()

	assert.True(t, AllSteps().Fetches())
	assert.True(t, AllSteps().RunAnalysis)
	assert.False(t, StepFlags{RunAnalysis: true}.Fetches())
	assert.True(t, StepFlags{RunContent: true}.Fetches())
}

func TestProgressDone(t *testing.T) {
	t.Parallel()

	assert.False(t, Progress{}.Done())
	assert.False(t, Progress{Total: 5, Processed: 4}.Done())
	assert.True(t, Progress{Total: 5, Processed: 5, Succeeded: 3, Failed: 2}.Done())
}
