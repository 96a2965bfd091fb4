package model

import (
	"strings"
	"time"
)

// Audience identifies one of the insight tracks a record can carry.
type Audience string

const (
	AudienceEngineer Audience = "engineer"
	AudienceFounder  Audience = "founder"
	AudienceCreator  Audience = "creator"
)

// Audiences lists every insight track in presentation order.
var Audiences = []Audience{AudienceEngineer, AudienceFounder, AudienceCreator}

// PersonaTagPrefix namespaces tags that bind a record to an audience.
const PersonaTagPrefix = "persona:"

// DefaultPersonaTag is appended when classification returns no persona tag.
const DefaultPersonaTag = PersonaTagPrefix + string(AudienceEngineer)

// Record is one saved link under enrichment. URL is the unique key and is
// immutable once created.
type Record struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	ResearchText     string `json:"research_text,omitempty"`
	ExtractedContent string `json:"extracted_content,omitempty"`

	Rating   int      `json:"rating,omitempty"` // 1-5, 0 = unset
	Language string   `json:"language,omitempty"`
	Icon     string   `json:"icon,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	InsightEngineer string `json:"insight_engineer,omitempty"`
	InsightFounder  string `json:"insight_founder,omitempty"`
	InsightCreator  string `json:"insight_creator,omitempty"`

	ResearchedAt *time.Time `json:"researched_at,omitempty"`
	ClassifiedAt *time.Time `json:"classified_at,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Enriched reports whether the record has been classified. ClassifiedAt is
// the sole source of truth for queue membership ("new" vs "re-enrich").
func (r *Record) Enriched() bool {
	return r.ClassifiedAt != nil
}

// Insight returns the insight text for an audience track.
func (r *Record) Insight(a Audience) string {
	switch a {
	case AudienceEngineer:
		return r.InsightEngineer
	case AudienceFounder:
		return r.InsightFounder
	case AudienceCreator:
		return r.InsightCreator
	}
	return ""
}

// SetInsight stores insight text for an audience track.
func (r *Record) SetInsight(a Audience, text string) {
	switch a {
	case AudienceEngineer:
		r.InsightEngineer = text
	case AudienceFounder:
		r.InsightFounder = text
	case AudienceCreator:
		r.InsightCreator = text
	}
}

// HasPersonaTag reports whether tags contains at least one persona:* tag.
func HasPersonaTag(tags []string) bool {
	for _, t := range tags {
		if strings.HasPrefix(t, PersonaTagPrefix) {
			return true
		}
	}
	return false
}

// EnsurePersonaTag appends the default persona tag when none is present.
// Successful classifications always carry at least one persona tag.
func EnsurePersonaTag(tags []string) []string {
	if HasPersonaTag(tags) {
		return tags
	}
	return append(tags, DefaultPersonaTag)
}

// NormalizeTags trims, lowercases, and de-duplicates tags, preserving the
// first occurrence order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
