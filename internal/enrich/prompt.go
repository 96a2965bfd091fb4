package enrich

import (
	"fmt"
	"strings"

	"github.com/inkshelf/enricher/internal/model"
)

// maxPromptContent bounds how much fetched text goes into the
// classification prompt; readers can return very long pages.
const maxPromptContent = 12000

const classifySystemPreamble = `You are a bookmark librarian. You receive a saved link together with a research summary and the extracted page content, and you classify it for a personal knowledge base.

Respond with exactly one JSON object and nothing else:
{
  "title": "<concise page title>",
  "description": "<one or two sentence summary>",
  "stars": <1-5 overall quality and durability of the content>,
  "language": "<ISO 639-1 code of the page language>",
  "icon": "<single emoji that fits the content>",
  "tags": ["persona:<audience>", "tech:<technology>", "type:<content type>"],
  "insight_engineer": ["<paragraph>", "..."],
  "insight_founder": ["<paragraph>", "..."],
  "insight_creator": ["<paragraph>", "..."]
}

Tags are lowercase and namespaced. Include a persona:* tag for every audience the content genuinely serves, at least one. Write each insight_* only when the content offers that audience something real; omit the field otherwise.

Audiences:
%s`

const researchPromptTemplate = `Research this saved link and summarize what it is, who made it, and why it matters. Be factual and concise.

URL: %s
Title: %s
Description: %s`

// BuildSystemPrompt renders the shared classification preamble for a run.
// It is identical across records, which makes it cacheable.
func BuildSystemPrompt(tax *Taxonomy) string {
	return fmt.Sprintf(classifySystemPreamble, tax.PromptSection())
}

// BuildUserPrompt renders the per-record classification input from whatever
// step outputs are available.
func BuildUserPrompt(rec model.Record, research, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", rec.URL)
	if rec.Title != "" {
		fmt.Fprintf(&b, "Current title: %s\n", rec.Title)
	}
	if rec.Description != "" {
		fmt.Fprintf(&b, "Current description: %s\n", rec.Description)
	}
	if research != "" {
		b.WriteString("\n## Research summary\n")
		b.WriteString(truncate(research, maxPromptContent))
		b.WriteString("\n")
	}
	if content != "" {
		b.WriteString("\n## Extracted content\n")
		b.WriteString(truncate(content, maxPromptContent))
		b.WriteString("\n")
	}
	return b.String()
}

func researchPrompt(rec model.Record) string {
	return fmt.Sprintf(researchPromptTemplate, rec.URL, rec.Title, rec.Description)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[truncated]"
}
