// Package parse turns the classification service's free-text response into
// a validated result. Model output is expected to contain exactly one JSON
// object, possibly wrapped in commentary or markdown code fences and
// occasionally carrying literal control characters inside string values.
package parse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/inkshelf/enricher/internal/model"
)

// snippetLen bounds the offending-text excerpt carried by parse errors.
const snippetLen = 160

// neutralRating is used when the model omits the rating or returns a
// non-numeric value.
const neutralRating = 3

// Error is a typed parse failure carrying a truncated excerpt of the text
// that could not be decoded.
type Error struct {
	Msg     string
	Snippet string
}

func (e *Error) Error() string {
	if e.Snippet == "" {
		return "parse: " + e.Msg
	}
	return fmt.Sprintf("parse: %s: %q", e.Msg, e.Snippet)
}

func newError(msg, text string) *Error {
	snippet := strings.TrimSpace(text)
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen] + "..."
	}
	return &Error{Msg: msg, Snippet: snippet}
}

// Classification is the validated result of one classification call.
type Classification struct {
	Title       string
	Description string
	Rating      int
	Language    string
	Icon        string
	Tags        []string
	Insights    map[model.Audience]string
}

// rawClassification tolerates the shape drift the model produces: numeric
// fields arriving as strings, tags of the wrong type, insights as either a
// paragraph array or a legacy single string.
type rawClassification struct {
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Stars           flexInt     `json:"stars"`
	Language        string      `json:"language"`
	Icon            string      `json:"icon"`
	Tags            flexStrings `json:"tags"`
	InsightEngineer flexInsight `json:"insight_engineer"`
	InsightFounder  flexInsight `json:"insight_founder"`
	InsightCreator  flexInsight `json:"insight_creator"`
}

// Extract locates the JSON object in raw, decodes it (sanitizing control
// characters inside strings if a direct decode fails), and validates the
// result. It never guesses: text that stays malformed after the single
// sanitizer pass is a typed *Error.
func Extract(raw string) (*Classification, error) {
	span, ok := objectSpan(raw)
	if !ok {
		return nil, newError("no JSON object found", raw)
	}

	var rc rawClassification
	if err := json.Unmarshal([]byte(span), &rc); err != nil {
		sanitized := sanitize(span)
		if err := json.Unmarshal([]byte(sanitized), &rc); err != nil {
			return nil, newError("invalid JSON after sanitizing", span)
		}
	}

	return rc.validate(), nil
}

func (rc *rawClassification) validate() *Classification {
	c := &Classification{
		Title:       strings.TrimSpace(rc.Title),
		Description: strings.TrimSpace(rc.Description),
		Rating:      int(rc.Stars),
		Language:    normalizeLanguage(rc.Language),
		Icon:        firstGlyph(rc.Icon),
		Tags:        model.NormalizeTags(rc.Tags),
		Insights:    make(map[model.Audience]string, len(model.Audiences)),
	}

	if c.Rating < 1 || c.Rating > 5 {
		c.Rating = neutralRating
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}

	for a, ins := range map[model.Audience]flexInsight{
		model.AudienceEngineer: rc.InsightEngineer,
		model.AudienceFounder:  rc.InsightFounder,
		model.AudienceCreator:  rc.InsightCreator,
	} {
		if text := ins.bulletJoined(); text != "" {
			c.Insights[a] = text
		}
	}

	return c
}

// normalizeLanguage maps whatever the model returned onto a canonical ISO
// base code ("en", "de"). Unparseable values are dropped.
func normalizeLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

// firstGlyph reduces the icon field to a single rune; the model sometimes
// returns a glyph with trailing text.
func firstGlyph(s string) string {
	s = strings.TrimSpace(s)
	for _, r := range s {
		return string(r)
	}
	return ""
}

// objectSpan returns the first balanced {...} span in text, after stripping
// markdown code fences. Brace depth is tracked outside quoted strings so
// braces inside values do not terminate the scan. If the object never
// closes, it falls back to a greedy first-{ to last-} match.
func objectSpan(text string) (string, bool) {
	text = stripFences(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	// Unbalanced, typically an unescaped quote confusing the scan. Let the
	// decoder and sanitizer have a go at the greedy match.
	if end := strings.LastIndexByte(text, '}'); end > start {
		return text[start : end+1], true
	}
	return "", false
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
	} else {
		return text
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// sanitize rewrites control characters that appear inside quoted strings:
// newlines become the \n escape, carriage returns are dropped, and other C0
// characters become a space. A single pass tracks whether the scan is
// inside a string and whether the previous character was an unescaped
// backslash. Characters outside strings pass through untouched.
func sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)

	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]

		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}

		switch {
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			// dropped
		case c < 0x20:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// flexInt decodes a JSON number or numeric string; anything else is 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = flexInt(n)
			return nil
		}
	}
	*f = 0
	return nil
}

// flexStrings decodes a JSON string array; wrong types become nil rather
// than failing the whole parse.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	*f = nil
	return nil
}

// flexInsight accepts the preferred array-of-paragraphs shape or the legacy
// single string with newline-delimited paragraphs.
type flexInsight []string

func (f *flexInsight) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = strings.Split(s, "\n")
		return nil
	}
	*f = nil
	return nil
}

// bulletJoined normalizes the paragraphs into one bullet-joined string for
// storage.
func (f flexInsight) bulletJoined() string {
	var parts []string
	for _, p := range f {
		p = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "- "))
		if p != "" {
			parts = append(parts, "- "+p)
		}
	}
	return strings.Join(parts, "\n")
}
