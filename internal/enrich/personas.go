package enrich

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/inkshelf/enricher/internal/model"
)

//go:embed personas.yaml
var embeddedPersonas []byte

// Persona describes one audience track for the classification prompt.
type Persona struct {
	Audience model.Audience `yaml:"audience"`
	Tag      string         `yaml:"tag"`
	Voice    string         `yaml:"voice"`
	Wants    []string       `yaml:"wants"`
}

// Taxonomy is the full persona set used for prompting and the persona-tag
// guarantee on classified records.
type Taxonomy struct {
	Personas []Persona `yaml:"personas"`
}

// LoadPersonas reads the persona taxonomy from path, or the embedded
// default when path is empty.
func LoadPersonas(path string) (*Taxonomy, error) {
	data := embeddedPersonas
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "personas: read %s", path)
		}
	}

	var tax Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return nil, eris.Wrap(err, "personas: unmarshal")
	}
	if len(tax.Personas) == 0 {
		return nil, eris.New("personas: empty taxonomy")
	}
	for _, p := range tax.Personas {
		if p.Audience == "" || !strings.HasPrefix(p.Tag, model.PersonaTagPrefix) {
			return nil, eris.Errorf("personas: invalid entry %q", p.Audience)
		}
	}
	return &tax, nil
}

// Tags returns every persona tag in taxonomy order.
func (t *Taxonomy) Tags() []string {
	out := make([]string, len(t.Personas))
	for i, p := range t.Personas {
		out[i] = p.Tag
	}
	return out
}

// PromptSection renders the taxonomy as prompt text.
func (t *Taxonomy) PromptSection() string {
	var b strings.Builder
	for _, p := range t.Personas {
		b.WriteString("- ")
		b.WriteString(string(p.Audience))
		b.WriteString(" (tag ")
		b.WriteString(p.Tag)
		b.WriteString("): ")
		b.WriteString(p.Voice)
		b.WriteString(". Cares about: ")
		b.WriteString(strings.Join(p.Wants, "; "))
		b.WriteString(".\n")
	}
	return b.String()
}
